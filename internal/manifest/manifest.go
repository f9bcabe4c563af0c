// Package manifest defines the typed representation of a HUMAN protocol job
// manifest and its task data, plus loading from streams, files and URIs.
package manifest

import (
	"fmt"
	"strings"
)

// Request types supported by this exchange.
const (
	RequestTypeSpanSelect      = "span_select"
	RequestTypeDocumentTagging = "document_tagging"
)

// Request-config keys a requester may set.
const (
	ConfigKeyProjectTitle  = "projectTitle"
	ConfigKeyAnchoring     = "anchoring"
	ConfigKeyOverlap       = "overlap"
	ConfigKeyCrossSentence = "crossSentence"
	ConfigKeyDataFormat    = "dataFormat"
	ConfigKeyVersion       = "version"
)

// Values for the anchoring and overlap request-config keys.
const (
	AnchoringTokens    = "tokens"
	AnchoringSentences = "sentences"

	OverlapNone = "none"
	OverlapAny  = "any"
)

// I18NStrings maps a locale ("en", "de", ...) to a localized string.
type I18NStrings map[string]string

// GetOrDefault returns the string for locale, or def when absent.
func (s I18NStrings) GetOrDefault(locale, def string) string {
	if s == nil {
		return def
	}
	if v, ok := s[locale]; ok {
		return v
	}
	return def
}

// TaskDataItem is one unit of content to be annotated. The datapoint is
// fetched from DatapointURI and only accepted when its SHA-256 digest
// matches DatapointHash byte-for-byte.
type TaskDataItem struct {
	TaskKey       string `json:"task_key"`
	DatapointURI  string `json:"datapoint_uri"`
	DatapointHash string `json:"datapoint_hash"`
}

// TaskData is the ordered list of datapoints of a job.
type TaskData []TaskDataItem

// JobManifest is the requester-authored description of a crowdsourcing job.
// Field names follow the snake_case wire format of the protocol; unknown
// fields are ignored on parse but preserved by the verbatim artifact copy
// the service keeps on disk.
type JobManifest struct {
	JobID                        string                 `json:"job_id"`
	RequesterQuestion            I18NStrings            `json:"requester_question,omitempty"`
	RequesterDescription         string                 `json:"requester_description,omitempty"`
	RequesterMinRepeats          int                    `json:"requester_min_repeats,omitempty"`
	RequesterMaxRepeats          int                    `json:"requester_max_repeats,omitempty"`
	RequesterAccuracyTarget      *float64               `json:"requester_accuracy_target,omitempty"`
	RequesterRestrictedAnswerSet map[string]I18NStrings `json:"requester_restricted_answer_set,omitempty"`
	ExpirationDate               int64                  `json:"expiration_date,omitempty"`
	TaskBidPrice                 string                 `json:"task_bid_price,omitempty"`
	RequestType                  string                 `json:"request_type"`
	RequestConfig                map[string]any         `json:"request_config,omitempty"`
	TaskdataURI                  string                 `json:"taskdata_uri,omitempty"`
	Taskdata                     TaskData               `json:"taskdata,omitempty"`
}

// ConfigString returns the request-config value for key when it is a
// non-blank string, otherwise def.
func (m *JobManifest) ConfigString(key, def string) string {
	v, ok := m.RequestConfig[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// ConfigBool returns the request-config value for key when it is a bool,
// otherwise def.
func (m *JobManifest) ConfigBool(key string, def bool) bool {
	v, ok := m.RequestConfig[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// HasTaskData reports whether the manifest carries task data, inline or by
// reference.
func (m *JobManifest) HasTaskData() bool {
	return len(m.Taskdata) > 0 || m.TaskdataURI != ""
}

// Validate checks the manifest invariants. It is called once at job intake;
// a validation failure aborts the bootstrap and rolls back the project.
func (m *JobManifest) Validate() error {
	switch m.RequestType {
	case RequestTypeSpanSelect, RequestTypeDocumentTagging:
	case "":
		return fmt.Errorf("manifest declares no request type")
	default:
		return fmt.Errorf("unsupported request type %q", m.RequestType)
	}

	if m.RequesterMinRepeats < 0 || m.RequesterMaxRepeats < 0 {
		return fmt.Errorf("repeat counts must not be negative")
	}
	if m.RequesterMinRepeats > 0 && m.RequesterMaxRepeats > 0 &&
		m.RequesterMinRepeats > m.RequesterMaxRepeats {
		return fmt.Errorf("requester_min_repeats %d exceeds requester_max_repeats %d",
			m.RequesterMinRepeats, m.RequesterMaxRepeats)
	}

	if t := m.RequesterAccuracyTarget; t != nil && (*t < 0 || *t > 1) {
		return fmt.Errorf("requester_accuracy_target %v outside [0.0, 1.0]", *t)
	}

	if m.ExpirationDate < 0 {
		return fmt.Errorf("expiration_date must not be negative")
	}

	if len(m.Taskdata) > 0 && m.TaskdataURI != "" {
		return fmt.Errorf("manifest carries both inline taskdata and a taskdata_uri")
	}

	seen := make(map[string]struct{}, len(m.Taskdata))
	for _, item := range m.Taskdata {
		if _, dup := seen[item.TaskKey]; dup {
			return fmt.Errorf("duplicate task key %q", item.TaskKey)
		}
		seen[item.TaskKey] = struct{}{}
	}

	return nil
}
