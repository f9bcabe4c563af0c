package models

import "time"

// Layer type names used by the manifest-driven task schemas.
const (
	LayerTypeSpan        = "span"
	LayerTypeDocumentTag = "documentTag"

	SpanLayerName        = "custom.Span"
	DocumentTagLayerName = "custom.DocumentTag"
)

// AnchoringMode controls what a span annotation may attach to.
type AnchoringMode string

const (
	AnchoringModeTokens    AnchoringMode = "TOKENS"
	AnchoringModeSentences AnchoringMode = "SENTENCES"
)

// OverlapMode controls whether annotations on a layer may overlap.
type OverlapMode string

const (
	OverlapModeNone OverlapMode = "NO_OVERLAP"
	OverlapModeAny  OverlapMode = "ANY_OVERLAP"
)

// AnnotationLayer is a task schema element: the kind of annotation the
// project collects.
type AnnotationLayer struct {
	ProjectSlug   string        `json:"project_slug"`
	Name          string        `json:"name"`
	UIName        string        `json:"ui_name"`
	Type          string        `json:"type"`
	Anchoring     AnchoringMode `json:"anchoring,omitempty"`
	Overlap       OverlapMode   `json:"overlap,omitempty"`
	CrossSentence bool          `json:"cross_sentence"`
}

// AnnotationFeature is a typed attribute on a layer; task schemas attach a
// single string-valued feature, optionally bound to a closed tag set.
type AnnotationFeature struct {
	ProjectSlug string `json:"project_slug"`
	Layer       string `json:"layer"`
	Name        string `json:"name"`
	UIName      string `json:"ui_name"`
	Type        string `json:"type"`
	TagsetName  string `json:"tagset_name,omitempty"`
}

// TagSet is a closed set of permissible feature values.
type TagSet struct {
	ProjectSlug string `json:"project_slug"`
	Name        string `json:"name"`
	CreateTag   bool   `json:"create_tag"`
}

// Tag is one value within a tag set.
type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// WorkloadConfig is the assignment strategy of a project.
type WorkloadConfig struct {
	ProjectSlug        string        `json:"project_slug"`
	Type               string        `json:"type"`
	DefaultAnnotations int           `json:"default_annotations"`
	AbandonmentTimeout time.Duration `json:"abandonment_timeout"`
	AbandonmentIgnored bool          `json:"abandonment_ignored"`
}

// WorkloadTypeDynamic is the pull-based dynamic assignment strategy.
const WorkloadTypeDynamic = "dynamic"
