package exchange

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/raphaelgruber/annobridge/internal/manifest"
	"github.com/raphaelgruber/annobridge/internal/metrics"
	"github.com/raphaelgruber/annobridge/internal/models"
)

// importTaskData fetches every datapoint of the manifest in order, verifies
// its content hash and registers it as a source document. A hash mismatch
// or fetch failure aborts the whole import; documents already created for
// earlier items remain, there is no multi-document transaction.
func (s *Service) importTaskData(ctx context.Context, project *models.Project, mf *manifest.JobManifest) error {
	items := mf.Taskdata
	if len(items) == 0 {
		var err error
		items, err = manifest.FetchTaskData(ctx, s.client, mf.TaskdataURI)
		if err != nil {
			return fmt.Errorf("fetch task data: %w", err)
		}
	}

	format := mf.ConfigString(manifest.ConfigKeyDataFormat, models.FormatText)

	for _, item := range items {
		start := time.Now()
		if err := s.importDatapoint(ctx, project, item, format); err != nil {
			s.stats.RecordFailure(metrics.OpDocumentImport)
			return err
		}
		s.stats.RecordTiming(metrics.OpDocumentImport, time.Since(start))
	}

	s.log.Info("task data imported", "project", project.Slug, "documents", len(items))
	return nil
}

// importDatapoint fetches one datapoint into a temporary file, checks its
// digest against the manifest and streams the verified bytes into the
// document store. The temporary file is removed on every exit path.
func (s *Service) importDatapoint(ctx context.Context, project *models.Project, item manifest.TaskDataItem, format string) error {
	content, err := manifest.FetchBytes(ctx, s.client, item.DatapointURI)
	if err != nil {
		return fmt.Errorf("fetch datapoint %q: %w", item.TaskKey, err)
	}

	tmp, err := os.CreateTemp("", "annobridge-datapoint-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("buffer datapoint %q: %w", item.TaskKey, err)
	}

	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])
	if digest != item.DatapointHash {
		return fmt.Errorf("datapoint %q integrity check failed: manifest declares hash %s but fetched content hashes to %s",
			item.TaskKey, item.DatapointHash, digest)
	}

	doc := &models.SourceDocument{
		ProjectSlug: project.Slug,
		Name:        documentName(item),
		Format:      format,
		State:       models.SourceDocumentStateNew,
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return fmt.Errorf("rewind datapoint %q: %w", item.TaskKey, err)
	}
	if err := s.documents.CreateSourceDocument(ctx, doc, tmp); err != nil {
		return fmt.Errorf("store datapoint %q: %w", item.TaskKey, err)
	}
	return nil
}

// documentName derives the source document name from the datapoint URI's
// last path element, falling back to the task key.
func documentName(item manifest.TaskDataItem) string {
	if u, err := url.Parse(item.DatapointURI); err == nil {
		if name := path.Base(u.Path); name != "" && name != "." && name != "/" {
			return name
		}
	}
	return item.TaskKey
}
