package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/annobridge/internal/curation"
	"github.com/raphaelgruber/annobridge/internal/events"
	"github.com/raphaelgruber/annobridge/internal/manifest"
	"github.com/raphaelgruber/annobridge/internal/metrics"
	"github.com/raphaelgruber/annobridge/internal/models"
)

// HandleProjectStateChanged reacts to project lifecycle transitions. Only
// the transition into ANNOTATION_FINISHED is acted on; everything else is
// ignored. Errors are logged and never propagated back into the event
// source, so a failing publication cannot crash the triggering transition.
func (s *Service) HandleProjectStateChanged(evt events.ProjectStateChanged) {
	if evt.NewState != models.ProjectStateAnnotationFinished {
		return
	}
	if err := s.onAnnotationFinished(context.Background(), evt.ProjectSlug); err != nil {
		s.log.Error("annotation-finished handling failed", "project", evt.ProjectSlug, "error", err)
	}
}

func (s *Service) onAnnotationFinished(ctx context.Context, slug string) error {
	mf, err := s.readManifestArtifact(slug)
	if errors.Is(err, ErrNoArtifact) {
		s.log.Debug("project has no manifest artifact, not an exchange project", "project", slug)
		return nil
	}
	if err != nil {
		return err
	}
	req, err := s.readJobRequestArtifact(slug)
	if errors.Is(err, ErrNoArtifact) {
		s.log.Debug("project has no job request artifact, not an exchange project", "project", slug)
		return nil
	}
	if err != nil {
		return err
	}

	if mf.RequesterAccuracyTarget != nil && mf.RequestType == manifest.RequestTypeSpanSelect {
		start := time.Now()
		if err := s.autoCurate(ctx, slug, mf.RequesterMinRepeats, *mf.RequesterAccuracyTarget); err != nil {
			s.stats.RecordFailure(metrics.OpAutoCuration)
			return fmt.Errorf("auto-curation: %w", err)
		}
		s.stats.RecordTiming(metrics.OpAutoCuration, time.Since(start))
	} else {
		s.log.Debug("manifest declares no accuracy target, skipping curation", "project", slug)
	}

	return s.PublishResults(ctx, slug, req)
}

// autoCurate merges every annotated document's finished annotator work with
// the threshold strategy and marks curation finished, first per document,
// then for the project. Documents without any finished annotation are
// skipped.
func (s *Service) autoCurate(ctx context.Context, slug string, minRepeats int, accuracyTarget float64) error {
	strategy := curation.NewThresholdMergeStrategy(minRepeats, accuracyTarget, 1)

	docs, err := s.documents.ListSourceDocuments(ctx, slug)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	curated := 0
	for _, doc := range docs {
		anns, err := s.documents.ListFinishedAnnotations(ctx, slug, doc.Name)
		if err != nil {
			return fmt.Errorf("list annotations for %q: %w", doc.Name, err)
		}
		if len(anns) == 0 {
			continue
		}

		byAnnotator := make([][]models.Span, 0, len(anns))
		for _, ann := range anns {
			byAnnotator = append(byAnnotator, ann.Spans)
		}

		merged := strategy.Merge(byAnnotator)
		if err := s.documents.WriteCuration(ctx, slug, doc.Name, merged); err != nil {
			return fmt.Errorf("write curation for %q: %w", doc.Name, err)
		}
		if err := s.documents.SetSourceDocumentState(ctx, slug, doc.Name, models.SourceDocumentStateCurationFinished); err != nil {
			return fmt.Errorf("finish curation for %q: %w", doc.Name, err)
		}
		curated++
	}

	if err := s.projects.SetProjectState(ctx, slug, models.ProjectStateCurationFinished); err != nil {
		return fmt.Errorf("finish project curation: %w", err)
	}

	s.log.Info("auto-curation complete", "project", slug, "documents", curated)
	return nil
}
