package exchange

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/annobridge/internal/manifest"
	"github.com/raphaelgruber/annobridge/internal/messages"
	"github.com/raphaelgruber/annobridge/internal/metrics"
	"github.com/raphaelgruber/annobridge/internal/models"
)

// CreateJob handles a signed job submission: it creates the target project,
// persists the submission artifacts, bootstraps the project from the
// manifest and sends the invite-link notification. Any failure after
// project creation triggers a best-effort project deletion before the error
// is returned, so a half-initialized project is never left visible.
func (s *Service) CreateJob(ctx context.Context, req messages.JobRequest) error {
	start := time.Now()
	if err := s.createJob(ctx, req); err != nil {
		s.stats.RecordFailure(metrics.OpJobSubmission)
		return err
	}
	s.stats.RecordTiming(metrics.OpJobSubmission, time.Since(start))
	return nil
}

func (s *Service) createJob(ctx context.Context, req messages.JobRequest) error {
	if req.JobAddress == "" {
		return fmt.Errorf("job request has no job address")
	}
	if req.JobManifest == "" {
		return fmt.Errorf("job request has no manifest URI")
	}

	log := s.log.With("job_address", req.JobAddress, "network_id", req.NetworkID)
	log.Info("job submission received")

	project := &models.Project{
		Slug:    req.JobAddress,
		Name:    req.JobAddress,
		State:   models.ProjectStateNew,
		Created: time.Now(),
	}
	if err := s.projects.CreateProject(ctx, project); err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	err := s.initializeProject(ctx, project, req)
	if err == nil {
		if linkErr := s.PublishInviteLink(ctx, project.Slug); linkErr != nil {
			err = fmt.Errorf("send invite link: %w", linkErr)
		}
	}
	if err != nil {
		// Best-effort rollback. A cleanup failure is logged and never
		// masks the original error.
		if delErr := s.projects.DeleteProject(ctx, project.Slug); delErr != nil {
			log.Error("rollback of failed job submission did not complete", "error", delErr)
		}
		return err
	}

	log.Info("job submission accepted", "project", project.Slug)
	return nil
}

// initializeProject runs everything between project creation and the invite
// notification. Failures here and in the notification itself roll the
// project back in createJob.
func (s *Service) initializeProject(ctx context.Context, project *models.Project, req messages.JobRequest) error {
	if err := s.writeJobRequestArtifact(project.Slug, req); err != nil {
		return err
	}

	// The manifest is persisted byte-for-byte before parsing so fields
	// unknown to the typed model are preserved.
	fetchStart := time.Now()
	raw, err := manifest.FetchBytes(ctx, s.client, req.JobManifest)
	if err != nil {
		s.stats.RecordFailure(metrics.OpManifestFetch)
		return fmt.Errorf("fetch manifest: %w", err)
	}
	s.stats.RecordTiming(metrics.OpManifestFetch, time.Since(fetchStart))
	if err := s.writeManifestArtifact(project.Slug, raw); err != nil {
		return err
	}

	mf, err := manifest.Load(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if err := mf.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	if title := mf.ConfigString(manifest.ConfigKeyProjectTitle, ""); title != "" {
		project.Name = title
		if err := s.projects.UpdateProject(ctx, project); err != nil {
			return fmt.Errorf("set project title: %w", err)
		}
	}

	return s.bootstrap(ctx, project, mf)
}
