package exchange

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/annobridge/internal/manifest"
	"github.com/raphaelgruber/annobridge/internal/models"
)

// Bootstrap defaults.
const (
	// serviceUsername is the account the intake principal acts as; it
	// receives manager and curator roles on every bootstrapped project.
	serviceUsername = "exchange-service"

	// defaultAnnotationsPerDocument applies when the manifest carries no
	// usable minimum-repeats value.
	defaultAnnotationsPerDocument = 3

	abandonmentTimeout = 24 * time.Hour

	inviteExpirationMonths = 6

	tagsetName = "Tagset"

	invitationText = "To earn credit for your annotations, please enter your " +
		"Ethereum wallet address as user ID below."
	userIDPlaceholder = "Ethereum wallet address"
)

// bootstrapStep is one initialization applied to a freshly created project.
// Steps run in order exactly once; the first failure aborts the bootstrap
// and the caller rolls the project back.
type bootstrapStep struct {
	name string
	run  func(ctx context.Context, project *models.Project, mf *manifest.JobManifest) error
}

// bootstrap turns a freshly created project into a working annotation task
// described by the manifest.
func (s *Service) bootstrap(ctx context.Context, project *models.Project, mf *manifest.JobManifest) error {
	steps := []bootstrapStep{
		{"project roles", s.initProjectRoles},
		{"project description", s.applyDescription},
		{"task schema", s.createTaskSchema},
		{"task data", s.runTaskDataImport},
		{"workload", s.configureWorkload},
		{"annotator access", s.provisionInvite},
	}

	for _, step := range steps {
		if err := step.run(ctx, project, mf); err != nil {
			return fmt.Errorf("bootstrap %s: %w", step.name, err)
		}
		s.log.Debug("bootstrap step complete", "project", project.Slug, "step", step.name)
	}
	return nil
}

func (s *Service) initProjectRoles(ctx context.Context, project *models.Project, _ *manifest.JobManifest) error {
	return s.projects.GrantPermissions(ctx, project.Slug, serviceUsername,
		models.PermissionManager, models.PermissionCurator)
}

func (s *Service) applyDescription(ctx context.Context, project *models.Project, mf *manifest.JobManifest) error {
	project.Description = BuildDescription(mf.RequesterDescription, mf.RequesterQuestion)
	return s.projects.UpdateProject(ctx, project)
}

// createTaskSchema branches on the manifest request type. Any other value
// is a fatal configuration error.
func (s *Service) createTaskSchema(ctx context.Context, project *models.Project, mf *manifest.JobManifest) error {
	switch mf.RequestType {
	case manifest.RequestTypeSpanSelect:
		return s.createSpanSelectionSchema(ctx, project, mf)
	case manifest.RequestTypeDocumentTagging:
		return s.createDocumentTaggingSchema(ctx, project, mf)
	default:
		return fmt.Errorf("unsupported request type %q", mf.RequestType)
	}
}

func (s *Service) createSpanSelectionSchema(ctx context.Context, project *models.Project, mf *manifest.JobManifest) error {
	// Unsupported anchoring/overlap values fall back to the defaults
	// rather than erroring.
	anchoring := models.AnchoringModeTokens
	if mf.ConfigString(manifest.ConfigKeyAnchoring, manifest.AnchoringTokens) == manifest.AnchoringSentences {
		anchoring = models.AnchoringModeSentences
	}
	overlap := models.OverlapModeNone
	if mf.ConfigString(manifest.ConfigKeyOverlap, manifest.OverlapNone) == manifest.OverlapAny {
		overlap = models.OverlapModeAny
	}

	layer := &models.AnnotationLayer{
		ProjectSlug:   project.Slug,
		Name:          models.SpanLayerName,
		UIName:        "Span",
		Type:          models.LayerTypeSpan,
		Anchoring:     anchoring,
		Overlap:       overlap,
		CrossSentence: mf.ConfigBool(manifest.ConfigKeyCrossSentence, false),
	}
	if err := s.schema.CreateLayer(ctx, layer); err != nil {
		return fmt.Errorf("create span layer: %w", err)
	}
	return s.attachValueFeature(ctx, project, mf, layer.Name)
}

func (s *Service) createDocumentTaggingSchema(ctx context.Context, project *models.Project, mf *manifest.JobManifest) error {
	layer := &models.AnnotationLayer{
		ProjectSlug: project.Slug,
		Name:        models.DocumentTagLayerName,
		UIName:      "Document Tag",
		Type:        models.LayerTypeDocumentTag,
	}
	if err := s.schema.CreateLayer(ctx, layer); err != nil {
		return fmt.Errorf("create document tag layer: %w", err)
	}
	return s.attachValueFeature(ctx, project, mf, layer.Name)
}

// attachValueFeature adds the single string-valued feature "value" to the
// task layer, bound to a closed tag set when the manifest restricts the
// answer set.
func (s *Service) attachValueFeature(ctx context.Context, project *models.Project, mf *manifest.JobManifest, layerName string) error {
	feature := &models.AnnotationFeature{
		ProjectSlug: project.Slug,
		Layer:       layerName,
		Name:        "value",
		UIName:      "Value",
		Type:        "string",
	}

	if len(mf.RequesterRestrictedAnswerSet) > 0 {
		labels := make([]string, 0, len(mf.RequesterRestrictedAnswerSet))
		for label := range mf.RequesterRestrictedAnswerSet {
			labels = append(labels, label)
		}
		sort.Strings(labels)

		tags := make([]models.Tag, 0, len(labels))
		for _, label := range labels {
			tag := models.Tag{Name: label}
			if desc := strings.TrimSpace(mf.RequesterRestrictedAnswerSet[label].GetOrDefault("en", "")); desc != "" {
				tag.Description = desc
			}
			tags = append(tags, tag)
		}

		tagset := &models.TagSet{
			ProjectSlug: project.Slug,
			Name:        tagsetName,
			CreateTag:   false,
		}
		if err := s.schema.CreateTagSet(ctx, tagset, tags); err != nil {
			return fmt.Errorf("create tagset: %w", err)
		}
		feature.TagsetName = tagset.Name
	}

	if err := s.schema.CreateFeature(ctx, feature); err != nil {
		return fmt.Errorf("create value feature: %w", err)
	}
	return nil
}

func (s *Service) runTaskDataImport(ctx context.Context, project *models.Project, mf *manifest.JobManifest) error {
	if !mf.HasTaskData() {
		s.log.Debug("manifest carries no task data, skipping import", "project", project.Slug)
		return nil
	}
	return s.importTaskData(ctx, project, mf)
}

func (s *Service) configureWorkload(ctx context.Context, project *models.Project, mf *manifest.JobManifest) error {
	annotations := defaultAnnotationsPerDocument
	if mf.RequesterMinRepeats > 0 {
		annotations = mf.RequesterMinRepeats
	}
	return s.workload.SetWorkload(ctx, models.WorkloadConfig{
		ProjectSlug:        project.Slug,
		Type:               models.WorkloadTypeDynamic,
		DefaultAnnotations: annotations,
		AbandonmentTimeout: abandonmentTimeout,
		AbandonmentIgnored: true,
	})
}

func (s *Service) provisionInvite(ctx context.Context, project *models.Project, mf *manifest.JobManifest) error {
	expiration := time.Now().AddDate(0, inviteExpirationMonths, 0)
	if mf.ExpirationDate > 0 {
		expiration = time.Unix(mf.ExpirationDate, 0)
	}

	docs, err := s.documents.ListSourceDocuments(ctx, project.Slug)
	if err != nil {
		return fmt.Errorf("count imported documents: %w", err)
	}

	invite := &models.ProjectInvite{
		ID:                          uuid.NewString(),
		ProjectSlug:                 project.Slug,
		ExpirationDate:              expiration,
		GuestAccessible:             true,
		InvitationText:              invitationText,
		UserIDPlaceholder:           userIDPlaceholder,
		MaxAnnotatorCount:           len(docs),
		DisableOnAnnotationComplete: true,
		AskForEmail:                 false,
	}
	if err := s.invites.CreateInvite(ctx, invite); err != nil {
		return fmt.Errorf("create invite: %w", err)
	}
	return nil
}
