package exchange

import (
	"context"
	"io"

	"github.com/raphaelgruber/annobridge/internal/models"
)

// ProjectRegistry is the project/permission surface of the annotation
// platform that the exchange core needs.
type ProjectRegistry interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, slug string) (*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, slug string) error
	SetProjectState(ctx context.Context, slug string, state models.ProjectState) error
	GrantPermissions(ctx context.Context, slug, username string, levels ...models.PermissionLevel) error
	ListUsersWithPermission(ctx context.Context, slug string, level models.PermissionLevel) ([]models.User, error)
}

// DocumentStore persists source documents, annotator work and curation
// output.
type DocumentStore interface {
	CreateSourceDocument(ctx context.Context, doc *models.SourceDocument, content io.Reader) error
	ListSourceDocuments(ctx context.Context, slug string) ([]models.SourceDocument, error)
	GetSourceDocumentContent(ctx context.Context, slug, name string) ([]byte, error)
	SetSourceDocumentState(ctx context.Context, slug, name string, state models.SourceDocumentState) error
	ListAnnotations(ctx context.Context, slug, docName string) ([]models.AnnotationDocument, error)
	ListFinishedAnnotations(ctx context.Context, slug, docName string) ([]models.AnnotationDocument, error)
	WriteCuration(ctx context.Context, slug, docName string, spans []models.Span) error
	GetCuration(ctx context.Context, slug, docName string) ([]models.Span, error)
}

// SchemaRegistry creates the task schema elements of a project.
type SchemaRegistry interface {
	CreateLayer(ctx context.Context, layer *models.AnnotationLayer) error
	CreateFeature(ctx context.Context, feature *models.AnnotationFeature) error
	CreateTagSet(ctx context.Context, tagset *models.TagSet, tags []models.Tag) error
}

// WorkloadManager configures how documents are assigned to annotators.
type WorkloadManager interface {
	SetWorkload(ctx context.Context, cfg models.WorkloadConfig) error
}

// InviteService creates and resolves project invites.
type InviteService interface {
	CreateInvite(ctx context.Context, invite *models.ProjectInvite) error
	GetInvite(ctx context.Context, slug string) (*models.ProjectInvite, error)
}

// BlobStore uploads result archives to the configured bucket.
type BlobStore interface {
	Configured() bool
	Upload(ctx context.Context, key string, body io.Reader) error
	ObjectURL(key string) string
}
