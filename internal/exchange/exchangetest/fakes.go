// Package exchangetest provides in-memory implementations of the
// annotation-platform collaborator contracts for use in tests.
package exchangetest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/raphaelgruber/annobridge/internal/models"
)

// Registry is an in-memory project/permission registry.
type Registry struct {
	mu       sync.Mutex
	projects map[string]*models.Project
	perms    map[string]map[string][]models.PermissionLevel
	users    map[string]models.User
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		projects: make(map[string]*models.Project),
		perms:    make(map[string]map[string][]models.PermissionLevel),
		users:    make(map[string]models.User),
	}
}

// AddUser registers a platform account so permission listings can resolve
// wallets.
func (r *Registry) AddUser(u models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.Username] = u
}

// HasProject reports whether a project with the slug exists.
func (r *Registry) HasProject(slug string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.projects[slug]
	return ok
}

// Permissions returns the levels granted to username on the project.
func (r *Registry) Permissions(slug, username string) []models.PermissionLevel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.PermissionLevel(nil), r.perms[slug][username]...)
}

func (r *Registry) CreateProject(_ context.Context, p *models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.Slug]; ok {
		return fmt.Errorf("project %q already exists", p.Slug)
	}
	cp := *p
	r.projects[p.Slug] = &cp
	return nil
}

func (r *Registry) GetProject(_ context.Context, slug string) (*models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[slug]
	if !ok {
		return nil, fmt.Errorf("project %q not found", slug)
	}
	cp := *p
	return &cp, nil
}

func (r *Registry) UpdateProject(_ context.Context, p *models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.Slug]; !ok {
		return fmt.Errorf("project %q not found", p.Slug)
	}
	cp := *p
	r.projects[p.Slug] = &cp
	return nil
}

func (r *Registry) DeleteProject(_ context.Context, slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, slug)
	delete(r.perms, slug)
	return nil
}

func (r *Registry) SetProjectState(_ context.Context, slug string, state models.ProjectState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[slug]
	if !ok {
		return fmt.Errorf("project %q not found", slug)
	}
	p.State = state
	return nil
}

func (r *Registry) GrantPermissions(_ context.Context, slug, username string, levels ...models.PermissionLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.perms[slug] == nil {
		r.perms[slug] = make(map[string][]models.PermissionLevel)
	}
	r.perms[slug][username] = append(r.perms[slug][username], levels...)
	return nil
}

func (r *Registry) ListUsersWithPermission(_ context.Context, slug string, level models.PermissionLevel) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.User
	for username, levels := range r.perms[slug] {
		for _, l := range levels {
			if l == level {
				if u, ok := r.users[username]; ok {
					out = append(out, u)
				} else {
					out = append(out, models.User{Username: username})
				}
				break
			}
		}
	}
	return out, nil
}

// DocumentStore is an in-memory document and annotation store.
type DocumentStore struct {
	mu       sync.Mutex
	docs     map[string][]*models.SourceDocument
	content  map[string][]byte
	anns     map[string][]models.AnnotationDocument
	curation map[string][]models.Span
}

// NewDocumentStore creates an empty document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs:     make(map[string][]*models.SourceDocument),
		content:  make(map[string][]byte),
		anns:     make(map[string][]models.AnnotationDocument),
		curation: make(map[string][]models.Span),
	}
}

func docKey(slug, name string) string { return slug + "/" + name }

// AddAnnotation records one annotator's work directly, standing in for the
// external annotation surface.
func (d *DocumentStore) AddAnnotation(ann models.AnnotationDocument) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := docKey(ann.ProjectSlug, ann.DocumentName)
	d.anns[key] = append(d.anns[key], ann)
}

func (d *DocumentStore) CreateSourceDocument(_ context.Context, doc *models.SourceDocument, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *doc
	d.docs[doc.ProjectSlug] = append(d.docs[doc.ProjectSlug], &cp)
	d.content[docKey(doc.ProjectSlug, doc.Name)] = data
	return nil
}

func (d *DocumentStore) ListSourceDocuments(_ context.Context, slug string) ([]models.SourceDocument, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.SourceDocument, 0, len(d.docs[slug]))
	for _, doc := range d.docs[slug] {
		out = append(out, *doc)
	}
	return out, nil
}

func (d *DocumentStore) GetSourceDocumentContent(_ context.Context, slug, name string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.content[docKey(slug, name)]
	if !ok {
		return nil, fmt.Errorf("document %q not found", name)
	}
	return data, nil
}

func (d *DocumentStore) SetSourceDocumentState(_ context.Context, slug, name string, state models.SourceDocumentState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, doc := range d.docs[slug] {
		if doc.Name == name {
			doc.State = state
			return nil
		}
	}
	return fmt.Errorf("document %q not found", name)
}

func (d *DocumentStore) ListAnnotations(_ context.Context, slug, docName string) ([]models.AnnotationDocument, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.AnnotationDocument(nil), d.anns[docKey(slug, docName)]...), nil
}

func (d *DocumentStore) ListFinishedAnnotations(_ context.Context, slug, docName string) ([]models.AnnotationDocument, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.AnnotationDocument
	for _, ann := range d.anns[docKey(slug, docName)] {
		if ann.State == models.AnnotationDocumentStateFinished {
			out = append(out, ann)
		}
	}
	return out, nil
}

func (d *DocumentStore) WriteCuration(_ context.Context, slug, docName string, spans []models.Span) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.curation[docKey(slug, docName)] = append([]models.Span(nil), spans...)
	return nil
}

func (d *DocumentStore) GetCuration(_ context.Context, slug, docName string) ([]models.Span, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Span(nil), d.curation[docKey(slug, docName)]...), nil
}

// SchemaRegistry records created task schema elements.
type SchemaRegistry struct {
	mu       sync.Mutex
	layers   []models.AnnotationLayer
	features []models.AnnotationFeature
	tagsets  []models.TagSet
	tags     map[string][]models.Tag
}

// NewSchemaRegistry creates an empty schema registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{tags: make(map[string][]models.Tag)}
}

// Layers returns the created layers.
func (f *SchemaRegistry) Layers() []models.AnnotationLayer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AnnotationLayer(nil), f.layers...)
}

// Features returns the created features.
func (f *SchemaRegistry) Features() []models.AnnotationFeature {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AnnotationFeature(nil), f.features...)
}

// TagSets returns the created tag sets.
func (f *SchemaRegistry) TagSets() []models.TagSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TagSet(nil), f.tagsets...)
}

// Tags returns the tags of one tag set.
func (f *SchemaRegistry) Tags(tagset string) []models.Tag {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Tag(nil), f.tags[tagset]...)
}

func (f *SchemaRegistry) CreateLayer(_ context.Context, layer *models.AnnotationLayer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layers = append(f.layers, *layer)
	return nil
}

func (f *SchemaRegistry) CreateFeature(_ context.Context, feature *models.AnnotationFeature) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.features = append(f.features, *feature)
	return nil
}

func (f *SchemaRegistry) CreateTagSet(_ context.Context, tagset *models.TagSet, tags []models.Tag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagsets = append(f.tagsets, *tagset)
	f.tags[tagset.Name] = append([]models.Tag(nil), tags...)
	return nil
}

// WorkloadManager records workload configurations per project.
type WorkloadManager struct {
	mu   sync.Mutex
	cfgs map[string]models.WorkloadConfig
}

// NewWorkloadManager creates an empty workload manager.
func NewWorkloadManager() *WorkloadManager {
	return &WorkloadManager{cfgs: make(map[string]models.WorkloadConfig)}
}

// Workload returns the configuration stored for the project.
func (f *WorkloadManager) Workload(slug string) models.WorkloadConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfgs[slug]
}

func (f *WorkloadManager) SetWorkload(_ context.Context, cfg models.WorkloadConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfgs[cfg.ProjectSlug] = cfg
	return nil
}

// InviteService stores one invite per project.
type InviteService struct {
	mu      sync.Mutex
	invites map[string]*models.ProjectInvite
}

// NewInviteService creates an empty invite service.
func NewInviteService() *InviteService {
	return &InviteService{invites: make(map[string]*models.ProjectInvite)}
}

func (f *InviteService) CreateInvite(_ context.Context, invite *models.ProjectInvite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *invite
	f.invites[invite.ProjectSlug] = &cp
	return nil
}

func (f *InviteService) GetInvite(_ context.Context, slug string) (*models.ProjectInvite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invites[slug]
	if !ok {
		return nil, fmt.Errorf("no invite for project %q", slug)
	}
	cp := *inv
	return &cp, nil
}

// BlobStore keeps uploaded objects in memory.
type BlobStore struct {
	mu       sync.Mutex
	Enabled  bool
	Endpoint string
	objects  map[string][]byte
}

// NewBlobStore creates a blob store; enabled controls Configured().
func NewBlobStore(enabled bool) *BlobStore {
	return &BlobStore{
		Enabled:  enabled,
		Endpoint: "http://blobs.test/bucket",
		objects:  make(map[string][]byte),
	}
}

// Object returns an uploaded object and whether it exists.
func (f *BlobStore) Object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return data, ok
}

func (f *BlobStore) Configured() bool { return f.Enabled }

func (f *BlobStore) Upload(_ context.Context, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *BlobStore) ObjectURL(key string) string {
	return f.Endpoint + "/" + key
}
