package registry

import (
	"context"
	"fmt"
	"io"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/annobridge/internal/models"
)

type sourceDocumentRow struct {
	Project string `json:"project"`
	Name    string `json:"name"`
	Format  string `json:"format"`
	State   string `json:"state"`
}

func (r sourceDocumentRow) toModel() models.SourceDocument {
	return models.SourceDocument{
		ProjectSlug: r.Project,
		Name:        r.Name,
		Format:      r.Format,
		State:       models.SourceDocumentState(r.State),
	}
}

type annotationDocumentRow struct {
	Project  string        `json:"project"`
	Document string        `json:"document"`
	Username string        `json:"username"`
	State    string        `json:"state"`
	Spans    []models.Span `json:"spans"`
}

func (r annotationDocumentRow) toModel() models.AnnotationDocument {
	return models.AnnotationDocument{
		ProjectSlug:  r.Project,
		DocumentName: r.Document,
		Username:     r.Username,
		State:        models.AnnotationDocumentState(r.State),
		Spans:        r.Spans,
	}
}

type contentRow struct {
	Content string `json:"content"`
}

type spansRow struct {
	Spans []models.Span `json:"spans"`
}

// CreateSourceDocument stores a source document and its content. The
// content reader is drained fully; a duplicate name within the project
// returns ErrAlreadyExists.
func (c *Client) CreateSourceDocument(ctx context.Context, doc *models.SourceDocument, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("read document content: %w", err)
	}

	_, err = surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("source_document", $key) SET
			project = $slug,
			name = $name,
			format = $format,
			state = $state,
			content = $content
	`, map[string]any{
		"key":     documentKey(doc.ProjectSlug, doc.Name),
		"slug":    doc.ProjectSlug,
		"name":    doc.Name,
		"format":  doc.Format,
		"state":   string(doc.State),
		"content": string(data),
	})
	if err != nil {
		return fmt.Errorf("create source document: %w", wrapQueryError(err))
	}
	return nil
}

// ListSourceDocuments returns all source documents of a project, ordered
// by name.
func (c *Client) ListSourceDocuments(ctx context.Context, slug string) ([]models.SourceDocument, error) {
	results, err := surrealdb.Query[[]sourceDocumentRow](ctx, c.db, `
		SELECT project, name, format, state FROM source_document
		WHERE project = $slug ORDER BY name
	`, map[string]any{"slug": slug})
	if err != nil {
		return nil, fmt.Errorf("list source documents: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.SourceDocument{}, nil
	}
	docs := make([]models.SourceDocument, 0, len((*results)[0].Result))
	for _, row := range (*results)[0].Result {
		docs = append(docs, row.toModel())
	}
	return docs, nil
}

// GetSourceDocumentContent returns the stored content of a document.
func (c *Client) GetSourceDocumentContent(ctx context.Context, slug, name string) ([]byte, error) {
	results, err := surrealdb.Query[[]contentRow](ctx, c.db, `
		SELECT content FROM type::record("source_document", $key)
	`, map[string]any{"key": documentKey(slug, name)})
	if err != nil {
		return nil, fmt.Errorf("get document content: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get document content %q: %w", name, ErrNotFound)
	}
	return []byte((*results)[0].Result[0].Content), nil
}

// SetSourceDocumentState transitions a document's state.
func (c *Client) SetSourceDocumentState(ctx context.Context, slug, name string, state models.SourceDocumentState) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("source_document", $key) SET state = $state
	`, map[string]any{"key": documentKey(slug, name), "state": string(state)})
	if err != nil {
		return fmt.Errorf("set document state: %w", wrapQueryError(err))
	}
	return nil
}

// WriteAnnotation upserts one annotator's work on a document.
func (c *Client) WriteAnnotation(ctx context.Context, ann *models.AnnotationDocument) error {
	spans := ann.Spans
	if spans == nil {
		spans = []models.Span{}
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("annotation_document", $key) SET
			project = $slug,
			document = $document,
			username = $username,
			state = $state,
			spans = $spans
	`, map[string]any{
		"key":      annotationKey(ann.ProjectSlug, ann.DocumentName, ann.Username),
		"slug":     ann.ProjectSlug,
		"document": ann.DocumentName,
		"username": ann.Username,
		"state":    string(ann.State),
		"spans":    spans,
	})
	if err != nil {
		return fmt.Errorf("write annotation: %w", wrapQueryError(err))
	}
	return nil
}

// ListAnnotations returns every annotator's work on a document.
func (c *Client) ListAnnotations(ctx context.Context, slug, docName string) ([]models.AnnotationDocument, error) {
	return c.listAnnotations(ctx, slug, docName, false)
}

// ListFinishedAnnotations returns only the annotation documents whose
// annotator has marked them finished.
func (c *Client) ListFinishedAnnotations(ctx context.Context, slug, docName string) ([]models.AnnotationDocument, error) {
	return c.listAnnotations(ctx, slug, docName, true)
}

func (c *Client) listAnnotations(ctx context.Context, slug, docName string, finishedOnly bool) ([]models.AnnotationDocument, error) {
	sql := `
		SELECT project, document, username, state, spans FROM annotation_document
		WHERE project = $slug AND document = $document
	`
	if finishedOnly {
		sql += ` AND state = $state`
	}
	sql += ` ORDER BY username`

	vars := map[string]any{"slug": slug, "document": docName}
	if finishedOnly {
		vars["state"] = string(models.AnnotationDocumentStateFinished)
	}

	results, err := surrealdb.Query[[]annotationDocumentRow](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.AnnotationDocument{}, nil
	}
	anns := make([]models.AnnotationDocument, 0, len((*results)[0].Result))
	for _, row := range (*results)[0].Result {
		anns = append(anns, row.toModel())
	}
	return anns, nil
}

// WriteCuration upserts the merged curation result for a document.
func (c *Client) WriteCuration(ctx context.Context, slug, docName string, spans []models.Span) error {
	if spans == nil {
		spans = []models.Span{}
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("curation", $key) SET
			project = $slug,
			document = $document,
			spans = $spans
	`, map[string]any{
		"key":      documentKey(slug, docName),
		"slug":     slug,
		"document": docName,
		"spans":    spans,
	})
	if err != nil {
		return fmt.Errorf("write curation: %w", wrapQueryError(err))
	}
	return nil
}

// GetCuration returns the curated spans for a document, or ErrNotFound
// when the document has not been curated.
func (c *Client) GetCuration(ctx context.Context, slug, docName string) ([]models.Span, error) {
	results, err := surrealdb.Query[[]spansRow](ctx, c.db, `
		SELECT spans FROM type::record("curation", $key)
	`, map[string]any{"key": documentKey(slug, docName)})
	if err != nil {
		return nil, fmt.Errorf("get curation: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get curation %q: %w", docName, ErrNotFound)
	}
	return (*results)[0].Result[0].Spans, nil
}

func documentKey(slug, name string) string {
	return fmt.Sprintf("%s/%s", slug, name)
}

func annotationKey(slug, name, username string) string {
	return fmt.Sprintf("%s/%s/%s", slug, name, username)
}
