package models

// Document format identifiers.
const (
	FormatText = "text"
)

// SourceDocumentState tracks a document through annotation and curation.
type SourceDocumentState string

const (
	SourceDocumentStateNew              SourceDocumentState = "NEW"
	SourceDocumentStateAnnotationDone   SourceDocumentState = "ANNOTATION_FINISHED"
	SourceDocumentStateCurationFinished SourceDocumentState = "CURATION_FINISHED"
)

// AnnotationDocumentState is the per-annotator state on a source document.
type AnnotationDocumentState string

const (
	AnnotationDocumentStateInProgress AnnotationDocumentState = "IN_PROGRESS"
	AnnotationDocumentStateFinished   AnnotationDocumentState = "FINISHED"
)

// SourceDocument is one unit of annotatable content within a project.
// The name is unique per project and derives from the datapoint URI.
type SourceDocument struct {
	ProjectSlug string              `json:"project_slug"`
	Name        string              `json:"name"`
	Format      string              `json:"format"`
	State       SourceDocumentState `json:"state"`
}

// Span is a single annotation: a labelled region of a source document.
// Document-level annotations use a zero-width span on the document layer.
type Span struct {
	Layer string `json:"layer"`
	Begin int    `json:"begin"`
	End   int    `json:"end"`
	Value string `json:"value"`
}

// AnnotationDocument is one annotator's work on one source document.
type AnnotationDocument struct {
	ProjectSlug  string                  `json:"project_slug"`
	DocumentName string                  `json:"document_name"`
	Username     string                  `json:"username"`
	State        AnnotationDocumentState `json:"state"`
	Spans        []Span                  `json:"spans,omitempty"`
}
