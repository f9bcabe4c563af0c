package exchange

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/raphaelgruber/annobridge/internal/models"
)

// buildExportArchive writes the full project, including in-progress work,
// into a temporary zip file and returns its path. The caller removes the
// file when done.
func (s *Service) buildExportArchive(ctx context.Context, slug string) (string, error) {
	tmp, err := os.CreateTemp("", "annobridge-export-*.zip")
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}

	if err := s.writeExport(ctx, slug, tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close export file: %w", err)
	}
	return tmp.Name(), nil
}

func (s *Service) writeExport(ctx context.Context, slug string, dst *os.File) error {
	zw := zip.NewWriter(dst)

	project, err := s.projects.GetProject(ctx, slug)
	if err != nil {
		return fmt.Errorf("read project: %w", err)
	}
	if err := writeZipJSON(zw, "project.json", project); err != nil {
		return err
	}

	docs, err := s.documents.ListSourceDocuments(ctx, slug)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, doc := range docs {
		content, err := s.documents.GetSourceDocumentContent(ctx, slug, doc.Name)
		if err != nil {
			return fmt.Errorf("read document %q: %w", doc.Name, err)
		}
		w, err := zw.Create("documents/" + doc.Name)
		if err != nil {
			return fmt.Errorf("add document %q: %w", doc.Name, err)
		}
		if _, err := w.Write(content); err != nil {
			return fmt.Errorf("write document %q: %w", doc.Name, err)
		}

		anns, err := s.documents.ListAnnotations(ctx, slug, doc.Name)
		if err != nil {
			return fmt.Errorf("list annotations for %q: %w", doc.Name, err)
		}
		for _, ann := range anns {
			name := fmt.Sprintf("annotations/%s/%s.json", doc.Name, ann.Username)
			if err := writeZipJSON(zw, name, ann); err != nil {
				return err
			}
		}

		if doc.State == models.SourceDocumentStateCurationFinished {
			spans, err := s.documents.GetCuration(ctx, slug, doc.Name)
			if err != nil {
				return fmt.Errorf("read curation for %q: %w", doc.Name, err)
			}
			if err := writeZipJSON(zw, "curation/"+doc.Name+".json", spans); err != nil {
				return err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

func writeZipJSON(zw *zip.Writer, name string, v any) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
