package notifications

import (
	"context"
	"fmt"
	"html/template"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/store"
)

func NewEmailLookupFunc(s *store.Store) EmailLookupFunc {
	return func(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
		return s.EmailsByIDs(ctx, ids)
	}
}

// each .html file must define {{define "name:subject"}} and {{define "name:body"}} blocks,
// where name matches the filename without extension.
func LoadTemplates(dir string) (*template.Template, error) {
	pattern := filepath.Join(dir, "*.html")
	tmpl, err := template.ParseGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates from %s: %w", dir, err)
	}
	return tmpl, nil
}
