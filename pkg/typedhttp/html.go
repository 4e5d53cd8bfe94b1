package typedhttp

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
)

// HTMLEncoder implements ResponseEncoder by executing a named template.
type HTMLEncoder[T any] struct {
	templates *template.Template
	name      string
}

// NewHTMLEncoder creates an encoder that renders name from templates.
func NewHTMLEncoder[T any](templates *template.Template, name string) *HTMLEncoder[T] {
	return &HTMLEncoder[T]{
		templates: templates,
		name:      name,
	}
}

// Encode renders into a buffer first so a template failure can still
// produce a clean 500.
func (e *HTMLEncoder[T]) Encode(w http.ResponseWriter, data T, statusCode int) error {
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, e.name, data); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return fmt.Errorf("render %s: %w", e.name, err)
	}

	w.Header().Set("Content-Type", e.ContentType())
	w.WriteHeader(statusCode)

	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("write %s: %w", e.name, err)
	}

	return nil
}

// ContentType returns the content type for HTML encoding.
func (e *HTMLEncoder[T]) ContentType() string {
	return "text/html; charset=utf-8"
}
