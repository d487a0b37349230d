package view

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/inkpost/inkpost/internal/email"
)

// FSRenderer parses the view on every render.
type FSRenderer struct {
	fs fs.FS
}

func NewFSRenderer(fs fs.FS) *FSRenderer {
	return &FSRenderer{fs: fs}
}

func (r *FSRenderer) Render(w io.Writer, name string, element email.TemplateElement, data any) error {
	v, err := Parse(r.fs, name)
	if err != nil {
		return err
	}

	return v.Render(w, element, data)
}

// MemRenderer renders views that were parsed up front, so broken
// templates are found at startup instead of when an email is sent.
type MemRenderer struct {
	views map[string]*View
}

func NewMemRenderer(viewFS fs.FS) (*MemRenderer, error) {
	files, err := fs.Glob(viewFS, "*"+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to glob for email views: %w", err)
	}

	views := make(map[string]*View, len(files))
	for _, file := range files {
		name := strings.TrimSuffix(path.Base(file), ext)

		v, err := Parse(viewFS, name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse email view %q: %w", name, err)
		}

		views[name] = v
	}

	return &MemRenderer{views: views}, nil
}

func (r *MemRenderer) Render(w io.Writer, name string, element email.TemplateElement, data any) error {
	v, ok := r.views[name]
	if !ok {
		return fmt.Errorf("email view %q not found", name)
	}

	return v.Render(w, element, data)
}
