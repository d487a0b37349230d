package view

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
)

// MemRenderer renders views that were parsed up front.
type MemRenderer struct {
	views map[string]*View
}

// NewMemRenderer parses the layout once and every page in viewFS on top of it.
func NewMemRenderer(viewFS fs.FS) (*MemRenderer, error) {
	l, err := parseLayout(viewFS)
	if err != nil {
		return nil, err
	}

	files, err := fs.Glob(viewFS, "*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to glob for views: %w", err)
	}

	views := make(map[string]*View, len(files))
	for _, file := range files {
		name := strings.TrimSuffix(path.Base(file), ".html")

		v, err := l.view(viewFS, name)
		if err != nil {
			return nil, err
		}

		views[name] = v
	}

	return &MemRenderer{
		views: views,
	}, nil
}

func (r *MemRenderer) Render(w io.Writer, name string, data any) error {
	v, ok := r.views[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	return v.Render(w, data)
}
