package view

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
)

// FSRenderer parses views on every render, so template changes on disk
// show up without a restart.
type FSRenderer struct {
	fs fs.FS
}

// NewFSRenderer returns a new FSRenderer.
func NewFSRenderer(fs fs.FS) *FSRenderer {
	return &FSRenderer{fs: fs}
}

func (r *FSRenderer) Render(w io.Writer, name string, data any) error {
	if name != "" && name != "base" {
		_, err := fs.Stat(r.fs, name+".html")
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
	}

	v, err := Parse(r.fs, name)
	if err != nil {
		return fmt.Errorf("failed to parse view: %w", err)
	}

	return v.Render(w, data)
}
