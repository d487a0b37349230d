package view

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"time"
)

const (
	baseFilename    = "base.html"
	partialsPattern = "partials/*.html"
)

// ErrNotFound is returned when a view does not exist.
var ErrNotFound = errors.New("view not found")

// Funcs are available in every view.
var Funcs = template.FuncMap{
	"minutes": func(d time.Duration) int {
		return int(d.Round(time.Minute) / time.Minute)
	},
}

// View is a collection of templates used to render a single HTML page.
//
// A view combines the following templates:
// - base.html (required)
// - partials/*.html (optional)
// - {name}.html (required unless name is empty or "base")
type View struct {
	name     string
	template *template.Template
}

// Parse parses the file system and returns a view for the given name.
func Parse(viewFS fs.FS, name string) (*View, error) {
	l, err := parseLayout(viewFS)
	if err != nil {
		return nil, err
	}

	return l.view(viewFS, name)
}

// Name returns the name of the view.
func (v *View) Name() string {
	return v.name
}

// Render executes the view and writes the result to w.
func (v *View) Render(w io.Writer, data any) error {
	return v.template.Execute(w, data)
}

// layout is the base template together with all partials. Views
// are clones of the layout with their own page template added.
type layout struct {
	template *template.Template
}

func parseLayout(viewFS fs.FS) (*layout, error) {
	partials, err := fs.Glob(viewFS, partialsPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob for partials: %w", err)
	}

	files := append([]string{baseFilename}, partials...)

	t, err := template.New(baseFilename).Funcs(Funcs).ParseFS(viewFS, files...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	return &layout{template: t}, nil
}

func (l *layout) view(viewFS fs.FS, name string) (*View, error) {
	// Names end up in file paths, only allow a safe subset.
	err := validateName(name)
	if err != nil {
		return nil, err
	}

	t, err := l.template.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to clone layout: %w", err)
	}

	if name != "" && name != "base" {
		t, err = t.ParseFS(viewFS, name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse view %q: %w", name, err)
		}
	}

	return &View{
		name:     name,
		template: t,
	}, nil
}

// validateName checks if all characters are alphanumeric, dashes or underscores.
func validateName(name string) error {
	for _, c := range name {
		if !validViewRune(c) {
			return fmt.Errorf("invalid character %q in view name: %s", c, name)
		}
	}
	return nil
}

func validViewRune(r rune) bool {
	return r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
