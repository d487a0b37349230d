package view

import (
	"fmt"
	"io"
	"io/fs"
	"text/template"

	"github.com/inkpost/inkpost/internal/email"
)

const ext = ".tmpl"

// View is a template used to render email messages. Every view defines
// a "subject" and a "body" template.
type View struct {
	tmpl *template.Template
}

// Parse parses {name}.tmpl from the root of viewFS.
func Parse(viewFS fs.FS, name string) (*View, error) {
	// Names end up in file paths, only allow a safe subset.
	if err := validateName(name); err != nil {
		return nil, err
	}

	tmpl, err := template.New(name).Option("missingkey=error").ParseFS(viewFS, name+ext)
	if err != nil {
		return nil, err
	}

	for _, el := range []email.TemplateElement{email.ElementSubject, email.ElementBody} {
		if tmpl.Lookup(string(el)) == nil {
			return nil, fmt.Errorf("view %q is missing the %s template", name, el)
		}
	}

	return &View{
		tmpl: tmpl,
	}, nil
}

func (v *View) Render(w io.Writer, element email.TemplateElement, data any) error {
	return v.tmpl.ExecuteTemplate(w, string(element), data)
}

// validateName checks if all characters are alphanumeric, dashes or underscores.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty view name")
	}

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
