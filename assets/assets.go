// Package assets embeds the files served and rendered by inkpost.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed templates/* emails/*.tmpl dist/*
var files embed.FS

var (
	// TemplateFS holds the html views, with base.html at the root.
	TemplateFS = mustSub("templates")
	// EmailFS holds the email templates.
	EmailFS = mustSub("emails")
	// DistFS holds the static files.
	DistFS = mustSub("dist")
)

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		panic("failed to subtree " + dir + " FS: " + err.Error())
	}
	return sub
}
