// Package web embeds the static assets served by the HTTP surface.
package web

import (
	"embed"
)

//go:embed live.html
var files embed.FS

// LiveViewHTML returns the live task view page template text.
func LiveViewHTML() (string, error) {
	data, err := files.ReadFile("live.html")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
