// Package web embeds the browser console served at /.
package web

import (
	"embed"
	"net/http"
)

// Content holds the console files (index.html, static/app.js, static/styles.css).
//
//go:embed index.html static
var Content embed.FS

// Handler serves index.html at / and the assets under /static/.
func Handler() http.Handler {
	return http.FileServerFS(Content)
}
