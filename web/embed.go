// Package web embeds the browser chat client served at the site root.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// Reserved prefixes never fall back to the chat page.
var reserved = []string{"api/", "ws/"}

// Handler serves the embedded chat client. Unknown paths get index.html,
// except under the API and websocket prefixes, which get a plain 404.
func Handler() http.Handler {
	page, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: embedded dist directory missing: " + err.Error())
	}
	files := http.FileServer(http.FS(page))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		for _, p := range reserved {
			if strings.HasPrefix(name, p) {
				http.NotFound(w, r)
				return
			}
		}

		if name != "" && name != "index.html" {
			if info, err := fs.Stat(page, name); err == nil && !info.IsDir() {
				files.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("Cache-Control", "no-cache")
		r.URL.Path = "/"
		files.ServeHTTP(w, r)
	})
}
