package httpapi

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var embeddedStatic embed.FS

func staticFS() fs.FS {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		return embeddedStatic
	}
	return sub
}

func newStaticHandler() http.Handler {
	return http.FileServer(http.FS(staticFS()))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	serveEmbedded(w, "index.html", "text/html; charset=utf-8")
}

// The worker script must be served from the root to control the whole page.
func (s *Server) handleServiceWorker(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Service-Worker-Allowed", "/")
	serveEmbedded(w, "js/service-worker.js", "application/javascript")
}

func serveEmbedded(w http.ResponseWriter, name, contentType string) {
	data, err := fs.ReadFile(staticFS(), name)
	if err != nil {
		http.NotFound(w, nil)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}
