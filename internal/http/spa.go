package http

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// SPAHandler serves built frontend assets from a directory. Paths that do not name a file
// fall back to index.html so client-side routes resolve. Paths under the API prefix are never
// answered with the SPA.
type SPAHandler struct {
	staticPath string
	indexPath  string
	apiPrefix  string
}

// NewSPAHandler returns an SPAHandler rooted at dir.
func NewSPAHandler(dir, apiPrefix string) *SPAHandler {
	return &SPAHandler{staticPath: dir, indexPath: "index.html", apiPrefix: apiPrefix}
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.apiPrefix != "" && (r.URL.Path == h.apiPrefix || strings.HasPrefix(r.URL.Path, h.apiPrefix+"/")) {
		apiNotFound(w, r)
		return
	}

	// Clean rejects ".." segments before joining onto the static root.
	path := filepath.Join(h.staticPath, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))

	fi, err := os.Stat(path)
	if os.IsNotExist(err) || (err == nil && fi.IsDir()) {
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
}
