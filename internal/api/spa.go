package api

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// spaHandler serves the built front-end. Unknown paths get index.html so the
// client-side router can take over.
type spaHandler struct {
	dir   string
	files http.Handler
}

func newSPAHandler(dir string) http.Handler {
	return &spaHandler{dir: dir, files: http.FileServer(http.Dir(dir))}
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	full := filepath.Join(h.dir, filepath.FromSlash(strings.TrimPrefix(name, "/")))

	info, err := os.Stat(full)
	switch {
	case err == nil && !info.IsDir():
		h.files.ServeHTTP(w, r)
		return
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	http.ServeFile(w, r, filepath.Join(h.dir, "index.html"))
}
