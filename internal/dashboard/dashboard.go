package dashboard

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
)

//go:embed web/*
var content embed.FS

// Handler returns an http.Handler for the dashboard assets.
//
// When dir names an existing directory, files are served from it;
// otherwise the embedded copy is used. Unknown paths fall back to
// index.html. Panics if the embedded assets are missing (build error).
func Handler(dir string) http.Handler {
	fileSystem := fileSystemFor(dir)
	fileServer := http.FileServer(fileSystem)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		upath := path.Clean("/" + r.URL.Path)
		if upath == "/" {
			fileServer.ServeHTTP(w, r)
			return
		}

		f, err := fileSystem.Open(upath)
		if err != nil {
			r.URL.Path = "/"
			fileServer.ServeHTTP(w, r)
			return
		}
		f.Close()

		fileServer.ServeHTTP(w, r)
	})
}

func fileSystemFor(dir string) http.FileSystem {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return http.Dir(dir)
		}
	}

	webFS, err := fs.Sub(content, "web")
	if err != nil {
		panic(fmt.Sprintf("dashboard: failed to load embedded web assets: %v", err))
	}
	return http.FS(webFS)
}
