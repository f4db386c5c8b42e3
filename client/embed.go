// Package client embeds the browser script that joins a live view.
package client

import (
	"embed"
	"io/fs"
	"net/http"
	"strconv"
	"time"
)

// Script is the file name layouts reference under the mount prefix.
const Script = "moonlive.js"

//go:embed src/*.js
var assets embed.FS

// Assets returns the embedded scripts rooted at src.
func Assets() fs.FS {
	fsys, err := fs.Sub(assets, "src")
	if err != nil {
		panic(err)
	}
	return fsys
}

// Handler serves the scripts. Mount it with http.StripPrefix.
func Handler() http.Handler {
	fileServer := http.FileServer(http.FS(Assets()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age="+maxAge)
		fileServer.ServeHTTP(w, r)
	})
}

var maxAge = strconv.Itoa(int(time.Hour / time.Second))

// File returns the contents of an embedded script.
func File(name string) ([]byte, error) {
	return assets.ReadFile("src/" + name)
}

// FileNames lists the embedded scripts.
func FileNames() []string {
	entries, err := assets.ReadDir("src")
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names
}
