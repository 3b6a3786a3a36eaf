// Package assets embeds the demo planet catalog shipped with planetview.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed catalog/*.json
var files embed.FS

// Catalog returns the embedded catalog indexes rooted at their directory,
// ready for catalog.DirLoader.
func Catalog() fs.FS {
	sub, err := fs.Sub(files, "catalog")
	if err != nil {
		// Only reachable if the embed pattern above changes.
		panic(err)
	}
	return sub
}
