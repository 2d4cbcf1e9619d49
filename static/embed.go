// Package static embeds client-side assets shipped with the server.
package static

import (
	"embed"
	"io/fs"
)

//go:embed js/*.js
var assets embed.FS

// AutoRefreshScript returns the browser script that reloads the page on refresh events.
func AutoRefreshScript() []byte {
	data, err := fs.ReadFile(assets, "js/autorefresh.js")
	if err != nil {
		// The file is embedded at build time; a failure here is a packaging bug.
		panic("static: missing js/autorefresh.js: " + err.Error())
	}
	return data
}
