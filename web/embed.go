package web

import "embed"

// FS contains the embedded viewer assets (HTML, CSS, JS).
//
//go:embed *.html *.css *.js
var FS embed.FS
