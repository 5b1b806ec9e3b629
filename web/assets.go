package webassets

import "embed"

// Files contains the embedded chat UI assets.
//
//go:embed index.html app.js
var Files embed.FS
