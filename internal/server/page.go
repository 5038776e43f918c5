package server

import _ "embed"

// previewPage is the HTML shell served at the root. It connects back over
// the websocket endpoint and swaps rendered updates into the content pane.
//
//go:embed preview.html
var previewPage []byte
