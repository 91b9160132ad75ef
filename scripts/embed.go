// Package scripts embeds the bundled Risor symbol filter scripts.
package scripts

import "embed"

// FS holds the bundled scripts, rooted at this directory.
//
//go:embed filter/*.risor
var FS embed.FS
