// Package embedded registers every built-in format. Import it for its side
// effect before using the format registry.
package embedded

import (
	"github.com/FocuswithJustin/phyloconv/core/format"

	// Format packages register themselves in init.
	_ "github.com/FocuswithJustin/phyloconv/internal/formats/fasta"
	_ "github.com/FocuswithJustin/phyloconv/internal/formats/mega"
	_ "github.com/FocuswithJustin/phyloconv/internal/formats/newick"
	_ "github.com/FocuswithJustin/phyloconv/internal/formats/nexml"
	_ "github.com/FocuswithJustin/phyloconv/internal/formats/nexus"
)

// IsInitialized reports whether the built-in formats are registered.
func IsInitialized() bool {
	return format.Get("nexus") != nil
}

// FormatCount returns the number of registered formats.
func FormatCount() int {
	return len(format.List())
}
