// Package newick reads and writes Newick trees. The tree parser and tree
// writer are shared with the Nexus TREES block.
package newick

import (
	"bytes"

	"github.com/FocuswithJustin/phyloconv/core/format"
)

// Format describes Newick for the format registry. Newick has no header;
// it is detected by a leading '(' or rooting comment.
var Format = &format.Format{
	ID:         "newick",
	Name:       "Newick",
	Extensions: []string{".nwk", ".newick", ".tre"},
	Fallback:   detect,
	NewReader:  NewReader,
	NewWriter:  NewWriter,
}

func detect(prefix []byte) bool {
	for _, start := range []string{"(", "[&R]", "[&U]", "[&r]", "[&u]"} {
		if bytes.HasPrefix(prefix, []byte(start)) {
			return true
		}
	}
	return false
}

func init() {
	format.Register(Format)
}
