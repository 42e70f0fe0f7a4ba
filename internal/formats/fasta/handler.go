// Package fasta reads and writes FASTA files: '>' header lines, each
// followed by the residues of one sequence.
package fasta

import (
	"bytes"

	"github.com/FocuswithJustin/phyloconv/core/format"
)

// Format describes FASTA for the format registry. FASTA has no magic
// string, so it is detected by the leading '>' once no other format
// matched.
var Format = &format.Format{
	ID:         "fasta",
	Name:       "FASTA",
	Extensions: []string{".fasta", ".fa", ".fas"},
	Fallback:   detect,
	NewReader:  NewReader,
	NewWriter:  NewWriter,
}

func detect(prefix []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(prefix, " \t\r\n"), []byte(">"))
}

func init() {
	format.Register(Format)
}
