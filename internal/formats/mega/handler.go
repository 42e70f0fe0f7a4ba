// Package mega reads and writes MEGA sequence alignments.
//
// A MEGA file starts with #MEGA, followed by !-commands terminated by ';'
// and sequences introduced by #label. Sequences may be interleaved: a label
// that appears again continues the earlier sequence.
package mega

import (
	"github.com/FocuswithJustin/phyloconv/core/format"
)

// Format describes MEGA for the format registry.
var Format = &format.Format{
	ID:         "mega",
	Name:       "MEGA",
	Extensions: []string{".meg", ".mega"},
	Magic:      []string{"#MEGA"},
	NewReader:  NewReader,
	NewWriter:  NewWriter,
}

func init() {
	format.Register(Format)
}
