// Package nexus reads and writes Nexus files.
//
// The reader handles the TAXA, CHARACTERS (and DATA), TREES and SETS
// blocks. Commands of other blocks are kept as unknown commands named
// BLOCK.COMMAND, which the writer turns back into blocks. Blocks refer to
// each other by TITLE; a LINK or set qualifier naming a block that has not
// been read yet is an error, as Nexus declares before use.
package nexus

import (
	"github.com/FocuswithJustin/phyloconv/core/format"
)

// Format describes Nexus for the format registry.
var Format = &format.Format{
	ID:         "nexus",
	Name:       "Nexus",
	Extensions: []string{".nex", ".nexus", ".nxs"},
	Magic:      []string{"#NEXUS"},
	NewReader:  NewReader,
	NewWriter:  NewWriter,
}

func init() {
	format.Register(Format)
}
