// Package nexml reads and writes NeXML documents.
//
// The reader streams the document with encoding/xml and keeps the ids of
// the input. References to ids that have not been declared earlier in the
// document are errors. Elements the reader does not model are kept as
// literal metadata when UnknownAsMetadata is set.
package nexml

import (
	"github.com/FocuswithJustin/phyloconv/core/format"
)

// Format describes NeXML for the format registry.
var Format = &format.Format{
	ID:         "nexml",
	Name:       "NeXML",
	Extensions: []string{".xml", ".nexml"},
	Magic:      []string{"<nex:nexml", "<nexml", "<?xml"},
	NewReader:  NewReader,
	NewWriter:  NewWriter,
}

func init() {
	format.Register(Format)
}
