// Package event provides the canonical event model shared by every format reader
// and writer.
//
// A phylogenetic document is represented as a flat, balanced sequence of typed
// events. Readers translate their format into this sequence; writers consume an
// adapter view of the same content. No reader or writer special-cases another
// format's grammar: the event grammar is the only contract between them.
//
// # Content Types
//
// Every event has a ContentType and a Topology:
//
//   - START/END pairs bracket nested content (DOCUMENT, ALIGNMENT, SEQUENCE,
//     OTU_LIST, TREE, NODE, META_LITERAL, ...)
//   - SOLE events carry leaf content (SEQUENCE_TOKENS, COMMENT, SET_ELEMENT,
//     CHARACTER_SET_INTERVAL, META_LITERAL_CONTENT, UNKNOWN_COMMAND)
//
// Which content types may appear inside which is fixed by the nesting table in
// grammar.go. Validator checks a stream against it.
//
// # Identified Elements and Links
//
// Events carrying an ID (OTUs, sequences, nodes, edges, sets, token and
// character definitions) are identified elements; ids are unique within one
// document. LinkedID fields reference another identified element that was
// emitted earlier in the stream.
//
// # Reading
//
// PullReader implements the shared reader state machine. Each format supplies
// a Source that advances its tokenizer by one command or element per call:
//
//	r := event.NewPullReader(src)
//	for {
//	    e, err := r.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    handle(e)
//	}
//
// # Content Addressing
//
// Digest hashes an event sequence with BLAKE3 over its canonical JSON
// encoding. Two documents with equal digests have equal event sequences.
package event
