// Package adapter defines the read-only document view consumed by writers.
//
// A writer never sees an event stream directly. It walks a Document: ordered
// collections of OTU lists, matrices and tree/network groups, each exposing
// iterators over element ids, the start event of every element and a
// callback that writes the element's nested content into a Receiver. The
// view can be walked any number of times, which is what the two-pass writers
// rely on.
package adapter

import (
	"iter"

	"github.com/FocuswithJustin/phyloconv/core/event"
)

// Receiver accepts the nested content of one element.
type Receiver interface {
	Add(e event.Event) error
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(e event.Event) error

// Add calls f(e).
func (f ReceiverFunc) Add(e event.Event) error { return f(e) }

// Elements is an ordered collection of identified leaf elements.
type Elements[E event.Event] interface {
	IDs() iter.Seq[string]
	Len() int
	Start(id string) E
	WriteContent(r Receiver, id string) error
}

// Objects is an ordered collection of nested adapters.
type Objects[A any] interface {
	IDs() iter.Seq[string]
	Len() int
	Get(id string) A
}

// Document is the root of the view.
type Document interface {
	WriteMetadata(r Receiver) error
	OTULists() Objects[OTUList]
	Matrices() Objects[Matrix]
	TreeNetworkGroups() Objects[TreeNetworkGroup]
}

// OTUList is a list of taxa and sets over them.
type OTUList interface {
	Start() *event.LabeledID
	WriteMetadata(r Receiver) error
	OTUs() Elements[*event.LabeledID]
	OTUSets() Elements[*event.LinkedLabeledID]
}

// Matrix is an alignment. Sequence content is SEQUENCE_TOKENS events plus
// metadata; token set content is SINGLE_TOKEN_DEFINITION events and the
// intervals the set applies to; character and sequence set content is
// intervals and SET_ELEMENT events.
type Matrix interface {
	Start() *event.LinkedLabeledID
	WriteMetadata(r Receiver) error
	// DeclaredColumns returns the number of columns the source declared.
	DeclaredColumns() (int64, bool)
	TokenSets() Elements[*event.TokenSetDefinition]
	Characters() Elements[*event.CharacterDefinition]
	Sequences() Elements[*event.LinkedLabeledID]
	CharacterSets() Elements[*event.LinkedLabeledID]
	SequenceSets() Elements[*event.LinkedLabeledID]
}

// TreeNetworkGroup is a group of trees and networks over one OTU list.
type TreeNetworkGroup interface {
	Start() *event.LinkedLabeledID
	WriteMetadata(r Receiver) error
	TreesAndNetworks() Objects[TreeNetwork]
	TreeSets() Elements[*event.LinkedLabeledID]
}

// TreeNetwork is a tree or a network. Start().Content tells which.
type TreeNetwork interface {
	Start() *event.LinkedLabeledID
	WriteMetadata(r Receiver) error
	Nodes() Elements[*event.Node]
	Edges() Elements[*event.Edge]
	NodeEdgeSets() Elements[*event.LinkedLabeledID]
}

// IsNetwork reports whether tn is a network.
func IsNetwork(tn TreeNetwork) bool {
	return tn.Start().Content == event.ContentNetwork
}
