package adapter

import (
	"fmt"
	"iter"
	"slices"

	"github.com/FocuswithJustin/phyloconv/core/errors"
	"github.com/FocuswithJustin/phyloconv/core/event"
)

// MemoryElements is an in-memory Elements implementation.
type MemoryElements[E event.Event] struct {
	ids     []string
	starts  map[string]E
	content map[string][]event.Event
}

func newElements[E event.Event]() *MemoryElements[E] {
	return &MemoryElements[E]{
		starts:  make(map[string]E),
		content: make(map[string][]event.Event),
	}
}

// Add appends an element. Adding an existing id appends a second entry with
// the same id, which writers report as a duplicate.
func (m *MemoryElements[E]) Add(id string, start E, content []event.Event) {
	m.ids = append(m.ids, id)
	if _, exists := m.starts[id]; !exists {
		m.starts[id] = start
		m.content[id] = content
	}
}

// Extend appends content to an existing element, or adds the element if id
// is new. Interleaved matrices repeat a sequence id to continue it.
func (m *MemoryElements[E]) Extend(id string, start E, content []event.Event) {
	if _, exists := m.starts[id]; !exists {
		m.Add(id, start, content)
		return
	}
	m.content[id] = append(slices.Clip(m.content[id]), content...)
}

func (m *MemoryElements[E]) IDs() iter.Seq[string] { return slices.Values(m.ids) }
func (m *MemoryElements[E]) Len() int              { return len(m.ids) }
func (m *MemoryElements[E]) Start(id string) E     { return m.starts[id] }

func (m *MemoryElements[E]) WriteContent(r Receiver, id string) error {
	for _, e := range m.content[id] {
		if err := r.Add(e); err != nil {
			return err
		}
	}
	return nil
}

// MemoryObjects is an in-memory Objects implementation.
type MemoryObjects[A any] struct {
	ids  []string
	objs map[string]A
}

func newObjects[A any]() *MemoryObjects[A] {
	return &MemoryObjects[A]{objs: make(map[string]A)}
}

// Add appends an object.
func (m *MemoryObjects[A]) Add(id string, a A) {
	m.ids = append(m.ids, id)
	if _, exists := m.objs[id]; !exists {
		m.objs[id] = a
	}
}

func (m *MemoryObjects[A]) IDs() iter.Seq[string] { return slices.Values(m.ids) }
func (m *MemoryObjects[A]) Len() int              { return len(m.ids) }
func (m *MemoryObjects[A]) Get(id string) A       { return m.objs[id] }

func writeAll(r Receiver, events []event.Event) error {
	for _, e := range events {
		if err := r.Add(e); err != nil {
			return err
		}
	}
	return nil
}

// MemoryDocument is a Document held in memory.
type MemoryDocument struct {
	Meta   []event.Event
	Lists  *MemoryObjects[OTUList]
	Mats   *MemoryObjects[Matrix]
	Groups *MemoryObjects[TreeNetworkGroup]
}

// NewDocument returns an empty document.
func NewDocument() *MemoryDocument {
	return &MemoryDocument{
		Lists:  newObjects[OTUList](),
		Mats:   newObjects[Matrix](),
		Groups: newObjects[TreeNetworkGroup](),
	}
}

func (d *MemoryDocument) WriteMetadata(r Receiver) error               { return writeAll(r, d.Meta) }
func (d *MemoryDocument) OTULists() Objects[OTUList]                   { return d.Lists }
func (d *MemoryDocument) Matrices() Objects[Matrix]                    { return d.Mats }
func (d *MemoryDocument) TreeNetworkGroups() Objects[TreeNetworkGroup] { return d.Groups }

// MemoryOTUList is an OTUList held in memory.
type MemoryOTUList struct {
	StartEvent *event.LabeledID
	Meta       []event.Event
	Taxa       *MemoryElements[*event.LabeledID]
	Sets       *MemoryElements[*event.LinkedLabeledID]
}

// NewOTUList returns an empty OTU list.
func NewOTUList(id, label string) *MemoryOTUList {
	return &MemoryOTUList{
		StartEvent: &event.LabeledID{Content: event.ContentOTUList, ID: id, Label: label},
		Taxa:       newElements[*event.LabeledID](),
		Sets:       newElements[*event.LinkedLabeledID](),
	}
}

func (l *MemoryOTUList) Start() *event.LabeledID                   { return l.StartEvent }
func (l *MemoryOTUList) WriteMetadata(r Receiver) error            { return writeAll(r, l.Meta) }
func (l *MemoryOTUList) OTUs() Elements[*event.LabeledID]          { return l.Taxa }
func (l *MemoryOTUList) OTUSets() Elements[*event.LinkedLabeledID] { return l.Sets }

// MemoryMatrix is a Matrix held in memory.
type MemoryMatrix struct {
	StartEvent *event.LinkedLabeledID
	Meta       []event.Event
	Columns    int64 // declared column count, 0 if unknown
	Tokens     *MemoryElements[*event.TokenSetDefinition]
	Chars      *MemoryElements[*event.CharacterDefinition]
	Seqs       *MemoryElements[*event.LinkedLabeledID]
	CharSets   *MemoryElements[*event.LinkedLabeledID]
	SeqSets    *MemoryElements[*event.LinkedLabeledID]
}

// NewMatrix returns an empty matrix.
func NewMatrix(id, label, otuListID string) *MemoryMatrix {
	return &MemoryMatrix{
		StartEvent: &event.LinkedLabeledID{Content: event.ContentAlignment, ID: id, Label: label, LinkedID: otuListID},
		Tokens:     newElements[*event.TokenSetDefinition](),
		Chars:      newElements[*event.CharacterDefinition](),
		Seqs:       newElements[*event.LinkedLabeledID](),
		CharSets:   newElements[*event.LinkedLabeledID](),
		SeqSets:    newElements[*event.LinkedLabeledID](),
	}
}

func (m *MemoryMatrix) Start() *event.LinkedLabeledID                   { return m.StartEvent }
func (m *MemoryMatrix) WriteMetadata(r Receiver) error                  { return writeAll(r, m.Meta) }
func (m *MemoryMatrix) TokenSets() Elements[*event.TokenSetDefinition]  { return m.Tokens }
func (m *MemoryMatrix) Characters() Elements[*event.CharacterDefinition] { return m.Chars }
func (m *MemoryMatrix) Sequences() Elements[*event.LinkedLabeledID]     { return m.Seqs }
func (m *MemoryMatrix) CharacterSets() Elements[*event.LinkedLabeledID] { return m.CharSets }
func (m *MemoryMatrix) SequenceSets() Elements[*event.LinkedLabeledID]  { return m.SeqSets }

func (m *MemoryMatrix) DeclaredColumns() (int64, bool) {
	return m.Columns, m.Columns > 0
}

// MemoryGroup is a TreeNetworkGroup held in memory.
type MemoryGroup struct {
	StartEvent *event.LinkedLabeledID
	Meta       []event.Event
	Members    *MemoryObjects[TreeNetwork]
	Sets       *MemoryElements[*event.LinkedLabeledID]
}

// NewGroup returns an empty tree/network group.
func NewGroup(id, label, otuListID string) *MemoryGroup {
	return &MemoryGroup{
		StartEvent: &event.LinkedLabeledID{Content: event.ContentTreeNetworkGroup, ID: id, Label: label, LinkedID: otuListID},
		Members:    newObjects[TreeNetwork](),
		Sets:       newElements[*event.LinkedLabeledID](),
	}
}

func (g *MemoryGroup) Start() *event.LinkedLabeledID              { return g.StartEvent }
func (g *MemoryGroup) WriteMetadata(r Receiver) error             { return writeAll(r, g.Meta) }
func (g *MemoryGroup) TreesAndNetworks() Objects[TreeNetwork]     { return g.Members }
func (g *MemoryGroup) TreeSets() Elements[*event.LinkedLabeledID] { return g.Sets }

// MemoryTree is a TreeNetwork held in memory.
type MemoryTree struct {
	StartEvent *event.LinkedLabeledID
	Meta       []event.Event
	NodeList   *MemoryElements[*event.Node]
	EdgeList   *MemoryElements[*event.Edge]
	Sets       *MemoryElements[*event.LinkedLabeledID]
}

// NewTree returns an empty tree, or an empty network if network is set.
func NewTree(id, label string, network bool) *MemoryTree {
	c := event.ContentTree
	if network {
		c = event.ContentNetwork
	}
	return &MemoryTree{
		StartEvent: &event.LinkedLabeledID{Content: c, ID: id, Label: label},
		NodeList:   newElements[*event.Node](),
		EdgeList:   newElements[*event.Edge](),
		Sets:       newElements[*event.LinkedLabeledID](),
	}
}

func (t *MemoryTree) Start() *event.LinkedLabeledID                  { return t.StartEvent }
func (t *MemoryTree) WriteMetadata(r Receiver) error                 { return writeAll(r, t.Meta) }
func (t *MemoryTree) Nodes() Elements[*event.Node]                   { return t.NodeList }
func (t *MemoryTree) Edges() Elements[*event.Edge]                   { return t.EdgeList }
func (t *MemoryTree) NodeEdgeSets() Elements[*event.LinkedLabeledID] { return t.Sets }

// FromEvents builds a document from a complete event stream.
func FromEvents(events []event.Event) (*MemoryDocument, error) {
	if err := event.Validate(events); err != nil {
		return nil, err
	}
	b := &builder{events: events, pos: 1}
	doc := NewDocument()
	for {
		e := b.next()
		t := e.Type()
		if t.Topology == event.End && t.Content == event.ContentDocument {
			return doc, nil
		}
		switch t.Content {
		case event.ContentOTUList:
			l := b.otuList(e)
			doc.Lists.Add(l.StartEvent.ID, l)
		case event.ContentAlignment:
			m := b.matrix(e)
			doc.Mats.Add(m.StartEvent.ID, m)
		case event.ContentTreeNetworkGroup:
			g := b.group(e)
			doc.Groups.Add(g.StartEvent.ID, g)
		case event.ContentOTUSet, event.ContentCharacterSet, event.ContentTreeNetworkSet:
			if err := doc.attachSet(linked(e), b.content(e)); err != nil {
				return nil, err
			}
		default:
			doc.Meta = append(doc.Meta, b.subtree(e)...)
		}
	}
}

// attachSet adds a document-level set to the element its LinkedID names.
func (d *MemoryDocument) attachSet(set *event.LinkedLabeledID, content []event.Event) error {
	var target *MemoryElements[*event.LinkedLabeledID]
	var parent event.ContentType
	switch set.Content {
	case event.ContentOTUSet:
		parent = event.ContentOTUList
		if l, ok := d.Lists.objs[set.LinkedID].(*MemoryOTUList); ok {
			target = l.Sets
		}
	case event.ContentCharacterSet:
		parent = event.ContentAlignment
		if m, ok := d.Mats.objs[set.LinkedID].(*MemoryMatrix); ok {
			target = m.CharSets
		}
	case event.ContentTreeNetworkSet:
		parent = event.ContentTreeNetworkGroup
		if g, ok := d.Groups.objs[set.LinkedID].(*MemoryGroup); ok {
			target = g.Sets
		}
	}
	if target == nil {
		return &errors.DanglingLinkError{From: set.ID, To: set.LinkedID, Kind: parent.String()}
	}
	target.Add(set.ID, set, content)
	return nil
}

// builder walks a validated stream. Validation guarantees that every START
// has its END, so next never runs past the slice.
type builder struct {
	events []event.Event
	pos    int
}

func (b *builder) next() event.Event {
	e := b.events[b.pos]
	b.pos++
	return e
}

// content returns the events nested in the element opened by start and
// consumes its END.
func (b *builder) content(start event.Event) []event.Event {
	if start.Type().Topology == event.Sole {
		return nil
	}
	from := b.pos
	depth := 0
	for {
		e := b.next()
		switch e.Type().Topology {
		case event.Start:
			depth++
		case event.End:
			if depth == 0 {
				return b.events[from : b.pos-1]
			}
			depth--
		}
	}
}

// subtree returns start, its nested content and its END.
func (b *builder) subtree(start event.Event) []event.Event {
	from := b.pos - 1
	b.content(start)
	return b.events[from:b.pos]
}

func isEnd(e event.Event, c event.ContentType) bool {
	t := e.Type()
	return t.Topology == event.End && t.Content == c
}

func labeled(e event.Event) *event.LabeledID {
	switch v := e.(type) {
	case *event.LabeledID:
		return v
	case *event.LinkedLabeledID:
		return &event.LabeledID{Content: v.Content, ID: v.ID, Label: v.Label}
	}
	panic(fmt.Sprintf("unexpected start event %s", event.Describe(e)))
}

func linked(e event.Event) *event.LinkedLabeledID {
	switch v := e.(type) {
	case *event.LinkedLabeledID:
		return v
	case *event.LabeledID:
		return &event.LinkedLabeledID{Content: v.Content, ID: v.ID, Label: v.Label}
	}
	panic(fmt.Sprintf("unexpected start event %s", event.Describe(e)))
}

func (b *builder) otuList(start event.Event) *MemoryOTUList {
	s := labeled(start)
	l := NewOTUList(s.ID, s.Label)
	l.StartEvent = s
	for {
		e := b.next()
		if isEnd(e, event.ContentOTUList) {
			return l
		}
		switch e.Type().Content {
		case event.ContentOTU:
			otu := labeled(e)
			l.Taxa.Add(otu.ID, otu, b.content(e))
		case event.ContentOTUSet:
			set := linked(e)
			l.Sets.Add(set.ID, set, b.content(e))
		default:
			l.Meta = append(l.Meta, b.subtree(e)...)
		}
	}
}

func (b *builder) matrix(start event.Event) *MemoryMatrix {
	s := linked(start)
	m := NewMatrix(s.ID, s.Label, s.LinkedID)
	m.StartEvent = s
	for {
		e := b.next()
		if isEnd(e, event.ContentAlignment) {
			return m
		}
		switch v := e.(type) {
		case *event.CharacterDefinition:
			m.Chars.Add(v.ID, v, b.content(e))
			if v.Index+1 > m.Columns {
				m.Columns = v.Index + 1
			}
		case *event.TokenSetDefinition:
			m.Tokens.Add(v.ID, v, b.content(e))
		default:
			switch e.Type().Content {
			case event.ContentSequence:
				seq := linked(e)
				m.Seqs.Extend(seq.ID, seq, b.content(e))
			case event.ContentCharacterSet:
				set := linked(e)
				m.CharSets.Add(set.ID, set, b.content(e))
			case event.ContentSequenceSet:
				set := linked(e)
				m.SeqSets.Add(set.ID, set, b.content(e))
			default:
				m.Meta = append(m.Meta, b.subtree(e)...)
			}
		}
	}
}

func (b *builder) group(start event.Event) *MemoryGroup {
	s := linked(start)
	g := NewGroup(s.ID, s.Label, s.LinkedID)
	g.StartEvent = s
	for {
		e := b.next()
		if isEnd(e, event.ContentTreeNetworkGroup) {
			return g
		}
		switch e.Type().Content {
		case event.ContentTree, event.ContentNetwork:
			tn := b.tree(e)
			g.Members.Add(tn.StartEvent.ID, tn)
		case event.ContentTreeNetworkSet:
			set := linked(e)
			g.Sets.Add(set.ID, set, b.content(e))
		default:
			g.Meta = append(g.Meta, b.subtree(e)...)
		}
	}
}

func (b *builder) tree(start event.Event) *MemoryTree {
	s := linked(start)
	t := NewTree(s.ID, s.Label, s.Content == event.ContentNetwork)
	t.StartEvent = s
	for {
		e := b.next()
		if isEnd(e, s.Content) {
			return t
		}
		switch v := e.(type) {
		case *event.Node:
			t.NodeList.Add(v.ID, v, b.content(e))
		case *event.Edge:
			t.EdgeList.Add(v.ID, v, b.content(e))
		default:
			if e.Type().Content == event.ContentNodeEdgeSet {
				set := linked(e)
				t.Sets.Add(set.ID, set, b.content(e))
				continue
			}
			t.Meta = append(t.Meta, b.subtree(e)...)
		}
	}
}
