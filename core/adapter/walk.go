package adapter

import (
	"github.com/FocuswithJustin/phyloconv/core/event"
)

// Walk emits the content of doc as a complete event stream: document
// metadata first, then OTU lists, matrices and tree/network groups in
// adapter order.
func Walk(doc Document, r Receiver) error {
	w := walker{r: r}
	w.add(&event.DocumentStart{})
	w.do(doc.WriteMetadata)
	for id := range doc.OTULists().IDs() {
		l := doc.OTULists().Get(id)
		w.add(l.Start())
		w.do(l.WriteMetadata)
		walkElements(&w, l.OTUs())
		walkElements(&w, l.OTUSets())
		w.end(event.ContentOTUList)
	}
	for id := range doc.Matrices().IDs() {
		m := doc.Matrices().Get(id)
		w.add(m.Start())
		w.do(m.WriteMetadata)
		walkElements(&w, m.Characters())
		walkElements(&w, m.TokenSets())
		walkElements(&w, m.Sequences())
		walkElements(&w, m.CharacterSets())
		walkElements(&w, m.SequenceSets())
		w.end(event.ContentAlignment)
	}
	for id := range doc.TreeNetworkGroups().IDs() {
		g := doc.TreeNetworkGroups().Get(id)
		w.add(g.Start())
		w.do(g.WriteMetadata)
		for tid := range g.TreesAndNetworks().IDs() {
			tn := g.TreesAndNetworks().Get(tid)
			w.add(tn.Start())
			w.do(tn.WriteMetadata)
			walkElements(&w, tn.Nodes())
			walkElements(&w, tn.Edges())
			walkElements(&w, tn.NodeEdgeSets())
			w.end(tn.Start().Content)
		}
		walkElements(&w, g.TreeSets())
		w.end(event.ContentTreeNetworkGroup)
	}
	w.end(event.ContentDocument)
	return w.err
}

// Events returns the content of doc as an event slice.
func Events(doc Document) ([]event.Event, error) {
	var events []event.Event
	err := Walk(doc, ReceiverFunc(func(e event.Event) error {
		events = append(events, e)
		return nil
	}))
	return events, err
}

type walker struct {
	r   Receiver
	err error
}

func (w *walker) add(e event.Event) {
	if w.err == nil {
		w.err = w.r.Add(e)
	}
}

func (w *walker) do(f func(Receiver) error) {
	if w.err == nil {
		w.err = f(w.r)
	}
}

func (w *walker) end(c event.ContentType) {
	w.add(event.NewEnd(c))
}

func walkElements[E event.Event](w *walker, els Elements[E]) {
	for id := range els.IDs() {
		start := els.Start(id)
		w.add(start)
		if start.Type().Topology == event.Sole {
			continue
		}
		if w.err == nil {
			w.err = els.WriteContent(w.r, id)
		}
		w.end(start.Type().Content)
	}
}
