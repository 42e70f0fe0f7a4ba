package nexml

import (
	"encoding/xml"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/phyloconv/core/adapter"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
	"github.com/FocuswithJustin/phyloconv/core/resolve"
)

const (
	nsNeXML = "http://www.nexml.org/2009"
	nsXSD   = "http://www.w3.org/2001/XMLSchema#"
	nsDC    = "http://purl.org/dc/elements/1.1/"
	nsRDF   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
)

var typeNames = map[event.CharacterStateSetType]string{
	event.SetTypeDNA:        "Dna",
	event.SetTypeRNA:        "Rna",
	event.SetTypeAminoAcid:  "Protein",
	event.SetTypeContinuous: "Continuous",
}

// Writer writes a NeXML document.
type Writer struct {
	plans map[string]*statesPlan
}

// NewWriter returns a NeXML writer.
func NewWriter() format.Writer {
	return &Writer{}
}

func (w *Writer) Capabilities(ctx *format.Context) format.Capabilities {
	return format.Capabilities{
		Matrices:          true,
		LongTokens:        true,
		Trees:             true,
		Networks:          true,
		Sets:              true,
		Metadata:          true,
		GroupsNeedOTUList: true,
	}
}

// Check plans the states of every matrix and reports unknown commands,
// which have no NeXML element.
func (w *Writer) Check(ctx *format.Context, doc adapter.Document, res *format.CheckResult) error {
	unknown := 0
	err := adapter.Walk(doc, adapter.ReceiverFunc(func(e event.Event) error {
		if _, ok := e.(*event.UnknownCommand); ok {
			unknown++
		}
		return nil
	}))
	if err != nil {
		return err
	}
	if unknown > 0 {
		ctx.Diagnostics.Add(format.DiagUnsupported, "", "%d unknown commands cannot be written to NeXML and are skipped", unknown)
	}
	return w.plan(ctx, doc, res)
}

func (w *Writer) plan(ctx *format.Context, doc adapter.Document, res *format.CheckResult) error {
	w.plans = make(map[string]*statesPlan)
	mats := doc.Matrices()
	for _, mi := range res.Matrices {
		p, err := planStates(ctx, mi, mats.Get(mi.ID))
		if err != nil {
			return err
		}
		w.plans[mi.ID] = p
	}
	return nil
}

func (w *Writer) Write(ctx *format.Context, out io.Writer, doc adapter.Document, res *format.CheckResult) error {
	if w.plans == nil {
		if err := w.plan(ctx, doc, res); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(out, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(out)
	enc.Indent("", "  ")
	x := &xmlWriter{ctx: ctx, enc: enc, doc: doc, res: res, plans: w.plans, sets: make(map[resolve.Key]*format.SetInfo)}
	for _, si := range res.Sets {
		x.sets[si.Key] = si
	}
	if err := x.document(); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(out, "\n")
	return err
}

type xmlWriter struct {
	ctx   *format.Context
	enc   *xml.Encoder
	doc   adapter.Document
	res   *format.CheckResult
	plans map[string]*statesPlan
	sets  map[resolve.Key]*format.SetInfo
}

func name(local string) xml.Name {
	return xml.Name{Local: local}
}

func xmlAttr(local, value string) xml.Attr {
	return xml.Attr{Name: name(local), Value: value}
}

// idLabel returns the id attribute, plus the label when there is one.
func idLabel(id, label string) []xml.Attr {
	attrs := []xml.Attr{xmlAttr("id", id)}
	if label != "" {
		attrs = append(attrs, xmlAttr("label", label))
	}
	return attrs
}

// element writes <local attrs> body </local>. body may be nil.
func (x *xmlWriter) element(local string, attrs []xml.Attr, body func() error) error {
	if err := x.enc.EncodeToken(xml.StartElement{Name: name(local), Attr: attrs}); err != nil {
		return err
	}
	if body != nil {
		if err := body(); err != nil {
			return err
		}
	}
	return x.enc.EncodeToken(xml.EndElement{Name: name(local)})
}

// subtrees splits a flat event list into its top-level subtrees.
func subtrees(events []event.Event) [][]event.Event {
	var out [][]event.Event
	depth, start := 0, 0
	for i, e := range events {
		switch e.Type().Topology {
		case event.Start:
			depth++
			continue
		case event.End:
			depth--
		}
		if depth == 0 {
			out = append(out, events[start:i+1])
			start = i + 1
		}
	}
	return out
}

func collect(write func(adapter.Receiver) error) ([][]event.Event, error) {
	var events []event.Event
	err := write(adapter.ReceiverFunc(func(e event.Event) error {
		events = append(events, e)
		return nil
	}))
	return subtrees(events), err
}

// metaOf writes the metadata and comments that write emits at its top
// level and returns the other subtrees.
func (x *xmlWriter) metaOf(write func(adapter.Receiver) error) ([][]event.Event, error) {
	parts, err := collect(write)
	if err != nil {
		return nil, err
	}
	var rest [][]event.Event
	for _, sub := range parts {
		ok, err := x.meta(sub)
		if err != nil {
			return nil, err
		}
		if !ok {
			rest = append(rest, sub)
		}
	}
	return rest, nil
}

func contentOf[E event.Event](els adapter.Elements[E], id string) func(adapter.Receiver) error {
	return func(r adapter.Receiver) error { return els.WriteContent(r, id) }
}

// sanitizeComment makes text legal inside <!-- -->.
func sanitizeComment(text string) string {
	for strings.Contains(text, "--") {
		text = strings.ReplaceAll(text, "--", "- -")
	}
	if strings.HasSuffix(text, "-") {
		text += " "
	}
	return text
}

// meta writes one metadata subtree. It reports false for other content.
func (x *xmlWriter) meta(sub []event.Event) (bool, error) {
	switch v := sub[0].(type) {
	case *event.Comment:
		return true, x.enc.EncodeToken(xml.Comment(sanitizeComment(v.Text)))
	case *event.UnknownCommand:
		return true, nil
	case *event.LiteralMeta:
		var value strings.Builder
		var comments []string
		for _, e := range sub[1 : len(sub)-1] {
			switch c := e.(type) {
			case *event.LiteralMetaContent:
				value.WriteString(c.Value)
			case *event.Comment:
				comments = append(comments, c.Text)
			}
		}
		attrs := []xml.Attr{
			{Name: xml.Name{Local: "xsi:type"}, Value: "nex:LiteralMeta"},
			xmlAttr("id", x.metaID(v.ID)),
			xmlAttr("property", v.Predicate),
		}
		if v.Datatype != "" {
			attrs = append(attrs, xmlAttr("datatype", v.Datatype))
		}
		attrs = append(attrs, xmlAttr("content", value.String()))
		return true, x.element("meta", attrs, func() error {
			for _, c := range comments {
				if err := x.enc.EncodeToken(xml.Comment(sanitizeComment(c))); err != nil {
					return err
				}
			}
			return nil
		})
	case *event.ResourceMeta:
		attrs := []xml.Attr{
			{Name: xml.Name{Local: "xsi:type"}, Value: "nex:ResourceMeta"},
			xmlAttr("id", x.metaID(v.ID)),
			xmlAttr("rel", v.Rel),
		}
		if v.HRef != "" {
			attrs = append(attrs, xmlAttr("href", v.HRef))
		}
		return true, x.element("meta", attrs, func() error {
			for _, child := range subtrees(sub[1 : len(sub)-1]) {
				if _, err := x.meta(child); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return false, nil
}

func (x *xmlWriter) metaID(id string) string {
	if id == "" {
		return x.ctx.Registry.NewID("meta")
	}
	return id
}

func (x *xmlWriter) document() error {
	attrs := []xml.Attr{
		xmlAttr("xmlns", nsNeXML),
		xmlAttr("xmlns:nex", nsNeXML),
		xmlAttr("xmlns:xsi", nsXSI),
		xmlAttr("xmlns:xsd", nsXSD),
		xmlAttr("xmlns:dc", nsDC),
		xmlAttr("xmlns:rdf", nsRDF),
		xmlAttr("version", "0.9"),
		xmlAttr("generator", "phyloconv"),
	}
	return x.element("nex:nexml", attrs, func() error {
		if _, err := x.metaOf(x.doc.WriteMetadata); err != nil {
			return err
		}
		for _, li := range x.res.Lists {
			if err := x.otus(li); err != nil {
				return err
			}
		}
		for _, mi := range x.res.Matrices {
			if err := x.characters(mi); err != nil {
				return err
			}
		}
		for _, gi := range x.res.Groups {
			if err := x.trees(gi); err != nil {
				return err
			}
		}
		return nil
	})
}

// memberAttr lists the members of si with the given types.
func memberAttr(local string, si *format.SetInfo, types ...event.ContentType) []xml.Attr {
	var ids []string
	for _, k := range si.Expansion.Members {
		if slices.Contains(types, k.Type) {
			ids = append(ids, k.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return []xml.Attr{xmlAttr(local, strings.Join(ids, " "))}
}

// writeSets writes the sets of els that survived the check pass.
func (x *xmlWriter) writeSets(els adapter.Elements[*event.LinkedLabeledID], t event.ContentType, members func(*format.SetInfo) []xml.Attr) error {
	for id := range els.IDs() {
		si := x.sets[resolve.Key{Type: t, ID: id}]
		if si == nil {
			continue
		}
		attrs := append(idLabel(id, els.Start(id).Label), members(si)...)
		err := x.element("set", attrs, func() error {
			_, err := x.metaOf(contentOf(els, id))
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (x *xmlWriter) otus(li *format.ListInfo) error {
	var l adapter.OTUList
	label := li.Label
	if !li.Placeholder {
		l = x.doc.OTULists().Get(li.ID)
		label = l.Start().Label
	}
	return x.element("otus", idLabel(li.ID, label), func() error {
		if l != nil {
			if _, err := x.metaOf(l.WriteMetadata); err != nil {
				return err
			}
		}
		for _, t := range li.Taxa {
			if t.Synthesized || l == nil {
				if err := x.element("otu", idLabel(t.ID, t.Label), nil); err != nil {
					return err
				}
				continue
			}
			otus := l.OTUs()
			err := x.element("otu", idLabel(t.ID, otus.Start(t.ID).Label), func() error {
				_, err := x.metaOf(contentOf(otus, t.ID))
				return err
			})
			if err != nil {
				return err
			}
		}
		if l == nil {
			return nil
		}
		return x.writeSets(l.OTUSets(), event.ContentOTUSet, func(si *format.SetInfo) []xml.Attr {
			return memberAttr("otu", si, event.ContentOTU)
		})
	})
}

func (x *xmlWriter) characters(mi *format.MatrixInfo) error {
	m := x.doc.Matrices().Get(mi.ID)
	p := x.plans[mi.ID]
	kind, ok := typeNames[mi.SetType]
	if !ok {
		kind = "Standard"
	}
	attrs := append(idLabel(mi.ID, m.Start().Label),
		xmlAttr("otus", mi.OTUListID),
		xml.Attr{Name: xml.Name{Local: "xsi:type"}, Value: "nex:" + kind + "Seqs"},
	)
	return x.element("characters", attrs, func() error {
		if _, err := x.metaOf(m.WriteMetadata); err != nil {
			return err
		}
		if err := x.element("format", nil, func() error { return x.format(mi, m, p) }); err != nil {
			return err
		}
		return x.element("matrix", nil, func() error { return x.matrix(mi, m, p) })
	})
}

// columns returns the character ids by column. Columns without a
// definition get a new id. It returns nil when neither definitions nor
// sets need char elements.
func (x *xmlWriter) columns(mi *format.MatrixInfo, m adapter.Matrix) []string {
	chars := m.Characters()
	if chars.Len() == 0 && len(x.res.SetsOf(mi.ID, event.ContentCharacterSet)) == 0 {
		return nil
	}
	n := mi.Columns
	for id := range chars.IDs() {
		n = max(n, chars.Start(id).Index+1)
	}
	ids := make([]string, n)
	for id := range chars.IDs() {
		if i := chars.Start(id).Index; i >= 0 && ids[i] == "" {
			ids[i] = id
		}
	}
	for i := range ids {
		if ids[i] == "" {
			ids[i] = x.ctx.Registry.NewID("char")
		}
	}
	return ids
}

func (x *xmlWriter) format(mi *format.MatrixInfo, m adapter.Matrix, p *statesPlan) error {
	for _, b := range p.blocks {
		if err := x.states(b); err != nil {
			return err
		}
	}
	chars := m.Characters()
	ids := x.columns(mi, m)
	for _, id := range ids {
		var attrs []xml.Attr
		var body func() error
		if start := chars.Start(id); start != nil {
			attrs = idLabel(id, start.Label)
			body = func() error {
				_, err := x.metaOf(contentOf(chars, id))
				return err
			}
		} else {
			attrs = idLabel(id, "")
		}
		if len(p.blocks) > 0 {
			attrs = append(attrs, xmlAttr("states", p.blocks[0].id))
		}
		if err := x.element("char", attrs, body); err != nil {
			return err
		}
	}
	return x.writeSets(m.CharacterSets(), event.ContentCharacterSet, func(si *format.SetInfo) []xml.Attr {
		var members []string
		for _, iv := range si.Expansion.Intervals {
			for c := iv.Start; c < iv.End && c < int64(len(ids)); c++ {
				members = append(members, ids[c])
			}
		}
		if len(members) == 0 {
			return nil
		}
		return []xml.Attr{xmlAttr("char", strings.Join(members, " "))}
	})
}

func (x *xmlWriter) states(b *statesBlock) error {
	return x.element("states", idLabel(b.id, b.label), func() error {
		for _, sub := range b.meta {
			if _, err := x.meta(sub); err != nil {
				return err
			}
		}
		for _, d := range b.defs {
			attrs := append(idLabel(d.id, d.label), xmlAttr("symbol", d.symbol))
			err := x.element(d.element, attrs, func() error {
				for _, sub := range d.meta {
					if _, err := x.meta(sub); err != nil {
						return err
					}
				}
				for _, m := range d.members {
					if err := x.element("member", []xml.Attr{xmlAttr("state", m)}, nil); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (x *xmlWriter) matrix(mi *format.MatrixInfo, m adapter.Matrix, p *statesPlan) error {
	seqs := m.Sequences()
	sep := " "
	if mi.SetType.IsMolecular() {
		sep = ""
	}
	missing := p.symbol(mi.Missing)
	for _, row := range mi.Rows {
		attrs := append(idLabel(row.SequenceID, seqs.Start(row.SequenceID).Label), xmlAttr("otu", row.OTUID))
		err := x.element("row", attrs, func() error {
			if _, err := x.metaOf(contentOf(seqs, row.SequenceID)); err != nil {
				return err
			}
			var sb strings.Builder
			var n int64
			token := func(tok string) {
				if n > 0 {
					sb.WriteString(sep)
				}
				sb.WriteString(tok)
				n++
			}
			err := seqs.WriteContent(adapter.ReceiverFunc(func(e event.Event) error {
				if tokens, ok := e.(*event.SequenceTokens); ok {
					for _, tok := range tokens.Tokens {
						token(p.symbol(tok))
					}
				}
				return nil
			}), row.SequenceID)
			if err != nil {
				return err
			}
			for n < mi.Columns {
				token(missing)
			}
			return x.element("seq", nil, func() error {
				return x.enc.EncodeToken(xml.CharData(sb.String()))
			})
		})
		if err != nil {
			return err
		}
	}
	return x.writeSets(m.SequenceSets(), event.ContentSequenceSet, func(si *format.SetInfo) []xml.Attr {
		return memberAttr("row", si, event.ContentSequence)
	})
}

func (x *xmlWriter) trees(gi *format.GroupInfo) error {
	g := x.doc.TreeNetworkGroups().Get(gi.ID)
	attrs := append(idLabel(gi.ID, g.Start().Label), xmlAttr("otus", gi.OTUListID))
	return x.element("trees", attrs, func() error {
		if _, err := x.metaOf(g.WriteMetadata); err != nil {
			return err
		}
		members := g.TreesAndNetworks()
		for _, ti := range gi.Trees {
			if err := x.tree(ti, members.Get(ti.ID)); err != nil {
				return err
			}
		}
		return x.writeSets(g.TreeSets(), event.ContentTreeNetworkSet, func(si *format.SetInfo) []xml.Attr {
			return append(memberAttr("tree", si, event.ContentTree), memberAttr("network", si, event.ContentNetwork)...)
		})
	})
}

func lengthAttr(attrs []xml.Attr, length *float64) []xml.Attr {
	if length == nil {
		return attrs
	}
	return append(attrs, xmlAttr("length", strconv.FormatFloat(*length, 'g', -1, 64)))
}

func (x *xmlWriter) tree(ti *format.TreeInfo, tn adapter.TreeNetwork) error {
	local, kind := "tree", "nex:FloatTree"
	if ti.Network {
		local, kind = "network", "nex:FloatNetwork"
	}
	attrs := append(idLabel(ti.ID, tn.Start().Label), xml.Attr{Name: xml.Name{Local: "xsi:type"}, Value: kind})
	return x.element(local, attrs, func() error {
		if _, err := x.metaOf(tn.WriteMetadata); err != nil {
			return err
		}
		nodes, edges := tn.Nodes(), tn.Edges()
		for nid := range nodes.IDs() {
			n := nodes.Start(nid)
			attrs := idLabel(nid, n.Label)
			if n.LinkedID != "" {
				attrs = append(attrs, xmlAttr("otu", n.LinkedID))
			}
			if n.Root {
				attrs = append(attrs, xmlAttr("root", "true"))
			}
			err := x.element("node", attrs, func() error {
				_, err := x.metaOf(contentOf(nodes, nid))
				return err
			})
			if err != nil {
				return err
			}
		}

		// NeXML puts the root edge before the other edges.
		order := make([]string, 0, edges.Len())
		for eid := range edges.IDs() {
			if eid == ti.RootEdge {
				order = slices.Insert(order, 0, eid)
			} else {
				order = append(order, eid)
			}
		}
		for _, eid := range order {
			e := edges.Start(eid)
			local := "edge"
			attrs := idLabel(eid, e.Label)
			if e.Root || e.SourceID == "" {
				local = "rootedge"
			} else {
				attrs = append(attrs, xmlAttr("source", e.SourceID))
			}
			attrs = lengthAttr(append(attrs, xmlAttr("target", e.TargetID)), e.Length)
			err := x.element(local, attrs, func() error {
				_, err := x.metaOf(contentOf(edges, eid))
				return err
			})
			if err != nil {
				return err
			}
		}
		return x.writeSets(tn.NodeEdgeSets(), event.ContentNodeEdgeSet, func(si *format.SetInfo) []xml.Attr {
			return append(memberAttr("node", si, event.ContentNode), memberAttr("edge", si, event.ContentEdge, event.ContentRootEdge)...)
		})
	})
}
