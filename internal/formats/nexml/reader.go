package nexml

import (
	"encoding/xml"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/FocuswithJustin/phyloconv/core/errors"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
	"github.com/FocuswithJustin/phyloconv/internal/formats/base"
)

const (
	nsXSI = "http://www.w3.org/2001/XMLSchema-instance"
	nsXML = "http://www.w3.org/XML/1998/namespace"
)

// frame is an open element.
type frame struct {
	name string
	// close runs when the element ends.
	close func() error
	// text receives the character data of the element.
	text func(data string) error
	// literal collects the text of a literal meta element. Child elements
	// of a literal are skipped but their text is kept.
	literal *strings.Builder
}

type matrixState struct {
	id          string
	setType     event.CharacterStateSetType
	restriction bool
	defined     bool // a token set definition has been pushed
	chars       map[string]int64
	nchars      int64
	states      map[string]string // state id to token
	// symbols maps the symbols of standard gap and missing states to the
	// token given by their label.
	symbols map[string]string
	missing string
	tokens      *base.Tokens
}

type rowState struct {
	id      string
	col     int64
	carry   string
	cells   map[int64]string
	maxCell int64
}

// pendingSet is a polymorphic or uncertain state set whose members have
// not all been read. Events inside it are held back until it closes.
type pendingSet struct {
	def     *event.SingleTokenDefinition
	members []string
	held    []event.Event
}

// source turns one XML token per step into events.
type source struct {
	ctx *format.Context
	d   *xml.Decoder
	q   *event.Queue

	started bool
	done    bool
	frames  []*frame
	// skip counts the open elements of an ignored subtree.
	skip     int
	skipInto *strings.Builder

	kinds   map[string]string // input id to element name
	ids     map[string]string // input id to event id
	otusID  string
	treesID string
	treeID  string
	mat     *matrixState
	row     *rowState
	pending *pendingSet
}

// NewReader returns an event reader over a NeXML document.
func NewReader(r io.Reader, ctx *format.Context) event.Reader {
	d := xml.NewDecoder(r)
	d.Strict = true
	return event.NewPullReader(&source{ctx: ctx, d: d, kinds: make(map[string]string), ids: make(map[string]string)})
}

func (src *source) errorf(msg string, args ...any) error {
	line, col := src.d.InputPos()
	return &errors.ParseError{
		Format:  "nexml",
		Offset:  src.d.InputOffset(),
		Line:    line,
		Column:  col,
		Message: fmt.Sprintf(msg, args...),
	}
}

func (src *source) line() int {
	line, _ := src.d.InputPos()
	return line
}

func (src *source) Advance(q *event.Queue) error {
	if src.done {
		return io.EOF
	}
	src.q = q
	tok, err := src.d.Token()
	if err == io.EOF {
		if !src.started {
			return src.errorf("no <nexml> root element")
		}
		return src.errorf("unexpected end of input inside <%s>", src.top().name)
	}
	if err != nil {
		var se *xml.SyntaxError
		if errors.As(err, &se) {
			return &errors.ParseError{Format: "nexml", Line: se.Line, Message: se.Msg}
		}
		return err
	}

	switch t := tok.(type) {
	case xml.StartElement:
		return src.start(t)
	case xml.EndElement:
		return src.end()
	case xml.CharData:
		return src.chars(string(t))
	case xml.Comment:
		return src.comment(string(t))
	}
	return nil
}

func (src *source) top() *frame {
	return src.frames[len(src.frames)-1]
}

// push queues events, or holds them while a state set is pending.
func (src *source) push(events ...event.Event) {
	if src.pending != nil {
		src.pending.held = append(src.pending.held, events...)
		return
	}
	src.q.Push(events...)
}

func (src *source) open(f *frame) {
	src.frames = append(src.frames, f)
}

func (src *source) start(t xml.StartElement) error {
	if src.skip > 0 {
		src.skip++
		return nil
	}
	name := t.Name.Local
	if len(src.frames) == 0 {
		if src.started {
			return src.errorf("content after the root element")
		}
		if name != "nexml" {
			return src.errorf("root element is <%s>, want <nexml>", name)
		}
		src.started = true
		src.open(&frame{name: name, close: func() error {
			src.done = true
			return nil
		}})
		src.attributes(t)
		return nil
	}

	parent := src.top()
	if parent.literal != nil {
		src.skip, src.skipInto = 1, parent.literal
		return nil
	}
	if name == "meta" && parent.text == nil {
		return src.meta(t)
	}
	if h, ok := handlers[handlerKey{parent.name, name}]; ok {
		return h(src, t)
	}
	return src.unknown(t)
}

func (src *source) end() error {
	if src.skip > 0 {
		src.skip--
		if src.skip == 0 {
			src.skipInto = nil
		}
		return nil
	}
	f := src.top()
	src.frames = src.frames[:len(src.frames)-1]
	if f.close != nil {
		return f.close()
	}
	return nil
}

func (src *source) chars(data string) error {
	if src.skip > 0 {
		if src.skipInto != nil {
			src.skipInto.WriteString(data)
		}
		return nil
	}
	if len(src.frames) == 0 {
		return nil
	}
	f := src.top()
	switch {
	case f.literal != nil:
		f.literal.WriteString(data)
	case f.text != nil:
		return f.text(data)
	}
	return nil
}

func (src *source) comment(text string) error {
	if src.skip > 0 || src.done {
		return nil
	}
	if limit := src.ctx.Params.MaxCommentLength; limit > 0 && len(text) > limit {
		if !src.ctx.Params.TruncateOversized {
			return src.limitError("MaxCommentLength", len(text), limit)
		}
		text = text[:limit]
		src.ctx.Diagnostics.Add(format.DiagTruncated, "", "comment at line %d truncated", src.line())
	}
	src.push(&event.Comment{Text: text})
	return nil
}

// unknown handles an element the reader does not model. With
// UnknownAsMetadata its text becomes literal metadata, else it is dropped.
func (src *source) unknown(t xml.StartElement) error {
	name := t.Name.Local
	if src.top().text != nil || !src.ctx.Params.UnknownAsMetadata {
		src.ctx.Diagnostics.Add(format.DiagDropped, "", "element <%s> at line %d ignored", name, src.line())
		src.skip = 1
		return nil
	}
	id := src.ctx.Registry.NewID("meta")
	src.push(&event.LiteralMeta{ID: id, Predicate: "nex:" + name})
	sb := &strings.Builder{}
	src.open(&frame{name: name, literal: sb, close: func() error {
		src.push(&event.LiteralMetaContent{Value: strings.TrimSpace(sb.String())}, event.NewEnd(event.ContentMetaLiteral))
		return nil
	}})
	return nil
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local && a.Name.Space == "" {
			return a.Value
		}
	}
	return ""
}

// xsiType returns the local part of the xsi:type attribute.
func xsiType(t xml.StartElement) string {
	for _, a := range t.Attr {
		if a.Name.Space == nsXSI && a.Name.Local == "type" {
			_, local, ok := strings.Cut(a.Value, ":")
			if !ok {
				return a.Value
			}
			return local
		}
	}
	return ""
}

// structural lists the attributes that the reader maps to event fields.
var structural = map[string][]string{
	"nexml":      {"version", "generator"},
	"otus":       {"id", "label"},
	"otu":        {"id", "label"},
	"characters": {"id", "label", "otus"},
	"states":     {"id", "label"},
	"char":       {"id", "label", "states"},
	"row":        {"id", "label", "otu"},
	"trees":      {"id", "label", "otus"},
	"tree":       {"id", "label"},
	"network":    {"id", "label"},
	"node":       {"id", "label", "otu", "root"},
	"edge":       {"id", "label", "source", "target", "length"},
	"rootedge":   {"id", "label", "target", "length"},
	"set":        {"id", "label", "otu", "char", "row", "node", "edge", "tree", "network"},
	"state":      {"id", "label", "symbol"},

	"polymorphic_state_set": {"id", "label", "symbol"},
	"uncertain_state_set":   {"id", "label", "symbol"},
}

// attributePredicates maps well-known attributes to metadata predicates.
var attributePredicates = map[xml.Name]string{
	{Local: "about"}:              "rdf:about",
	{Space: nsXML, Local: "lang"}: "dc:language",
}

// attributes pushes the attributes of t that carry no structure as
// literal metadata.
func (src *source) attributes(t xml.StartElement) {
	consumed := structural[t.Name.Local]
	for _, a := range t.Attr {
		switch {
		case a.Name.Space == "xmlns", a.Name.Space == "" && a.Name.Local == "xmlns", a.Name.Space == nsXSI:
			continue
		case a.Name.Space == "" && slices.Contains(consumed, a.Name.Local):
			continue
		}
		predicate, ok := attributePredicates[a.Name]
		if !ok {
			if !src.ctx.Params.UnknownAsMetadata {
				continue
			}
			predicate = "nex:" + a.Name.Local
		}
		src.push(
			&event.LiteralMeta{ID: src.ctx.Registry.NewID("meta"), Predicate: predicate, Datatype: event.DatatypeString},
			&event.LiteralMetaContent{Value: a.Value},
			event.NewEnd(event.ContentMetaLiteral),
		)
	}
}

// claim returns the event id for element t and records its kind. Elements
// without an id get a minted one. An input id already taken by a minted id
// is replaced by a fresh one; refer maps later references to it.
func (src *source) claim(t xml.StartElement, prefix string) (string, error) {
	raw := attr(t, "id")
	if raw == "" {
		return src.ctx.Registry.NewID(prefix), nil
	}
	if _, dup := src.ids[raw]; dup {
		return "", src.errorf("duplicate id %q", raw)
	}
	id := raw
	if src.ctx.Registry.Has(raw) {
		id = src.ctx.Registry.NewID(prefix)
	} else {
		src.ctx.Registry.Observe(raw)
	}
	src.ids[raw] = id
	src.kinds[raw] = t.Name.Local
	return id, nil
}

// refer checks that the input id raw names an element of one of kinds and
// returns its event id.
func (src *source) refer(raw string, kinds ...string) (string, error) {
	if slices.Contains(kinds, src.kinds[raw]) {
		return src.ids[raw], nil
	}
	return "", src.referenceError(kinds[0], raw)
}

func (src *source) limitError(limit string, value, max int) error {
	line, col := src.d.InputPos()
	return &errors.ResourceLimitError{Limit: limit, Value: value, Max: max, Offset: src.d.InputOffset(), Line: line, Column: col}
}

func (src *source) referenceError(kind, name string) error {
	line, col := src.d.InputPos()
	return &errors.ReferenceError{Kind: kind, Name: name, Offset: src.d.InputOffset(), Line: line, Column: col}
}

// container pushes start, its attribute metadata, and opens a frame that
// pushes the end event on close.
func (src *source) container(t xml.StartElement, start event.Event, done func() error) {
	src.push(start)
	src.attributes(t)
	src.open(&frame{name: t.Name.Local, close: func() error {
		if done != nil {
			if err := done(); err != nil {
				return err
			}
		}
		src.push(event.NewEnd(start.Type().Content))
		return nil
	}})
}

func (src *source) meta(t xml.StartElement) error {
	id, err := src.claim(t, "meta")
	if err != nil {
		return err
	}
	kind := xsiType(t)
	if kind == "" && attr(t, "rel") != "" {
		kind = "ResourceMeta"
	}
	if kind == "ResourceMeta" {
		src.push(&event.ResourceMeta{ID: id, Rel: attr(t, "rel"), HRef: attr(t, "href")})
		src.open(&frame{name: "meta", close: func() error {
			src.push(event.NewEnd(event.ContentMetaResource))
			return nil
		}})
		return nil
	}

	src.push(&event.LiteralMeta{ID: id, Predicate: attr(t, "property"), Datatype: attr(t, "datatype")})
	content, hasContent := "", false
	for _, a := range t.Attr {
		if a.Name.Space == "" && a.Name.Local == "content" {
			content, hasContent = a.Value, true
		}
	}
	sb := &strings.Builder{}
	src.open(&frame{name: "meta", literal: sb, close: func() error {
		value := content
		if !hasContent {
			value = strings.TrimSpace(sb.String())
		}
		src.push(&event.LiteralMetaContent{Value: value}, event.NewEnd(event.ContentMetaLiteral))
		return nil
	}})
	return nil
}

type handlerKey struct {
	parent string
	name   string
}

var handlers map[handlerKey]func(*source, xml.StartElement) error

func init() {
	handlers = map[handlerKey]func(*source, xml.StartElement) error{
		{"nexml", "otus"}:       (*source).otus,
		{"otus", "otu"}:         (*source).otu,
		{"otus", "set"}:         (*source).otuSet,
		{"nexml", "characters"}: (*source).characters,
		{"characters", "format"}: (*source).format,
		{"characters", "matrix"}: (*source).matrix,
		{"format", "states"}:     (*source).states,
		{"format", "char"}:       (*source).char,
		{"format", "set"}:        (*source).charSet,
		{"states", "state"}:      (*source).state,
		{"matrix", "row"}:        (*source).rowStart,
		{"matrix", "set"}:        (*source).rowSet,
		{"row", "seq"}:           (*source).seq,
		{"row", "cell"}:          (*source).cell,
		{"nexml", "trees"}:       (*source).trees,
		{"trees", "tree"}:        (*source).tree,
		{"trees", "network"}:     (*source).tree,
		{"trees", "set"}:         (*source).treeSet,

		{"states", "polymorphic_state_set"}: (*source).stateSet,
		{"states", "uncertain_state_set"}:   (*source).stateSet,
		{"polymorphic_state_set", "member"}: (*source).member,
		{"uncertain_state_set", "member"}:   (*source).member,
	}
	for _, kind := range []string{"tree", "network"} {
		handlers[handlerKey{kind, "node"}] = (*source).node
		handlers[handlerKey{kind, "edge"}] = (*source).edge
		handlers[handlerKey{kind, "rootedge"}] = (*source).edge
		handlers[handlerKey{kind, "set"}] = (*source).nodeEdgeSet
	}
}

// OTUs.

func (src *source) otus(t xml.StartElement) error {
	id, err := src.claim(t, "otus")
	if err != nil {
		return err
	}
	src.otusID = id
	src.container(t, &event.LabeledID{Content: event.ContentOTUList, ID: id, Label: attr(t, "label")}, nil)
	return nil
}

func (src *source) otu(t xml.StartElement) error {
	id, err := src.claim(t, "otu")
	if err != nil {
		return err
	}
	src.container(t, &event.LabeledID{Content: event.ContentOTU, ID: id, Label: attr(t, "label")}, nil)
	return nil
}

// set pushes a set whose members are listed in the attributes named by
// members, each mapped to the element kinds it may reference.
func (src *source) set(t xml.StartElement, content event.ContentType, parent string, members map[string][]string) error {
	id, err := src.claim(t, "set")
	if err != nil {
		return err
	}
	var elements []event.Event
	for _, a := range t.Attr {
		kinds, ok := members[a.Name.Local]
		if !ok || a.Name.Space != "" {
			continue
		}
		for _, ref := range strings.Fields(a.Value) {
			member, err := src.refer(ref, kinds...)
			if err != nil {
				return err
			}
			elements = append(elements, &event.SetElement{ElementID: member, ElementType: kindContent[src.kinds[ref]]})
		}
	}
	src.container(t, &event.LinkedLabeledID{Content: content, ID: id, Label: attr(t, "label"), LinkedID: parent}, nil)
	src.push(elements...)
	return nil
}

var kindContent = map[string]event.ContentType{
	"otu":      event.ContentOTU,
	"row":      event.ContentSequence,
	"tree":     event.ContentTree,
	"network":  event.ContentNetwork,
	"node":     event.ContentNode,
	"edge":     event.ContentEdge,
	"rootedge": event.ContentRootEdge,
}

func (src *source) otuSet(t xml.StartElement) error {
	return src.set(t, event.ContentOTUSet, src.otusID, map[string][]string{"otu": {"otu"}})
}

// Characters.

// parseType maps an xsi:type such as DnaSeqs or StandardCells to a token
// set type.
func parseType(s string) (event.CharacterStateSetType, bool, error) {
	kind := strings.TrimSuffix(strings.TrimSuffix(s, "Seqs"), "Cells")
	switch kind {
	case "Dna":
		return event.SetTypeDNA, false, nil
	case "Rna":
		return event.SetTypeRNA, false, nil
	case "Protein":
		return event.SetTypeAminoAcid, false, nil
	case "Standard":
		return event.SetTypeDiscrete, false, nil
	case "Continuous":
		return event.SetTypeContinuous, false, nil
	case "Restriction":
		return event.SetTypeDiscrete, true, nil
	}
	return event.SetTypeUnknown, false, errors.NewUnsupported("NeXML characters type "+s, "only DNA, RNA, protein, standard, restriction and continuous data are supported")
}

func (src *source) characters(t xml.StartElement) error {
	setType, restriction, err := parseType(xsiType(t))
	if err != nil {
		return err
	}
	otus := attr(t, "otus")
	if otus != "" {
		if otus, err = src.refer(otus, "otus"); err != nil {
			return err
		}
	}
	id, err := src.claim(t, "matrix")
	if err != nil {
		return err
	}
	src.mat = &matrixState{
		id:          id,
		setType:     setType,
		restriction: restriction,
		chars:       make(map[string]int64),
		states:      make(map[string]string),
		symbols:     make(map[string]string),
		tokens:      base.NewTokens(src.ctx.Params, ""),
	}
	start := &event.LinkedLabeledID{Content: event.ContentAlignment, ID: id, Label: attr(t, "label"), LinkedID: otus}
	src.container(t, start, func() error {
		src.ensureTokenSet()
		src.mat = nil
		return nil
	})
	return nil
}

// ensureTokenSet declares the data type of a matrix without states.
func (src *source) ensureTokenSet() {
	m := src.mat
	if m == nil || m.defined {
		return
	}
	m.defined = true
	src.push(&event.TokenSetDefinition{ID: src.ctx.Registry.NewID("tokens"), SetType: m.setType}, event.NewEnd(event.ContentTokenSetDefinition))
}

func (src *source) format(t xml.StartElement) error {
	src.open(&frame{name: "format", close: func() error {
		src.ensureTokenSet()
		return nil
	}})
	return nil
}

func (src *source) matrix(t xml.StartElement) error {
	src.ensureTokenSet()
	src.open(&frame{name: "matrix"})
	return nil
}

func (src *source) states(t xml.StartElement) error {
	id, err := src.claim(t, "tokens")
	if err != nil {
		return err
	}
	src.mat.defined = true
	src.container(t, &event.TokenSetDefinition{ID: id, Label: attr(t, "label"), SetType: src.mat.setType}, nil)
	return nil
}

// meaning derives the meaning of a state from its symbol, or from its
// label in standard data, where symbols are numbers.
func (m *matrixState) meaning(symbol, label string) event.TokenMeaning {
	key := symbol
	if !m.setType.IsMolecular() && label != "" && symbol != "-" && symbol != "?" {
		key = label
	}
	switch key {
	case "-":
		return event.MeaningGap
	case "?":
		return event.MeaningMissing
	}
	return event.MeaningCharacterState
}

// token returns the token for a symbol of a row.
func (m *matrixState) token(symbol string) string {
	if tok, ok := m.symbols[symbol]; ok {
		return tok
	}
	return symbol
}

func (src *source) stateDef(t xml.StartElement, symbolType event.SymbolType) (*event.SingleTokenDefinition, error) {
	id, err := src.claim(t, "state")
	if err != nil {
		return nil, err
	}
	symbol := attr(t, "symbol")
	if symbol == "" {
		return nil, src.errorf("state %q has no symbol", id)
	}
	label := attr(t, "label")
	meaning := src.mat.meaning(symbol, label)
	token := symbol
	if meaning != event.MeaningCharacterState && label != "" && !src.mat.setType.IsMolecular() {
		token = label
		src.mat.symbols[symbol] = token
	}
	if raw := attr(t, "id"); raw != "" {
		src.mat.states[raw] = token
	}
	def := &event.SingleTokenDefinition{
		ID:         id,
		Label:      label,
		TokenName:  token,
		Meaning:    meaning,
		SymbolType: symbolType,
	}
	if meaning == event.MeaningMissing {
		src.mat.missing = token
	}
	return def, nil
}

func (src *source) state(t xml.StartElement) error {
	def, err := src.stateDef(t, event.SymbolAtomic)
	if err != nil {
		return err
	}
	src.container(t, def, nil)
	return nil
}

func (src *source) stateSet(t xml.StartElement) error {
	symbolType := event.SymbolUncertain
	if t.Name.Local == "polymorphic_state_set" {
		symbolType = event.SymbolPolymorphic
	}
	def, err := src.stateDef(t, symbolType)
	if err != nil {
		return err
	}
	p := &pendingSet{def: def}
	src.pending = p
	src.attributes(t)
	src.open(&frame{name: t.Name.Local, close: func() error {
		src.pending = nil
		p.def.Constituents = p.members
		src.push(p.def)
		src.push(p.held...)
		src.push(event.NewEnd(event.ContentSingleTokenDefinition))
		return nil
	}})
	return nil
}

func (src *source) member(t xml.StartElement) error {
	ref := attr(t, "state")
	if _, err := src.refer(ref, "state"); err != nil {
		return err
	}
	src.pending.members = append(src.pending.members, src.mat.states[ref])
	src.open(&frame{name: "member"})
	return nil
}

func (src *source) char(t xml.StartElement) error {
	src.ensureTokenSet()
	if states := attr(t, "states"); states != "" {
		if _, err := src.refer(states, "states"); err != nil {
			return err
		}
	}
	id, err := src.claim(t, "char")
	if err != nil {
		return err
	}
	m := src.mat
	if raw := attr(t, "id"); raw != "" {
		m.chars[raw] = m.nchars
	}
	src.container(t, &event.CharacterDefinition{ID: id, Label: attr(t, "label"), Index: m.nchars}, nil)
	m.nchars++
	return nil
}

// charSet reads a column set. Its members become merged intervals.
func (src *source) charSet(t xml.StartElement) error {
	src.ensureTokenSet()
	var cols []int64
	for _, ref := range strings.Fields(attr(t, "char")) {
		i, ok := src.mat.chars[ref]
		if !ok {
			return src.referenceError("char", ref)
		}
		cols = append(cols, i)
	}
	id, err := src.claim(t, "set")
	if err != nil {
		return err
	}
	src.container(t, &event.LinkedLabeledID{Content: event.ContentCharacterSet, ID: id, Label: attr(t, "label"), LinkedID: src.mat.id}, nil)
	sort.Slice(cols, func(i, j int) bool { return cols[i] < cols[j] })
	for i := 0; i < len(cols); {
		j := i + 1
		for j < len(cols) && cols[j] <= cols[j-1]+1 {
			j++
		}
		src.push(&event.CharacterSetInterval{Start: cols[i], End: cols[j-1] + 1})
		i = j
	}
	return nil
}

func (src *source) rowSet(t xml.StartElement) error {
	return src.set(t, event.ContentSequenceSet, src.mat.id, map[string][]string{"row": {"row"}})
}

func (src *source) rowStart(t xml.StartElement) error {
	otu := attr(t, "otu")
	if otu != "" {
		var err error
		if otu, err = src.refer(otu, "otu"); err != nil {
			return err
		}
	}
	id, err := src.claim(t, "seq")
	if err != nil {
		return err
	}
	r := &rowState{id: id, cells: make(map[int64]string), maxCell: -1}
	src.row = r
	start := &event.LinkedLabeledID{Content: event.ContentSequence, ID: id, Label: attr(t, "label"), LinkedID: otu}
	src.container(t, start, func() error {
		defer func() { src.row = nil }()
		return src.finishRow(r)
	})
	return nil
}

// finishRow emits the buffered cells of a row, filling unset columns with
// the missing token.
func (src *source) finishRow(r *rowState) error {
	if err := src.flushCarry(r); err != nil {
		return err
	}
	if r.maxCell < 0 {
		return nil
	}
	m := src.mat
	n := max(m.nchars, r.maxCell+1)
	missing := m.missing
	if missing == "" {
		missing = "?"
	}
	tokens := make([]string, 0, n)
	for i := int64(0); i < n; i++ {
		tok, ok := r.cells[i]
		if !ok {
			tok = missing
		}
		tokens = append(tokens, tok)
	}
	src.emit(r, tokens)
	return nil
}

func (src *source) emit(r *rowState, tokens []string) {
	if len(tokens) == 0 {
		return
	}
	src.mat.tokens.Emit(src.q, r.id, r.col, tokens)
	r.col += int64(len(tokens))
}

func (src *source) limitToken(tok string) (string, error) {
	limit := src.ctx.Params.MaxTokenLength
	if limit <= 0 || len(tok) <= limit {
		return tok, nil
	}
	if !src.ctx.Params.TruncateOversized {
		return "", src.limitError("MaxTokenLength", len(tok), limit)
	}
	src.ctx.Diagnostics.Add(format.DiagTruncated, src.row.id, "token at line %d truncated", src.line())
	return tok[:limit], nil
}

// split turns words of a row into tokens. Restriction data may be
// written without blanks.
func (src *source) split(words []string) ([]string, error) {
	var out []string
	for _, w := range words {
		if src.mat.restriction {
			for _, ch := range w {
				out = append(out, src.mat.token(string(ch)))
			}
			continue
		}
		tok, err := src.limitToken(w)
		if err != nil {
			return nil, err
		}
		out = append(out, src.mat.token(tok))
	}
	return out, nil
}

func (src *source) flushCarry(r *rowState) error {
	if r.carry == "" {
		return nil
	}
	tokens, err := src.split([]string{r.carry})
	r.carry = ""
	if err != nil {
		return err
	}
	src.emit(r, tokens)
	return nil
}

// seqText reads sequence data. Molecular data has one token per
// character; other data is separated by blanks, and a word at the end of
// a chunk is carried to the next one.
func (src *source) seqText(data string) error {
	r := src.row
	if src.mat.setType.IsMolecular() {
		var tokens []string
		for _, ch := range data {
			if !unicode.IsSpace(ch) {
				tokens = append(tokens, string(ch))
			}
		}
		src.emit(r, tokens)
		return nil
	}
	text := r.carry + data
	r.carry = ""
	words := strings.Fields(text)
	if len(words) > 0 && !unicode.IsSpace(rune(text[len(text)-1])) {
		r.carry = words[len(words)-1]
		words = words[:len(words)-1]
	}
	tokens, err := src.split(words)
	if err != nil {
		return err
	}
	src.emit(r, tokens)
	return nil
}

func (src *source) seq(t xml.StartElement) error {
	r := src.row
	src.open(&frame{name: "seq", text: src.seqText, close: func() error {
		return src.flushCarry(r)
	}})
	return nil
}

func (src *source) cell(t xml.StartElement) error {
	m, r := src.mat, src.row
	ref := attr(t, "char")
	col, ok := m.chars[ref]
	if !ok {
		return src.referenceError("char", ref)
	}
	value := attr(t, "state")
	if m.setType != event.SetTypeContinuous {
		if _, err := src.refer(value, "state", "polymorphic_state_set", "uncertain_state_set"); err != nil {
			return err
		}
		value = m.states[value]
	}
	r.cells[col] = value
	r.maxCell = max(r.maxCell, col)
	src.open(&frame{name: "cell"})
	return nil
}

// Trees.

func (src *source) trees(t xml.StartElement) error {
	otus := attr(t, "otus")
	if otus != "" {
		var err error
		if otus, err = src.refer(otus, "otus"); err != nil {
			return err
		}
	}
	id, err := src.claim(t, "trees")
	if err != nil {
		return err
	}
	src.treesID = id
	src.container(t, &event.LinkedLabeledID{Content: event.ContentTreeNetworkGroup, ID: id, Label: attr(t, "label"), LinkedID: otus}, nil)
	return nil
}

func (src *source) tree(t xml.StartElement) error {
	id, err := src.claim(t, t.Name.Local)
	if err != nil {
		return err
	}
	content := event.ContentTree
	if t.Name.Local == "network" {
		content = event.ContentNetwork
	}
	src.treeID = id
	src.container(t, &event.LinkedLabeledID{Content: content, ID: id, Label: attr(t, "label")}, nil)
	return nil
}

func (src *source) treeSet(t xml.StartElement) error {
	return src.set(t, event.ContentTreeNetworkSet, src.treesID, map[string][]string{
		"tree":    {"tree"},
		"network": {"network"},
	})
}

func (src *source) node(t xml.StartElement) error {
	otu := attr(t, "otu")
	if otu != "" {
		var err error
		if otu, err = src.refer(otu, "otu"); err != nil {
			return err
		}
	}
	id, err := src.claim(t, "n")
	if err != nil {
		return err
	}
	root := attr(t, "root") == "true"
	src.container(t, &event.Node{ID: id, Label: attr(t, "label"), LinkedID: otu, Root: root}, nil)
	return nil
}

func (src *source) edge(t xml.StartElement) error {
	e := &event.Edge{Root: t.Name.Local == "rootedge", Label: attr(t, "label")}
	var err error
	if !e.Root {
		if e.SourceID, err = src.refer(attr(t, "source"), "node"); err != nil {
			return err
		}
	}
	if e.TargetID, err = src.refer(attr(t, "target"), "node"); err != nil {
		return err
	}
	if s := attr(t, "length"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return src.errorf("invalid edge length %q", s)
		}
		e.Length = &v
	}
	id, err := src.claim(t, "e")
	if err != nil {
		return err
	}
	e.ID = id
	src.container(t, e, nil)
	return nil
}

func (src *source) nodeEdgeSet(t xml.StartElement) error {
	return src.set(t, event.ContentNodeEdgeSet, src.treeID, map[string][]string{
		"node": {"node"},
		"edge": {"edge", "rootedge"},
	})
}
