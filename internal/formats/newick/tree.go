package newick

import (
	"strconv"
	"strings"

	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
	"github.com/FocuswithJustin/phyloconv/internal/formats/command"
)

// delims end an unquoted label or branch length.
const delims = "(),:;"

// ResolveFunc maps a node label to an OTU id and the label to emit. leaf
// is false for internal nodes. An empty otu leaves the node unlinked.
type ResolveFunc func(label string, leaf bool) (otu, display string, err error)

// pending is the node being read. Its events are pushed once the next ','
// ')' or ';' shows that nothing more belongs to it.
type pending struct {
	id       string
	label    string
	labeled  bool
	internal bool
	length   *float64
	nodeMeta []event.Event
	edgeMeta []event.Event
}

// TreeParser reads one Newick tree per call sequence, one token per Step.
// Nodes are emitted in postorder, each followed by the edge to its parent.
// The caller pushes the TREE start and end events.
type TreeParser struct {
	ctx     *format.Context
	s       *command.Scanner
	resolve ResolveFunc

	frames  []string
	cur     *pending
	started bool
}

// NewTreeParser returns a parser reading from s. resolve may be nil.
func NewTreeParser(ctx *format.Context, s *command.Scanner, resolve ResolveFunc) *TreeParser {
	return &TreeParser{ctx: ctx, s: s, resolve: resolve}
}

// Reset prepares the parser for the next tree.
func (p *TreeParser) Reset() {
	p.frames = p.frames[:0]
	p.cur = p.newPending()
	p.started = false
}

func (p *TreeParser) newPending() *pending {
	return &pending{id: p.ctx.Registry.NewID("n")}
}

// Rooted pushes the rooting flag of the current tree as metadata.
func (p *TreeParser) Rooted(q *event.Queue, rooted bool) {
	q.Push(literal(p.ctx, event.PredicateRooted, strconv.FormatBool(rooted), event.DatatypeBoolean)...)
}

// Step consumes one token. It reports true once the terminating ';' has
// been read and all events of the tree are queued. Input that ends before
// the ';' is a ParseError.
func (p *TreeParser) Step(q *event.Queue) (bool, error) {
	done, err := p.step(q)
	if err != nil {
		return false, p.s.Unexpected(err, "tree (missing ';')")
	}
	return done, nil
}

func (p *TreeParser) step(q *event.Queue) (bool, error) {
	if p.cur == nil {
		p.Reset()
	}
	if err := p.s.SkipWhitespace(); err != nil {
		return false, err
	}
	pos := p.s.Pos()
	ch, err := p.s.Peek()
	if err != nil {
		return false, p.s.ErrorAt(pos, "unexpected end of input inside tree (missing ';')")
	}

	switch ch {
	case '[':
		text, err := p.s.ReadComment()
		if err != nil {
			return false, err
		}
		p.comment(q, text)
	case '(':
		p.s.Read()
		if p.cur.labeled || p.cur.length != nil || p.cur.internal {
			return false, p.s.ErrorAt(pos, "unexpected '(' after a node label")
		}
		p.frames = append(p.frames, p.cur.id)
		p.cur = p.newPending()
		p.started = true
	case ',':
		p.s.Read()
		if len(p.frames) == 0 {
			return false, p.s.ErrorAt(pos, "',' outside parentheses")
		}
		if err := p.finish(q, p.frames[len(p.frames)-1]); err != nil {
			return false, err
		}
		p.cur = p.newPending()
	case ')':
		p.s.Read()
		if len(p.frames) == 0 {
			return false, p.s.ErrorAt(pos, "unbalanced ')'")
		}
		parent := p.frames[len(p.frames)-1]
		if err := p.finish(q, parent); err != nil {
			return false, err
		}
		p.frames = p.frames[:len(p.frames)-1]
		p.cur = &pending{id: parent, internal: true}
	case ':':
		p.s.Read()
		if err := p.length(pos); err != nil {
			return false, err
		}
	case ';':
		p.s.Read()
		if len(p.frames) > 0 {
			return false, p.s.ErrorAt(pos, "missing ')' before ';'")
		}
		if p.started || p.cur.labeled || p.cur.length != nil {
			if err := p.finish(q, ""); err != nil {
				return false, err
			}
		}
		p.cur = nil
		return true, nil
	default:
		word, quoted, err := p.s.ReadWord(delims)
		if err != nil {
			return false, err
		}
		if word == "" && !quoted {
			p.s.Read()
			return false, p.s.ErrorAt(pos, "unexpected %q in tree", ch)
		}
		if p.cur.labeled || p.cur.length != nil {
			return false, p.s.ErrorAt(pos, "unexpected %q after a node label", word)
		}
		if !quoted {
			word = strings.ReplaceAll(word, "_", " ")
		}
		p.cur.label = word
		p.cur.labeled = true
		p.started = true
	}
	return false, nil
}

func (p *TreeParser) length(pos command.Position) error {
	if err := p.s.SkipWhitespace(); err != nil {
		return err
	}
	word, _, err := p.s.ReadWord(delims)
	if err != nil {
		return err
	}
	if p.cur.length != nil {
		return p.s.ErrorAt(pos, "node has two branch lengths")
	}
	v, err := strconv.ParseFloat(word, 64)
	if err != nil {
		return p.s.ErrorAt(pos, "invalid branch length %q", word)
	}
	p.cur.length = &v
	return nil
}

// comment handles a bracket comment inside a tree. [&R] and [&U] before
// the first node set the rooting; other hot comments become metadata of
// the current node, or of its edge once the branch length has been read.
func (p *TreeParser) comment(q *event.Queue, text string) {
	body, hot := strings.CutPrefix(text, "&")
	if !hot {
		q.Push(&event.Comment{Text: text})
		return
	}
	if !p.started {
		switch strings.ToUpper(strings.TrimSpace(body)) {
		case "R":
			p.Rooted(q, true)
			return
		case "U":
			p.Rooted(q, false)
			return
		}
	}
	var meta []event.Event
	for _, kv := range SplitHotComment(body) {
		meta = append(meta, literal(p.ctx, kv.Key, kv.Value, kv.datatype())...)
	}
	if p.cur.length != nil {
		p.cur.edgeMeta = append(p.cur.edgeMeta, meta...)
	} else {
		p.cur.nodeMeta = append(p.cur.nodeMeta, meta...)
	}
}

// finish pushes the events of the current node and of the edge from
// parent. An empty parent makes the node the root.
func (p *TreeParser) finish(q *event.Queue, parent string) error {
	n := p.cur
	otu, label := "", n.label
	if p.resolve != nil && n.labeled {
		var err error
		otu, label, err = p.resolve(n.label, !n.internal)
		if err != nil {
			return p.s.Locate(p.s.Pos(), err)
		}
	}
	q.Push(&event.Node{ID: n.id, Label: label, LinkedID: otu, Root: parent == ""})
	q.Push(n.nodeMeta...)
	q.Push(event.NewEnd(event.ContentNode))

	switch {
	case parent != "":
		q.Push(&event.Edge{ID: p.ctx.Registry.NewID("e"), SourceID: parent, TargetID: n.id, Length: n.length})
		q.Push(n.edgeMeta...)
		q.Push(event.NewEnd(event.ContentEdge))
	case n.length != nil || len(n.edgeMeta) > 0:
		q.Push(&event.Edge{Root: true, ID: p.ctx.Registry.NewID("e"), TargetID: n.id, Length: n.length})
		q.Push(n.edgeMeta...)
		q.Push(event.NewEnd(event.ContentRootEdge))
	}
	return nil
}

func literal(ctx *format.Context, predicate, value, datatype string) []event.Event {
	return []event.Event{
		&event.LiteralMeta{ID: ctx.Registry.NewID("meta"), Predicate: predicate, Datatype: datatype},
		&event.LiteralMetaContent{Value: value},
		event.NewEnd(event.ContentMetaLiteral),
	}
}

// KeyValue is one entry of a hot comment.
type KeyValue struct {
	Key   string
	Value string
	// Flag is set for an entry without '='.
	Flag bool
}

func (kv KeyValue) datatype() string {
	if kv.Flag {
		return event.DatatypeBoolean
	}
	if _, err := strconv.ParseFloat(kv.Value, 64); err == nil {
		return event.DatatypeDouble
	}
	return event.DatatypeString
}

// SplitHotComment splits the body of a [&...] comment into its entries.
// Commas inside braces or double quotes do not separate entries, so
// BEAST-style ranges like hpd={1.5,2.5} stay whole.
func SplitHotComment(body string) []KeyValue {
	var out []KeyValue
	add := func(entry string) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			return
		}
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			out = append(out, KeyValue{Key: entry, Value: "true", Flag: true})
			return
		}
		v = strings.TrimSpace(v)
		if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
			v = v[1 : len(v)-1]
		}
		out = append(out, KeyValue{Key: strings.TrimSpace(k), Value: v})
	}

	depth, quoted, start := 0, false, 0
	for i, r := range body {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '{':
			depth++
		case r == '}':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			add(body[start:i])
			start = i + 1
		}
	}
	add(body[start:])
	return out
}

// FormatHotComment renders entries as a [&...] comment.
func FormatHotComment(kvs []KeyValue) string {
	var sb strings.Builder
	sb.WriteString("[&")
	for i, kv := range kvs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(kv.Key)
		if kv.Flag {
			continue
		}
		sb.WriteByte('=')
		v := strings.ReplaceAll(kv.Value, `"`, "'")
		v = strings.NewReplacer("[", "(", "]", ")").Replace(v)
		if strings.ContainsAny(v, ",={} ") && !(strings.HasPrefix(v, "{") && strings.HasSuffix(v, "}")) {
			v = `"` + v + `"`
		}
		sb.WriteString(v)
	}
	sb.WriteByte(']')
	return sb.String()
}
