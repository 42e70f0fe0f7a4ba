package nexus

import (
	"io"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/phyloconv/core/errors"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
	"github.com/FocuswithJustin/phyloconv/internal/formats/base"
	"github.com/FocuswithJustin/phyloconv/internal/formats/command"
	"github.com/FocuswithJustin/phyloconv/internal/formats/newick"
)

type parserState int

const (
	stateHeader parserState = iota
	stateTop                // between blocks
	stateBlock              // between commands of a block
	stateMatrix             // between rows of a MATRIX command
	stateRow                // inside a row
	stateTree               // inside a TREE command
	stateDone
)

// taxaBlock is a TAXA block that has been read, kept for LINK and
// label lookups by later blocks.
type taxaBlock struct {
	id      string
	title   string
	ids     []string
	labels  []string
	byLabel map[string]string
}

// lookup finds a taxon by label or by its 1-based number and returns its
// id and label.
func (t *taxaBlock) lookup(name string) (string, string, bool) {
	if id, ok := t.byLabel[name]; ok {
		return id, name, true
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 1 && n <= len(t.ids) {
		return t.ids[n-1], t.labels[n-1], true
	}
	return "", "", false
}

type matrixBlock struct {
	id         string
	title      string
	columns    int64
	charLabels map[string]int64
	// groups holds the (...) and {...} cells of the matrix in first-seen
	// order, keyed by the token written for them.
	groups    []groupCell
	groupSeen map[string]bool
}

// groupCell is a polymorphic (...) or uncertain {...} matrix cell.
type groupCell struct {
	token     string
	members   []string
	uncertain bool
}

type treesBlock struct {
	id      string
	title   string
	ids     []string
	byLabel map[string]string
}

type matrixFormat struct {
	setType    event.CharacterStateSetType
	gap        string
	missing    string
	match      string
	interleave bool
	tokens     bool
}

// blockState holds what is known about the open block.
type blockState struct {
	name   string
	title  string
	link   *taxaBlock
	linked bool // link was given by LINK or TAXLABELS
	open   bool // the block's container event has been pushed

	ntax, nchar int64

	taxa   *taxaBlock
	matrix *matrixBlock
	trees  *treesBlock

	format    matrixFormat
	tokens    *base.Tokens
	seqIDs    map[string]string
	seqOrder  []string
	seqLabels map[string]string
	cols      map[string]int64
	rowID     string
	buf       []string

	translate map[string]string
}

// source turns Nexus blocks into events. Each step handles one command,
// one matrix row chunk or one token of a tree.
type source struct {
	ctx   *format.Context
	s     *command.Scanner
	tp    *newick.TreeParser
	state parserState
	blk   blockState

	taxa     []*taxaBlock
	matrices []*matrixBlock
	groups   []*treesBlock
	// sets maps a parent id to its set names (upper case) and ids.
	sets map[string]map[string]string
}

// NewReader returns an event reader over a Nexus document.
func NewReader(r io.Reader, ctx *format.Context) event.Reader {
	src := &source{
		ctx:  ctx,
		s:    command.NewScanner(r, "nexus", command.LimitsFrom(ctx.Params)),
		sets: make(map[string]map[string]string),
	}
	src.s.Truncated = func(what string, pos command.Position) {
		ctx.Diagnostics.Add(format.DiagTruncated, "", "%s at line %d truncated", what, pos.Line)
	}
	src.tp = newick.NewTreeParser(ctx, src.s, src.resolveNode)
	return event.NewPullReader(src)
}

// Advance reports io.EOF only at the end of the document; input that ends
// inside a command, block or tree is a ParseError.
func (src *source) Advance(q *event.Queue) error {
	err := src.advance(q)
	if err == io.EOF && src.state != stateDone {
		return src.s.Unexpected(err, src.construct())
	}
	return err
}

// construct names what was being read, for end-of-input errors.
func (src *source) construct() string {
	switch src.state {
	case stateHeader, stateTop:
		return "command"
	case stateMatrix, stateRow:
		return "MATRIX (missing ';')"
	case stateTree:
		return "TREE (missing ';')"
	}
	if src.blk.name != "" {
		return src.blk.name + " block (missing END)"
	}
	return "block (missing END)"
}

func (src *source) advance(q *event.Queue) error {
	switch src.state {
	case stateHeader:
		return src.header()
	case stateMatrix:
		return src.betweenRows(q)
	case stateRow:
		return src.row(q)
	case stateTree:
		done, err := src.tp.Step(q)
		if err != nil {
			return err
		}
		if done {
			q.Push(event.NewEnd(event.ContentTree))
			src.state = stateBlock
		}
		return nil
	case stateDone:
		return io.EOF
	}

	if err := src.s.SkipWhitespace(); err != nil {
		return err
	}
	ch, err := src.s.Peek()
	if err == io.EOF {
		if src.state == stateBlock {
			return src.s.Errorf("unexpected end of input inside %s block (missing END)", src.blk.name)
		}
		src.state = stateDone
		return io.EOF
	}
	if err != nil {
		return err
	}
	if ch == '[' {
		text, err := src.s.ReadComment()
		if err != nil {
			return err
		}
		q.Push(&event.Comment{Text: text})
		return nil
	}

	pos := src.s.Pos()
	name, _, err := src.s.ReadWord(";")
	if err != nil {
		return err
	}
	if name == "" {
		// An empty command.
		src.s.Read()
		return nil
	}
	if src.state == stateTop {
		return src.begin(q, pos, name)
	}
	return src.command(q, pos, strings.ToUpper(name))
}

func (src *source) header() error {
	if err := src.s.SkipWhitespace(); err != nil {
		return err
	}
	pos := src.s.Pos()
	word, _, err := src.s.ReadWord(";")
	if err != nil && err != io.EOF {
		return err
	}
	if !strings.EqualFold(word, "#NEXUS") {
		return src.s.ErrorAt(pos, "missing #NEXUS header")
	}
	src.state = stateTop
	return nil
}

func (src *source) begin(q *event.Queue, pos command.Position, word string) error {
	if !strings.EqualFold(word, "BEGIN") {
		return src.s.ErrorAt(pos, "expected BEGIN, found %q", word)
	}
	st, err := src.s.ReadStatement(';')
	if err != nil {
		return err
	}
	name := strings.ToUpper(command.Unquote(st.Text))
	if name == "" {
		return src.s.ErrorAt(pos, "missing block name after BEGIN")
	}
	src.blk = blockState{name: name}
	switch name {
	case "CHARACTERS", "DATA", "TREES":
		src.blk.link = src.lastTaxa()
	}
	for _, c := range st.Comments {
		q.Push(&event.Comment{Text: c})
	}
	src.state = stateBlock
	return nil
}

func (src *source) lastTaxa() *taxaBlock {
	if len(src.taxa) == 0 {
		return nil
	}
	return src.taxa[len(src.taxa)-1]
}

func (src *source) command(q *event.Queue, pos command.Position, name string) error {
	b := &src.blk
	switch {
	case name == "END" || name == "ENDBLOCK":
		if _, err := src.s.ReadStatement(';'); err != nil {
			return err
		}
		return src.end(q)
	case name == "MATRIX" && isCharacters(b.name):
		return src.startMatrix(q)
	case (name == "TREE" || name == "UTREE") && b.name == "TREES":
		return src.startTree(q, pos, name == "UTREE")
	}

	st, err := src.s.ReadStatement(';')
	if err != nil {
		return err
	}
	switch b.name {
	case "TAXA":
		err = src.taxaCommand(q, name, st)
	case "CHARACTERS", "DATA":
		err = src.charactersCommand(q, name, st)
	case "TREES":
		err = src.treesCommand(q, name, st)
	case "SETS":
		err = src.setsCommand(q, name, st)
	default:
		q.Push(&event.UnknownCommand{Command: b.name + "." + name, Text: st.Text})
	}
	if err != nil {
		return src.s.Locate(st.Pos, err)
	}
	for _, c := range st.Comments {
		q.Push(&event.Comment{Text: c})
	}
	return nil
}

func isCharacters(block string) bool {
	return block == "CHARACTERS" || block == "DATA"
}

func (src *source) end(q *event.Queue) error {
	b := &src.blk
	switch {
	case b.name == "TAXA":
		src.openTaxa(q)
		if b.ntax > 0 && int64(len(b.taxa.ids)) != b.ntax {
			return src.s.Errorf("TAXA block lists %d taxa but NTAX is %d", len(b.taxa.ids), b.ntax)
		}
		q.Push(event.NewEnd(event.ContentOTUList))
	case isCharacters(b.name):
		src.openMatrix(q)
		src.defineGroups(q)
		q.Push(event.NewEnd(event.ContentAlignment))
	case b.name == "TREES":
		src.openTrees(q)
		q.Push(event.NewEnd(event.ContentTreeNetworkGroup))
	}
	src.state = stateTop
	return nil
}

// word is one word of a command. Unquoted underscores stand for blanks in
// names.
type word struct {
	text   string
	quoted bool
}

func (w word) name() string {
	if w.quoted {
		return w.text
	}
	return strings.ReplaceAll(w.text, "_", " ")
}

func (w word) is(punct string) bool {
	return !w.quoted && w.text == punct
}

// splitWords splits command text into words. Every rune of punct is a word
// of its own.
func splitWords(text, punct string) ([]word, error) {
	s := command.NewScanner(strings.NewReader(text), "nexus", command.Limits{})
	var out []word
	for {
		s.SkipWhitespace()
		ch, err := s.Peek()
		if err == io.EOF {
			return out, nil
		}
		if strings.ContainsRune(punct, ch) {
			s.Read()
			out = append(out, word{text: string(ch)})
			continue
		}
		w, quoted, err := s.ReadWord(punct)
		if err != nil {
			return nil, &errors.ParseError{Message: "unterminated quoted word"}
		}
		if w == "" && !quoted {
			s.Read()
			continue
		}
		out = append(out, word{text: w, quoted: quoted})
	}
}

func (src *source) literal(q *event.Queue, predicate, value string) {
	q.Push(
		&event.LiteralMeta{ID: src.ctx.Registry.NewID("meta"), Predicate: predicate, Datatype: event.DatatypeString},
		&event.LiteralMetaContent{Value: value},
		event.NewEnd(event.ContentMetaLiteral),
	)
}

// title handles TITLE. Once the container is open the title can only be
// kept as metadata.
func (src *source) title(q *event.Queue, st command.Statement) {
	text := command.Unquote(st.Text)
	if src.blk.open {
		src.literal(q, event.PredicateTitle, text)
		return
	}
	src.blk.title = text
}

func (src *source) link(st command.Statement) error {
	opts, err := command.ParseOptions("LINK", st.Text)
	if err != nil {
		return err
	}
	name, ok := opts.Get("TAXA")
	if !ok {
		return nil
	}
	if src.blk.open {
		return &errors.ParseError{Message: "LINK must precede the block content"}
	}
	tb, err := pick(src.taxa, name, "TAXA block", func(t *taxaBlock) string { return t.title })
	if err != nil {
		return err
	}
	src.blk.link, src.blk.linked = tb, true
	return nil
}

// sameName compares Nexus names, in which case and the blank/underscore
// distinction do not matter.
func sameName(a, b string) bool {
	return strings.EqualFold(strings.ReplaceAll(a, "_", " "), strings.ReplaceAll(b, "_", " "))
}

func (src *source) dimensions(st command.Statement) error {
	opts, err := command.ParseOptions("DIMENSIONS", st.Text)
	if err != nil {
		return err
	}
	if n, ok, err := opts.Int("NTAX"); err != nil {
		return err
	} else if ok {
		src.blk.ntax = n
	}
	if n, ok, err := opts.Int("NCHAR"); err != nil {
		return err
	} else if ok {
		src.blk.nchar = n
	}
	return nil
}
