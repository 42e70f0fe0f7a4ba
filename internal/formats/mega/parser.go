package mega

import (
	"io"
	"strings"

	"github.com/FocuswithJustin/phyloconv/core/errors"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
	"github.com/FocuswithJustin/phyloconv/internal/formats/base"
	"github.com/FocuswithJustin/phyloconv/internal/formats/command"
)

type parserState int

const (
	stateHeader parserState = iota
	stateBody
	stateRow
	stateDone
)

// source turns MEGA commands and rows into events, one command or one
// chunk of row tokens per step.
type source struct {
	ctx    *format.Context
	s      *command.Scanner
	tokens *base.Tokens
	state  parserState

	aligned bool // ALIGNMENT is open
	title   string
	seqIDs  map[string]string
	cols    map[string]int64
	rowID   string
	buf     []string
}

// NewReader returns an event reader over a MEGA document.
func NewReader(r io.Reader, ctx *format.Context) event.Reader {
	src := &source{
		ctx:    ctx,
		s:      command.NewScanner(r, "mega", command.LimitsFrom(ctx.Params)),
		tokens: base.NewTokens(ctx.Params, ""),
		seqIDs: make(map[string]string),
		cols:   make(map[string]int64),
	}
	src.s.Truncated = func(what string, pos command.Position) {
		ctx.Diagnostics.Add(format.DiagTruncated, "", "%s at line %d truncated", what, pos.Line)
	}
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
	case stateHeader:
		return "header"
	case stateRow:
		return "sequence row"
	}
	return "command"
}

func (src *source) advance(q *event.Queue) error {
	switch src.state {
	case stateHeader:
		return src.header()
	case stateRow:
		return src.row(q)
	case stateDone:
		return io.EOF
	}

	if err := src.s.SkipWhitespace(); err != nil {
		return err
	}
	ch, err := src.s.Peek()
	if err == io.EOF {
		if src.aligned {
			q.Push(event.NewEnd(event.ContentAlignment))
		}
		src.state = stateDone
		return io.EOF
	}
	if err != nil {
		return err
	}
	switch ch {
	case '[':
		text, err := src.s.ReadComment()
		if err != nil {
			return err
		}
		q.Push(&event.Comment{Text: text})
		return nil
	case '!':
		return src.command(q)
	case '#':
		return src.startRow(q)
	}
	word, _, err := src.s.ReadWord("")
	if err != nil {
		return err
	}
	if strings.EqualFold(word, "TITLE:") {
		line, err := src.s.ReadLine()
		if err != nil {
			return err
		}
		src.setTitle(q, line)
		return nil
	}
	return src.s.Errorf("unexpected %q outside a sequence", word)
}

func (src *source) header() error {
	if err := src.s.SkipWhitespace(); err != nil {
		return err
	}
	pos := src.s.Pos()
	word, _, err := src.s.ReadWord("")
	if err != nil && err != io.EOF {
		return err
	}
	if !strings.EqualFold(word, "#MEGA") {
		return src.s.ErrorAt(pos, "missing #MEGA header")
	}
	src.state = stateBody
	return nil
}

func (src *source) openAlignment(q *event.Queue) {
	if src.aligned {
		return
	}
	q.Push(&event.LinkedLabeledID{
		Content: event.ContentAlignment,
		ID:      src.ctx.Registry.NewID("matrix"),
		Label:   src.title,
	})
	src.aligned = true
}

func (src *source) setTitle(q *event.Queue, text string) {
	text = command.Unquote(strings.TrimSpace(text))
	if !src.aligned {
		src.title = text
		src.openAlignment(q)
		return
	}
	src.literal(q, event.PredicateTitle, text)
}

func (src *source) literal(q *event.Queue, predicate, value string) {
	q.Push(
		&event.LiteralMeta{ID: src.ctx.Registry.NewID("meta"), Predicate: predicate, Datatype: event.DatatypeString},
		&event.LiteralMetaContent{Value: value},
		event.NewEnd(event.ContentMetaLiteral),
	)
}

func (src *source) command(q *event.Queue) error {
	src.s.Read()
	name, _, err := src.s.ReadWord(";=")
	if err != nil {
		return src.s.Errorf("unexpected end of input inside command")
	}
	st, err := src.s.ReadStatement(';')
	if err != nil {
		return err
	}

	switch strings.ToLower(name) {
	case "title":
		src.setTitle(q, st.Text)
	case "format":
		src.openAlignment(q)
		if err := src.formatCommand(q, st); err != nil {
			return src.s.Locate(st.Pos, err)
		}
	case "description":
		src.openAlignment(q)
		src.literal(q, event.PredicateDescription, command.Unquote(st.Text))
	default:
		q.Push(&event.UnknownCommand{Command: name, Text: st.Text})
	}
	for _, c := range st.Comments {
		q.Push(&event.Comment{Text: c})
	}
	return nil
}

var dataTypes = map[string]event.CharacterStateSetType{
	"dna":        event.SetTypeDNA,
	"nucleotide": event.SetTypeDNA,
	"rna":        event.SetTypeRNA,
	"protein":    event.SetTypeAminoAcid,
	"aminoacid":  event.SetTypeAminoAcid,
}

func (src *source) formatCommand(q *event.Queue, st command.Statement) error {
	opts, err := command.ParseOptions("Format", st.Text)
	if err != nil {
		return err
	}
	for _, key := range []string{"NSeqs", "NTaxa", "NSites"} {
		if _, _, err := opts.Int(key); err != nil {
			return err
		}
	}

	setType := event.SetTypeUnknown
	if dt, ok := opts.Get("DataType"); ok {
		t, known := dataTypes[strings.ToLower(dt)]
		if !known {
			return errors.NewUnsupported("MEGA data type "+dt, "only nucleotide and protein sequences are modeled")
		}
		setType = t
	}

	match, _ := opts.Get("MatchChar")
	if identical, ok := opts.Get("Identical"); ok {
		match = identical
	}
	src.tokens.SetMatch(match)

	q.Push(&event.TokenSetDefinition{ID: src.ctx.Registry.NewID("tokens"), SetType: setType})
	definitions := []struct {
		key     string
		meaning event.TokenMeaning
	}{
		{"Indel", event.MeaningGap},
		{"Missing", event.MeaningMissing},
		{"MatchChar", event.MeaningMatch},
	}
	for _, d := range definitions {
		tok, ok := opts.Get(d.key)
		if d.meaning == event.MeaningMatch {
			tok, ok = match, match != ""
		}
		if !ok || tok == "" {
			continue
		}
		q.Push(
			&event.SingleTokenDefinition{
				ID:         src.ctx.Registry.NewID("token"),
				TokenName:  tok,
				Meaning:    d.meaning,
				SymbolType: event.SymbolAtomic,
			},
			event.NewEnd(event.ContentSingleTokenDefinition),
		)
	}
	q.Push(event.NewEnd(event.ContentTokenSetDefinition))
	return nil
}

func (src *source) startRow(q *event.Queue) error {
	src.s.Read()
	pos := src.s.Pos()
	label, _, err := src.s.ReadWord("")
	if err != nil || label == "" {
		return src.s.ErrorAt(pos, "missing sequence label after '#'")
	}
	src.openAlignment(q)
	id, ok := src.seqIDs[label]
	if !ok {
		id = src.ctx.Registry.NewID("seq")
		src.seqIDs[label] = id
	}
	src.rowID = id
	q.Push(&event.LinkedLabeledID{Content: event.ContentSequence, ID: id, Label: label})
	src.state = stateRow
	return nil
}

func (src *source) flush(q *event.Queue) {
	if len(src.buf) == 0 {
		return
	}
	src.tokens.Emit(q, src.rowID, src.cols[src.rowID], src.buf)
	src.cols[src.rowID] += int64(len(src.buf))
	src.buf = src.buf[:0]
}

// row reads tokens of the open sequence until the event cap is reached or
// the next row or command starts.
func (src *source) row(q *event.Queue) error {
	for {
		if err := src.s.SkipWhitespace(); err != nil {
			return err
		}
		ch, err := src.s.Peek()
		if err != nil && err != io.EOF {
			return err
		}
		if err == io.EOF || ch == '#' || ch == '!' {
			src.flush(q)
			q.Push(event.NewEnd(event.ContentSequence))
			src.state = stateBody
			return nil
		}
		if ch == '[' {
			src.flush(q)
			text, err := src.s.ReadComment()
			if err != nil {
				return err
			}
			q.Push(&event.Comment{Text: text})
			return nil
		}
		src.s.Read()
		src.buf = append(src.buf, string(ch))
		if len(src.buf) >= src.tokens.Max() {
			src.flush(q)
			return nil
		}
	}
}
