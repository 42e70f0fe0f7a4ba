package fasta

import (
	"io"
	"strings"
	"unicode"

	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
	"github.com/FocuswithJustin/phyloconv/internal/formats/base"
	"github.com/FocuswithJustin/phyloconv/internal/formats/command"
)

// source reads one line per step.
type source struct {
	ctx    *format.Context
	s      *command.Scanner
	tokens *base.Tokens

	aligned bool
	seqID   string
	cols    int64
	done    bool
}

// NewReader returns an event reader over a FASTA file. All records form
// one alignment; rows may differ in length.
func NewReader(r io.Reader, ctx *format.Context) event.Reader {
	src := &source{
		ctx:    ctx,
		s:      command.NewScanner(r, "fasta", command.LimitsFrom(ctx.Params)),
		tokens: base.NewTokens(ctx.Params, ""),
	}
	src.s.Truncated = func(what string, pos command.Position) {
		ctx.Diagnostics.Add(format.DiagTruncated, "", "%s at line %d truncated", what, pos.Line)
	}
	return event.NewPullReader(src)
}

func (src *source) endSequence(q *event.Queue) {
	if src.seqID != "" {
		q.Push(event.NewEnd(event.ContentSequence))
		src.seqID = ""
	}
}

func (src *source) Advance(q *event.Queue) error {
	if src.done {
		return io.EOF
	}
	if src.s.AtEOF() {
		src.endSequence(q)
		if src.aligned {
			q.Push(event.NewEnd(event.ContentAlignment))
		}
		src.done = true
		return io.EOF
	}

	pos := src.s.Pos()
	line, err := src.s.ReadLine()
	if err != nil {
		return err
	}
	switch {
	case strings.HasPrefix(line, ">"):
		src.endSequence(q)
		if !src.aligned {
			q.Push(&event.LinkedLabeledID{Content: event.ContentAlignment, ID: src.ctx.Registry.NewID("matrix")})
			src.aligned = true
		}
		src.seqID = src.ctx.Registry.NewID("seq")
		src.cols = 0
		q.Push(&event.LinkedLabeledID{
			Content: event.ContentSequence,
			ID:      src.seqID,
			Label:   strings.TrimSpace(line[1:]),
		})
	case strings.HasPrefix(line, ";"):
		q.Push(&event.Comment{Text: strings.TrimSpace(line[1:])})
	default:
		var toks []string
		for _, r := range line {
			if !unicode.IsSpace(r) {
				toks = append(toks, string(r))
			}
		}
		if len(toks) == 0 {
			return nil
		}
		if src.seqID == "" {
			return src.s.ErrorAt(pos, "sequence data before the first '>' header")
		}
		n := int64(len(toks))
		src.tokens.Emit(q, src.seqID, src.cols, toks)
		src.cols += n
	}
	return nil
}
