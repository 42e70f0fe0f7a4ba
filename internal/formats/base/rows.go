package base

import (
	"bufio"
	"strings"

	"github.com/FocuswithJustin/phyloconv/core/adapter"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
)

// RowWriter streams the tokens of one sequence to w.
type RowWriter struct {
	W *bufio.Writer
	// Separator is written between tokens.
	Separator string
	// Wrap starts a new line after this many tokens. Zero disables wrapping.
	Wrap int
	// Indent is written at the start of every wrapped line.
	Indent string
	// Spell maps a token to the text written for it. Nil writes tokens
	// as they are.
	Spell func(string) string
	n     int64
}

func (rw *RowWriter) token(tok string) {
	if rw.n > 0 {
		if rw.Wrap > 0 && rw.n%int64(rw.Wrap) == 0 {
			rw.W.WriteByte('\n')
			rw.W.WriteString(rw.Indent)
		} else {
			rw.W.WriteString(rw.Separator)
		}
	}
	if rw.Spell != nil {
		tok = rw.Spell(tok)
	}
	rw.W.WriteString(tok)
	rw.n++
}

// WriteRow writes the tokens of row and pads it to columns with missing.
// Padding is skipped when columns is zero.
func (rw *RowWriter) WriteRow(seqs adapter.Elements[*event.LinkedLabeledID], row format.Row, columns int64, missing string) error {
	rw.n = 0
	err := seqs.WriteContent(adapter.ReceiverFunc(func(e event.Event) error {
		if tokens, ok := e.(*event.SequenceTokens); ok {
			for _, tok := range tokens.Tokens {
				rw.token(tok)
			}
		}
		return nil
	}), row.SequenceID)
	if err != nil {
		return err
	}
	for rw.n < columns {
		rw.token(missing)
	}
	return nil
}

// EscapeSpaces replaces whitespace in labels with underscores.
func EscapeSpaces(s string) string {
	return strings.Join(strings.Fields(s), "_")
}
