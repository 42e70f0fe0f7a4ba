// Package base provides the pieces shared by the sequence readers and
// writers: match-token expansion, chunked token emission and row output.
package base

import (
	"github.com/FocuswithJustin/phyloconv/core/config"
	"github.com/FocuswithJustin/phyloconv/core/event"
)

// Tokens emits SEQUENCE_TOKENS events for the rows of one alignment. The
// first row is the reference: a match token in a later row is replaced by
// the reference token of the same column.
type Tokens struct {
	match     string
	replace   bool
	max       int
	refID     string
	reference []string
}

// NewTokens returns an emitter configured from p. match is the match token
// declared by the input, or "" for the configured default.
func NewTokens(p config.Params, match string) *Tokens {
	t := &Tokens{replace: p.ReplaceMatchTokens, max: p.MaxTokensPerEvent, match: p.MatchToken}
	if match != "" {
		t.match = match
	}
	if t.max <= 0 {
		t.max = 1
	}
	return t
}

// SetMatch changes the match token.
func (t *Tokens) SetMatch(match string) {
	if match != "" {
		t.match = match
	}
}

// Max returns the number of tokens per event.
func (t *Tokens) Max() int {
	return t.max
}

// Emit pushes tokens of sequence seqID onto q. col is the column of the
// first token, i.e. the number of tokens already emitted for seqID. tokens
// is modified in place.
func (t *Tokens) Emit(q *event.Queue, seqID string, col int64, tokens []string) {
	if len(tokens) == 0 {
		return
	}
	if t.refID == "" {
		t.refID = seqID
	}
	if seqID == t.refID {
		if t.replace {
			t.reference = append(t.reference, tokens...)
		}
	} else if t.replace {
		for i, tok := range tokens {
			c := col + int64(i)
			if tok == t.match && c < int64(len(t.reference)) {
				tokens[i] = t.reference[c]
			}
		}
	}
	for len(tokens) > 0 {
		n := min(t.max, len(tokens))
		chunk := make([]string, n)
		copy(chunk, tokens[:n])
		q.Push(&event.SequenceTokens{Tokens: chunk})
		tokens = tokens[n:]
	}
}

// Reset forgets the reference row.
func (t *Tokens) Reset() {
	t.refID = ""
	t.reference = nil
}
