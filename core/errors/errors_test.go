package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseError(t *testing.T) {
	tests := []struct {
		name    string
		err     *ParseError
		wantMsg string
	}{
		{
			name:    "with position",
			err:     &ParseError{Format: "nexus", Offset: 42, Line: 3, Column: 7, Message: "unexpected end of input"},
			wantMsg: "nexus: line 3, column 7 (offset 42): unexpected end of input",
		},
		{
			name:    "without position",
			err:     NewParse("mega", "missing #MEGA header"),
			wantMsg: "mega: missing #MEGA header",
		},
		{
			name:    "with cause",
			err:     &ParseError{Message: "invalid NTAX", Err: fmt.Errorf("strconv: bad")},
			wantMsg: "invalid NTAX: strconv: bad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrGrammar) {
				t.Errorf("errors.Is(%v, ErrGrammar) = false", tt.err)
			}
		})
	}

	t.Run("cause is reachable", func(t *testing.T) {
		cause := fmt.Errorf("disk error")
		err := &ParseError{Message: "read failed", Err: cause}
		if !errors.Is(err, cause) {
			t.Errorf("errors.Is(err, cause) = false")
		}
	})
}

func TestCategories(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantBase error
		wantMsg  string
	}{
		{"unsupported", NewUnsupported("TRANSPOSE", "transposed matrices are not modeled"), ErrUnsupported,
			"unsupported TRANSPOSE: transposed matrices are not modeled"},
		{"unsupported no reason", &UnsupportedError{Feature: "network"}, ErrUnsupported, "unsupported network"},
		{"consistency", NewConsistency("m1", "declared %d columns, longest sequence has %d", 4, 6), ErrConsistency,
			`inconsistent element "m1": declared 4 columns, longest sequence has 6`},
		{"duplicate", &DuplicateIDError{ID: "otu1"}, ErrConsistency, `duplicate id "otu1"`},
		{"dangling", &DanglingLinkError{From: "seq1", To: "otu9", Kind: "OTU"}, ErrConsistency,
			`element "seq1" links to undeclared OTU "otu9"`},
		{"circular", &CircularReferenceError{SetID: "A", Path: []string{"A", "B", "A"}}, ErrConsistency,
			"circular set reference: A -> B -> A"},
		{"reference", &ReferenceError{Kind: "TAXA block", Name: "later", Line: 12, Column: 7}, ErrReference,
			`line 12, column 7: reference to TAXA block "later" which was not declared before`},
		{"reference without position", &ReferenceError{Kind: "otus", Name: "o9"}, ErrReference,
			`reference to otus "o9" which was not declared before`},
		{"limit at position", &ResourceLimitError{Limit: "MaxTokenLength", Value: 9, Max: 4, Line: 3, Column: 2}, ErrResourceLimit,
			"line 3, column 2: MaxTokenLength exceeded: 9 > 4"},
		{"limit", &ResourceLimitError{Limit: "MaxCommentLength", Value: 10, Max: 5}, ErrResourceLimit,
			"MaxCommentLength exceeded: 10 > 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !Is(tt.err, tt.wantBase) {
				t.Errorf("Is(%v, %v) = false", tt.err, tt.wantBase)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}

	base := &DuplicateIDError{ID: "x"}
	err := Wrapf(base, "writing %s", "nexml")
	if err.Error() != `writing nexml: duplicate id "x"` {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	var dup *DuplicateIDError
	if !As(err, &dup) || dup.ID != "x" {
		t.Errorf("As() did not recover DuplicateIDError")
	}
}
