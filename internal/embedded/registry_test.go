package embedded_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/FocuswithJustin/phyloconv/core/config"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
	"github.com/FocuswithJustin/phyloconv/internal/embedded"
)

var expectedFormats = []string{"fasta", "mega", "newick", "nexml", "nexus"}

func TestFormatRegistrations(t *testing.T) {
	for _, id := range expectedFormats {
		t.Run(id, func(t *testing.T) {
			f := format.Get(id)
			if f == nil {
				t.Fatalf("format %q not registered", id)
			}
			if f.NewReader == nil || f.NewWriter == nil {
				t.Errorf("format %q lacks a reader or writer", id)
			}
			if len(f.Extensions) == 0 {
				t.Errorf("format %q has no extensions", id)
			}
		})
	}
	if !embedded.IsInitialized() {
		t.Error("IsInitialized() returned false")
	}
	if got := embedded.FormatCount(); got != len(expectedFormats) {
		t.Errorf("FormatCount() = %d, want %d", got, len(expectedFormats))
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"#NEXUS\nbegin taxa;", "nexus"},
		{"  #mega\n!Title x;", "mega"},
		{">seq1\nACGT\n", "fasta"},
		{"((A,B),C);\n", "newick"},
		{`<?xml version="1.0"?><nex:nexml/>`, "nexml"},
		{"<nexml version=\"0.9\"/>", "nexml"},
	}
	for _, tt := range tests {
		f, err := format.Detect([]byte(tt.input))
		if err != nil {
			t.Errorf("Detect(%q) error = %v", tt.input, err)
			continue
		}
		if f.ID != tt.want {
			t.Errorf("Detect(%q) = %s, want %s", tt.input, f.ID, tt.want)
		}
	}
}

// TestConvertAcrossFormats reads a Nexus document and writes it to every
// format, reading each result back.
func TestConvertAcrossFormats(t *testing.T) {
	input := `#NEXUS
begin taxa;
  dimensions ntax=3;
  taxlabels A B C;
end;
begin characters;
  dimensions nchar=4;
  format datatype=dna missing=? gap=-;
  matrix
    A ACGT
    B AC-T
    C ACGA
  ;
end;
begin trees;
  tree t1 = ((A:0.1,B:0.2):0.05,C:0.3);
end;
`
	for _, id := range expectedFormats {
		t.Run(id, func(t *testing.T) {
			ctx := format.NewContext(config.Default(), nil)
			var buf bytes.Buffer
			err := format.Convert(ctx, strings.NewReader(input), format.Get("nexus"), &buf, format.Get(id), "input.nex")
			if err != nil {
				t.Fatalf("Convert() error = %v", err)
			}
			if buf.Len() == 0 {
				t.Fatal("empty output")
			}
			back := format.NewContext(config.Default(), nil)
			events, err := event.Collect(format.Get(id).NewReader(bytes.NewReader(buf.Bytes()), back))
			if err != nil {
				t.Fatalf("reading %s output: %v\n%s", id, err, buf.String())
			}
			if err := event.Validate(events); err != nil {
				t.Errorf("reread violates the grammar: %v", err)
			}
		})
	}
}
