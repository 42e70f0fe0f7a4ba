package fasta

import (
	"strings"
	"testing"

	"github.com/FocuswithJustin/phyloconv/core/config"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
)

func FuzzReader(f *testing.F) {
	f.Add(">A\nACGT\n>B\nAC\n")
	f.Add("; c\n>\n\n>x y\n..\n")
	f.Add("ACGT")

	f.Fuzz(func(t *testing.T, input string) {
		p := config.Default()
		p.MaxCommentLength = 64
		ctx := format.NewContext(p, nil)
		events, err := event.Collect(NewReader(strings.NewReader(input), ctx))
		if err != nil {
			return
		}
		if err := event.Validate(events); err != nil {
			t.Fatalf("grammar violation for %q: %v", input, err)
		}
	})
}
