package newick

import (
	"strings"
	"testing"

	"github.com/FocuswithJustin/phyloconv/core/config"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
)

func FuzzReader(f *testing.F) {
	f.Add("(A:1,B:2)C;")
	f.Add("[&R] ((A[&rate=1.5]:0.1[&x={1,2}],B),'q''uoted');\n[&U](X,Y);")
	f.Add("(,,(,));")
	f.Add("((A,B);")
	f.Add(":")
	f.Add("A:")
	f.Add("(A,B);(C")

	f.Fuzz(func(t *testing.T, input string) {
		p := config.Default()
		p.MaxCommentLength = 64
		p.MaxTokenLength = 32
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
