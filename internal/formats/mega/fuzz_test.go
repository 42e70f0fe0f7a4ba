package mega

import (
	"strings"
	"testing"

	"github.com/FocuswithJustin/phyloconv/core/config"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
)

// FuzzReader checks that the reader either fails or produces a stream that
// follows the event grammar.
func FuzzReader(f *testing.F) {
	f.Add("#MEGA\n!Title x;\n#A ACGT\n#B ACGT\n")
	f.Add("#MEGA\n!Format DataType=DNA MatchChar=.;\n#A AC[c]GT\n#B ..GT\n#A AA\n")
	f.Add("#mega\nTITLE: t\n!Description 'd';\n")
	f.Add("#MEGA\n!Format NSeqs=;\n")
	f.Add("#MEGA\n!Format DataType")

	f.Fuzz(func(t *testing.T, input string) {
		p := config.Default()
		p.MaxTokensPerEvent = 3
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
