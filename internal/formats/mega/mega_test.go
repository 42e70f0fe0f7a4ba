package mega

import (
	"bytes"
	"strings"
	"testing"

	"github.com/FocuswithJustin/phyloconv/core/adapter"
	"github.com/FocuswithJustin/phyloconv/core/config"
	"github.com/FocuswithJustin/phyloconv/core/errors"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
)

func read(t *testing.T, p config.Params, input string) ([]event.Event, error) {
	t.Helper()
	ctx := format.NewContext(p, nil)
	return event.Collect(NewReader(strings.NewReader(input), ctx))
}

func mustRead(t *testing.T, input string) []event.Event {
	t.Helper()
	events, err := read(t, config.Default(), input)
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	if err := event.Validate(events); err != nil {
		t.Fatalf("reader output violates the grammar: %v", err)
	}
	return events
}

func describe(events []event.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = event.Describe(e)
	}
	return out
}

func tokensOf(events []event.Event, seqID string) []string {
	var out []string
	current := ""
	for _, e := range events {
		switch v := e.(type) {
		case *event.LinkedLabeledID:
			if v.Content == event.ContentSequence {
				current = v.ID
			}
		case *event.SequenceTokens:
			if current == seqID {
				out = append(out, v.Tokens...)
			}
		case *event.PartEnd:
			if v.Content == event.ContentSequence {
				current = ""
			}
		}
	}
	return out
}

func TestReadTwoSequences(t *testing.T) {
	events := mustRead(t, "#MEGA\n!TITLE x;\n#A ACGT\n#B ACGT\n")
	want := []string{
		"DOCUMENT/START",
		`ALIGNMENT/START id="matrix1" label="x"`,
		`SEQUENCE/START id="seq1" label="A"`,
		"SEQUENCE_TOKENS/SOLE 4 tokens",
		"SEQUENCE/END",
		`SEQUENCE/START id="seq2" label="B"`,
		"SEQUENCE_TOKENS/SOLE 4 tokens",
		"SEQUENCE/END",
		"ALIGNMENT/END",
		"DOCUMENT/END",
	}
	got := describe(events)
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("events =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestReadFormatCommand(t *testing.T) {
	events := mustRead(t, "#MEGA\n!Title m;\n!Format DataType=Protein Indel=- Missing=? NSeqs=1;\n#A MK-?\n")
	var defs []*event.SingleTokenDefinition
	var setType event.CharacterStateSetType
	for _, e := range events {
		switch v := e.(type) {
		case *event.TokenSetDefinition:
			setType = v.SetType
		case *event.SingleTokenDefinition:
			defs = append(defs, v)
		}
	}
	if setType != event.SetTypeAminoAcid {
		t.Errorf("set type = %s, want AMINO_ACID", setType)
	}
	if len(defs) != 2 || defs[0].Meaning != event.MeaningGap || defs[1].TokenName != "?" {
		t.Errorf("token definitions = %+v", defs)
	}
}

func TestReadMatchCharacter(t *testing.T) {
	events := mustRead(t, "#MEGA\n!Title m;\n!Format DataType=DNA MatchChar=.;\n#A ACGT\n#B .C.A\n")
	if got := strings.Join(tokensOf(events, "seq2"), ""); got != "ACGA" {
		t.Errorf("seq2 tokens = %s, want ACGA", got)
	}

	p := config.Default()
	p.ReplaceMatchTokens = false
	events, err := read(t, p, "#MEGA\n!Title m;\n#A ACGT\n#B .C.A\n")
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	if got := strings.Join(tokensOf(events, "seq2"), ""); got != ".C.A" {
		t.Errorf("seq2 tokens = %s, want .C.A", got)
	}
}

func TestReadInterleaved(t *testing.T) {
	events := mustRead(t, "#MEGA\n!Title i;\n#A AC\n#B .G\n\n#A GT\n#B .A\n")
	doc, err := adapter.FromEvents(events)
	if err != nil {
		t.Fatalf("FromEvents() error = %v", err)
	}
	if n := doc.Mats.Get("matrix1").Sequences().Len(); n != 2 {
		t.Fatalf("sequences = %d, want 2", n)
	}
	if got := strings.Join(tokensOf(events, "seq2"), ""); got != "AGGA" {
		t.Errorf("seq2 tokens = %s, want AGGA", got)
	}
}

func TestReadChunksTokens(t *testing.T) {
	p := config.Default()
	p.MaxTokensPerEvent = 2
	events, err := read(t, p, "#MEGA\n!Title c;\n#A ACGTA\n")
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	var sizes []int
	for _, e := range events {
		if tokens, ok := e.(*event.SequenceTokens); ok {
			sizes = append(sizes, len(tokens.Tokens))
		}
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("chunk sizes = %v, want [2 2 1]", sizes)
	}
}

func TestReadCommentsAndUnknownCommands(t *testing.T) {
	events := mustRead(t, "#MEGA\nTITLE: Old style\n[note]\n!Gene name=x;\n!Description 'two words';\n#A AC[inline]GT\n")
	got := strings.Join(describe(events), "\n")
	for _, want := range []string{
		`ALIGNMENT/START id="matrix1" label="Old style"`,
		`COMMENT/SOLE text="note"`,
		`UNKNOWN_COMMAND/SOLE command="Gene"`,
		`META_LITERAL_CONTENT/SOLE value="two words"`,
		`COMMENT/SOLE text="inline"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("events missing %s:\n%s", want, got)
		}
	}
	if tokens := strings.Join(tokensOf(events, "seq1"), ""); tokens != "ACGT" {
		t.Errorf("seq1 tokens = %s, want ACGT", tokens)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"missing header", "ACGT\n", errors.ErrGrammar},
		{"empty input", "", errors.ErrGrammar},
		{"unterminated command", "#MEGA\n!Title x\n#A AC\n", errors.ErrGrammar},
		{"unknown data type", "#MEGA\n!Format DataType=Distance;\n", errors.ErrUnsupported},
		{"bad number", "#MEGA\n!Format NSeqs=many;\n", errors.ErrGrammar},
		{"stray word", "#MEGA\n!Title x;\nACGT\n", errors.ErrGrammar},
		{"unterminated comment", "#MEGA\n#A AC[open\n", errors.ErrGrammar},
		{"end inside command", "#MEGA\n!Format DataType", errors.ErrGrammar},
		{"end after row label", "#MEGA\n#", errors.ErrGrammar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := read(t, config.Default(), tt.input)
			if !errors.Is(err, tt.want) {
				t.Errorf("read error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadErrorPosition(t *testing.T) {
	_, err := read(t, config.Default(), "#MEGA\n!Title x;\n!Format NSeqs=many;\n")
	var pe *errors.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("read error = %v, want ParseError", err)
	}
	if pe.Line != 3 {
		t.Errorf("error line = %d, want 3", pe.Line)
	}
}

func writeDoc(t *testing.T, ctx *format.Context, events []event.Event) string {
	t.Helper()
	doc, err := adapter.FromEvents(events)
	if err != nil {
		t.Fatalf("FromEvents() error = %v", err)
	}
	var buf bytes.Buffer
	if err := format.Write(ctx, &buf, doc, Format); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return buf.String()
}

func TestWrite(t *testing.T) {
	events := mustRead(t, "#MEGA\n!Title Demo;\n!Format DataType=DNA Indel=- Missing=?;\n#A ACGT\n#B AC\n")
	ctx := format.NewContext(config.Default(), nil)
	got := writeDoc(t, ctx, events)
	want := "#MEGA\n!Title Demo;\n!Format DataType=DNA Indel=- Missing=?;\n\n#A\nACGT\n#B\nAC??\n"
	if got != want {
		t.Errorf("output =\n%s\nwant\n%s", got, want)
	}
	padded := false
	for _, d := range ctx.Diagnostics.List() {
		if d.Kind == format.DiagPadded && d.ElementID == "seq2" {
			padded = true
		}
	}
	if !padded {
		t.Errorf("no padding diagnostic in %v", ctx.Diagnostics.List())
	}
}

func TestWriteWrapsLines(t *testing.T) {
	events := mustRead(t, "#MEGA\n!Title w;\n#A ACGTAC\n")
	p := config.Default()
	p.LineWidth = 4
	got := writeDoc(t, format.NewContext(p, nil), events)
	if !strings.HasSuffix(got, "#A\nACGT\nAC\n") {
		t.Errorf("output =\n%s", got)
	}
}

func TestRoundTrip(t *testing.T) {
	input := "#MEGA\n!Title 'Round trip';\n!Format DataType=RNA Indel=- Missing=?;\n#first ACGU\n#second AC-U\n#third ??GU\n"
	events := mustRead(t, input)
	output := writeDoc(t, format.NewContext(config.Default(), nil), events)
	again := mustRead(t, output)

	d1, err := event.Digest(events)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := event.Digest(again)
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Errorf("digest changed after round trip\nfirst:\n%s\nsecond:\n%s",
			strings.Join(describe(events), "\n"), strings.Join(describe(again), "\n"))
	}
}

func TestWriteUntitledMatrix(t *testing.T) {
	events := mustRead(t, "#MEGA\n!Format DataType=DNA Indel=- Missing=?;\n#A ACGT\n")
	got := writeDoc(t, format.NewContext(config.Default(), nil), events)
	want := "#MEGA\n!Format DataType=DNA Indel=- Missing=?;\n\n#A\nACGT\n"
	if got != want {
		t.Errorf("output =\n%s\nwant\n%s", got, want)
	}
	mustRead(t, got)
}

func TestWriteSkipsDiscreteMatrix(t *testing.T) {
	events := []event.Event{
		&event.DocumentStart{},
		&event.LinkedLabeledID{Content: event.ContentAlignment, ID: "m1"},
		&event.LinkedLabeledID{Content: event.ContentSequence, ID: "s1", Label: "A"},
		&event.SequenceTokens{Tokens: []string{"0", "1"}},
		event.NewEnd(event.ContentSequence),
		event.NewEnd(event.ContentAlignment),
		event.NewEnd(event.ContentDocument),
	}
	ctx := format.NewContext(config.Default(), nil)
	got := writeDoc(t, ctx, events)
	if got != "#MEGA\n" {
		t.Errorf("output = %q", got)
	}
	skipped := false
	for _, d := range ctx.Diagnostics.List() {
		if d.Kind == format.DiagUnsupported && d.ElementID == "m1" {
			skipped = true
		}
	}
	if !skipped {
		t.Errorf("no unsupported diagnostic in %v", ctx.Diagnostics.List())
	}
}

func TestWriteUniqueLabels(t *testing.T) {
	events := mustRead(t, "#MEGA\n!Title u;\n#A AC\n")
	// A second sequence with the same label, built directly.
	doc, err := adapter.FromEvents(events)
	if err != nil {
		t.Fatal(err)
	}
	m := doc.Mats.Get("matrix1").(*adapter.MemoryMatrix)
	m.Seqs.Add("seq9", &event.LinkedLabeledID{Content: event.ContentSequence, ID: "seq9", Label: "A"},
		[]event.Event{&event.SequenceTokens{Tokens: []string{"G", "T"}}})
	var buf bytes.Buffer
	if err := format.Write(format.NewContext(config.Default(), nil), &buf, doc, Format); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.Contains(buf.String(), "#seq9_A\nGT\n") {
		t.Errorf("output =\n%s", buf.String())
	}
}
