package fasta

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

func read(p config.Params, input string) ([]event.Event, error) {
	ctx := format.NewContext(p, nil)
	return event.Collect(NewReader(strings.NewReader(input), ctx))
}

func mustRead(t *testing.T, input string) []event.Event {
	t.Helper()
	events, err := read(config.Default(), input)
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	if err := event.Validate(events); err != nil {
		t.Fatalf("reader output violates the grammar: %v", err)
	}
	return events
}

func describe(events []event.Event) string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = event.Describe(e)
	}
	return strings.Join(out, "\n")
}

func TestReadRecords(t *testing.T) {
	events := mustRead(t, ">A first\nACGT\nAC\n\n>B\nAC\n")
	want := strings.Join([]string{
		"DOCUMENT/START",
		`ALIGNMENT/START id="matrix1"`,
		`SEQUENCE/START id="seq1" label="A first"`,
		"SEQUENCE_TOKENS/SOLE 4 tokens",
		"SEQUENCE_TOKENS/SOLE 2 tokens",
		"SEQUENCE/END",
		`SEQUENCE/START id="seq2" label="B"`,
		"SEQUENCE_TOKENS/SOLE 2 tokens",
		"SEQUENCE/END",
		"ALIGNMENT/END",
		"DOCUMENT/END",
	}, "\n")
	if got := describe(events); got != want {
		t.Errorf("events =\n%s\nwant\n%s", got, want)
	}
}

func TestReadUnalignedRows(t *testing.T) {
	events := mustRead(t, ">A\nACGTAC\n>B\nA\n")
	doc, err := adapter.FromEvents(events)
	if err != nil {
		t.Fatalf("FromEvents() error = %v", err)
	}
	res, err := format.Check(format.NewContext(config.Default(), nil), doc, (&Writer{}).Capabilities(format.NewContext(config.Default(), nil)))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	rows := res.Matrices[0].Rows
	if rows[0].Length != 6 || rows[1].Length != 1 {
		t.Errorf("row lengths = %d, %d", rows[0].Length, rows[1].Length)
	}
}

func TestReadCommentsAndMatch(t *testing.T) {
	events := mustRead(t, "; made by hand\n>A\nACGT\n>B\n..T.\n")
	got := describe(events)
	if !strings.Contains(got, `COMMENT/SOLE text="made by hand"`) {
		t.Errorf("comment missing:\n%s", got)
	}
	var tokens []string
	for _, e := range events {
		if st, ok := e.(*event.SequenceTokens); ok {
			tokens = append(tokens, st.Tokens...)
		}
	}
	if s := strings.Join(tokens, ""); s != "ACGTACTT" {
		t.Errorf("tokens = %s, want ACGTACTT", s)
	}
}

func TestReadEmpty(t *testing.T) {
	events := mustRead(t, "")
	if got := describe(events); got != "DOCUMENT/START\nDOCUMENT/END" {
		t.Errorf("events =\n%s", got)
	}
}

func TestReadDataBeforeHeader(t *testing.T) {
	_, err := read(config.Default(), "\nACGT\n>A\nAC\n")
	if !errors.Is(err, errors.ErrGrammar) {
		t.Fatalf("read error = %v, want grammar error", err)
	}
	var pe *errors.ParseError
	if !errors.As(err, &pe) || pe.Line != 2 {
		t.Errorf("error = %v, want line 2", err)
	}
}

func TestReadChunks(t *testing.T) {
	p := config.Default()
	p.MaxTokensPerEvent = 3
	events, err := read(p, ">A\nACGTACG\n")
	if err != nil {
		t.Fatal(err)
	}
	var sizes []int
	for _, e := range events {
		if st, ok := e.(*event.SequenceTokens); ok {
			sizes = append(sizes, len(st.Tokens))
		}
	}
	if len(sizes) != 3 || sizes[2] != 1 {
		t.Errorf("chunk sizes = %v, want [3 3 1]", sizes)
	}
}

func write(t *testing.T, p config.Params, events []event.Event) string {
	t.Helper()
	doc, err := adapter.FromEvents(events)
	if err != nil {
		t.Fatalf("FromEvents() error = %v", err)
	}
	var buf bytes.Buffer
	if err := format.Write(format.NewContext(p, nil), &buf, doc, Format); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return buf.String()
}

func TestWrite(t *testing.T) {
	p := config.Default()
	p.LineWidth = 4
	got := write(t, p, mustRead(t, ">A\nACGTAC\n>B\nA\n>C\n"))
	want := ">A\nACGT\nAC\n>B\nA\n>C\n"
	if got != want {
		t.Errorf("output =\n%q\nwant\n%q", got, want)
	}
}

func TestWriteDuplicateLabels(t *testing.T) {
	got := write(t, config.Default(), mustRead(t, ">A\nAC\n>A\nGT\n"))
	if got != ">A\nAC\n>seq2_A\nGT\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	events := mustRead(t, ">one two\nACGT-?\n>three\nAC\n")
	again := mustRead(t, write(t, config.Default(), events))
	d1, err := event.Digest(events)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := event.Digest(again)
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Errorf("digest changed after round trip:\n%s\n---\n%s", describe(events), describe(again))
	}
}

func TestDetect(t *testing.T) {
	if !detect([]byte("\n>seq\nACGT")) {
		t.Error("detect rejected FASTA")
	}
	if detect([]byte("#NEXUS")) {
		t.Error("detect accepted Nexus")
	}
}
