package nexml

import (
	"bytes"
	"strings"
	"testing"

	"github.com/FocuswithJustin/phyloconv/core/adapter"
	"github.com/FocuswithJustin/phyloconv/core/config"
	"github.com/FocuswithJustin/phyloconv/core/errors"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
	nxml "github.com/FocuswithJustin/phyloconv/core/xml"
)

const header = `<?xml version="1.0"?>
<nex:nexml xmlns:nex="http://www.nexml.org/2009" xmlns="http://www.nexml.org/2009" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" version="0.9">
  <otus id="taxa1" label="Taxa">
    <otu id="t1" label="A"/>
    <otu id="t2" label="B"/>
  </otus>
`

const treesXML = header + `  <trees id="trees1" otus="taxa1">
    <tree id="tree1" xsi:type="nex:FloatTree">
      <node id="n1" otu="t1"/>
      <node id="n2" otu="t2"/>
      <node id="n3" root="true"/>
      <edge id="e1" source="n3" target="n1" length="0.5"/>
      <edge id="e2" source="n3" target="n2"/>
    </tree>
  </trees>
</nex:nexml>
`

func nexml(body string) string {
	return header + body + "</nex:nexml>\n"
}

func read(p config.Params, input string) ([]event.Event, *format.Context, error) {
	ctx := format.NewContext(p, nil)
	events, err := event.Collect(NewReader(strings.NewReader(input), ctx))
	return events, ctx, err
}

func mustRead(t *testing.T, input string) []event.Event {
	t.Helper()
	events, _, err := read(config.Default(), input)
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

// tokensOf returns the tokens of each sequence, joined by blanks.
func tokensOf(events []event.Event) map[string]string {
	out := make(map[string]string)
	current := ""
	for _, e := range events {
		switch v := e.(type) {
		case *event.LinkedLabeledID:
			if v.Content == event.ContentSequence {
				current = v.ID
				out[current] = ""
			}
		case *event.SequenceTokens:
			if out[current] != "" {
				out[current] += " "
			}
			out[current] += strings.Join(v.Tokens, " ")
		}
	}
	return out
}

func TestReadTrees(t *testing.T) {
	events := mustRead(t, treesXML)
	want := strings.Join([]string{
		"DOCUMENT/START",
		`OTU_LIST/START id="taxa1" label="Taxa"`,
		`OTU/START id="t1" label="A"`,
		"OTU/END",
		`OTU/START id="t2" label="B"`,
		"OTU/END",
		"OTU_LIST/END",
		`TREE_NETWORK_GROUP/START id="trees1" link="taxa1"`,
		`TREE/START id="tree1"`,
		`NODE/START id="n1" link="t1"`,
		"NODE/END",
		`NODE/START id="n2" link="t2"`,
		"NODE/END",
		`NODE/START id="n3" root`,
		"NODE/END",
		`EDGE/START id="e1" source="n3" target="n1" length="0.5"`,
		"EDGE/END",
		`EDGE/START id="e2" source="n3" target="n2"`,
		"EDGE/END",
		"TREE/END",
		"TREE_NETWORK_GROUP/END",
		"DOCUMENT/END",
	}, "\n")
	if got := describe(events); got != want {
		t.Errorf("events =\n%s\nwant\n%s", got, want)
	}
}

func TestReadStandardCells(t *testing.T) {
	events := mustRead(t, nexml(`  <characters id="m1" otus="taxa1" xsi:type="nex:StandardCells">
    <format>
      <states id="sts">
        <state id="s0" symbol="0" label="absent"/>
        <state id="s1" symbol="1" label="present"/>
        <polymorphic_state_set id="p01" symbol="2">
          <member state="s0"/>
          <member state="s1"/>
        </polymorphic_state_set>
      </states>
      <char id="c1" states="sts"/>
      <char id="c2" states="sts"/>
      <char id="c3" states="sts"/>
      <set id="cs1" char="c3 c1"/>
    </format>
    <matrix>
      <row id="r1" otu="t1">
        <cell char="c1" state="s0"/>
        <cell char="c2" state="p01"/>
      </row>
      <row id="r2" otu="t2">
        <seq>1 0
 1</seq>
      </row>
    </matrix>
  </characters>
`))
	got := describe(events)
	for _, want := range []string{
		`ALIGNMENT/START id="m1" link="taxa1"`,
		`TOKEN_SET_DEFINITION/START id="sts" type="DISCRETE"`,
		`SINGLE_TOKEN_DEFINITION/START id="p01" token="2"`,
		`CHARACTER_DEFINITION/START id="c3" index=2`,
		`CHARACTER_SET/START id="cs1" link="m1"`,
		"CHARACTER_SET_INTERVAL/SOLE [0,1)\nCHARACTER_SET_INTERVAL/SOLE [2,3)",
		`SEQUENCE/START id="r1" link="t1"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in\n%s", want, got)
		}
	}
	for _, e := range events {
		if def, ok := e.(*event.SingleTokenDefinition); ok && def.ID == "p01" {
			if def.SymbolType != event.SymbolPolymorphic || strings.Join(def.Constituents, ",") != "0,1" {
				t.Errorf("p01 = %+v", def)
			}
		}
	}
	tokens := tokensOf(events)
	if tokens["r1"] != "0 2 ?" {
		t.Errorf("r1 tokens = %q, want cells padded with missing data", tokens["r1"])
	}
	if tokens["r2"] != "1 0 1" {
		t.Errorf("r2 tokens = %q", tokens["r2"])
	}
}

func TestReadSequenceTypes(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		want  string
		types string
	}{
		{
			name: "dna",
			body: `<characters id="m1" otus="taxa1" xsi:type="nex:DnaSeqs"><matrix>
<row id="r1" otu="t1"><seq>AC
GT</seq></row></matrix></characters>`,
			want:  "A C G T",
			types: "DNA",
		},
		{
			name: "restriction",
			body: `<characters id="m1" otus="taxa1" xsi:type="nex:RestrictionSeqs"><matrix>
<row id="r1" otu="t1"><seq>0110</seq></row></matrix></characters>`,
			want:  "0 1 1 0",
			types: "DISCRETE",
		},
		{
			name: "continuous",
			body: `<characters id="m1" otus="taxa1" xsi:type="nex:ContinuousCells"><format>
<char id="c1"/><char id="c2"/></format><matrix>
<row id="r1" otu="t1"><cell char="c2" state="1.5"/><cell char="c1" state="0.25"/></row></matrix></characters>`,
			want:  "0.25 1.5",
			types: "CONTINUOUS",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := mustRead(t, nexml(tt.body))
			if got := tokensOf(events)["r1"]; got != tt.want {
				t.Errorf("tokens = %q, want %q", got, tt.want)
			}
			if got := describe(events); !strings.Contains(got, `type="`+tt.types+`"`) {
				t.Errorf("token set type missing in\n%s", got)
			}
		})
	}
}

func TestReadSets(t *testing.T) {
	events := mustRead(t, nexml(`  <trees id="trees1" otus="taxa1">
    <tree id="tree1">
      <node id="n1" otu="t1"/>
      <node id="n2" otu="t2"/>
      <rootedge id="re" target="n1" length="1"/>
      <edge id="e1" source="n1" target="n2"/>
      <set id="ns" node="n2" edge="re e1"/>
    </tree>
    <set id="ts" tree="tree1"/>
  </trees>
`))
	got := describe(events)
	for _, want := range []string{
		`ROOT_EDGE/START id="re" target="n1" length="1"`,
		`NODE_EDGE_SET/START id="ns" link="tree1"`,
		`SET_ELEMENT/SOLE element="re" type="ROOT_EDGE"`,
		`SET_ELEMENT/SOLE element="e1" type="EDGE"`,
		`TREE_NETWORK_SET/START id="ts" link="trees1"`,
		`SET_ELEMENT/SOLE element="tree1" type="TREE"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in\n%s", want, got)
		}
	}
}

func TestReadMetadata(t *testing.T) {
	input := nexml(`  <trees id="trees1" otus="taxa1" about="#trees1" note="x">
    <meta xsi:type="nex:LiteralMeta" id="m1" property="dc:title" datatype="xsd:string" content="Tree set"/>
    <meta xsi:type="nex:ResourceMeta" id="m2" rel="dc:source" href="http://example.org/"/>
    <history>made <b>by</b> hand</history>
    <!-- kept -->
  </trees>
`)
	got := describe(mustRead(t, input))
	for _, want := range []string{
		"META_LITERAL/START predicate=\"rdf:about\"\nMETA_LITERAL_CONTENT/SOLE value=\"#trees1\"",
		"META_LITERAL/START predicate=\"nex:note\"\nMETA_LITERAL_CONTENT/SOLE value=\"x\"",
		"META_LITERAL/START predicate=\"dc:title\"\nMETA_LITERAL_CONTENT/SOLE value=\"Tree set\"",
		"META_RESOURCE/START rel=\"dc:source\" href=\"http://example.org/\"\nMETA_RESOURCE/END",
		"META_LITERAL/START predicate=\"nex:history\"\nMETA_LITERAL_CONTENT/SOLE value=\"made by hand\"",
		`COMMENT/SOLE text=" kept "`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in\n%s", want, got)
		}
	}

	p := config.Default()
	p.UnknownAsMetadata = false
	events, ctx, err := read(p, input)
	if err != nil {
		t.Fatal(err)
	}
	got = describe(events)
	if strings.Contains(got, "nex:history") || strings.Contains(got, "nex:note") {
		t.Errorf("unknown content kept:\n%s", got)
	}
	if !strings.Contains(got, "rdf:about") {
		t.Errorf("about attribute lost:\n%s", got)
	}
	if ctx.Diagnostics.Len() != 1 {
		t.Errorf("diagnostics = %v", ctx.Diagnostics.List())
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		p     func(*config.Params)
		want  error
	}{
		{"empty", "", nil, errors.ErrGrammar},
		{"wrong root", "<nexus/>", nil, errors.ErrGrammar},
		{"malformed", "<nexml><otus></nexml>", nil, errors.ErrGrammar},
		{"truncated", header, nil, errors.ErrGrammar},
		{"duplicate id", nexml(`<otus id="t1"/>`), nil, errors.ErrGrammar},
		{"undeclared otu", nexml(`<trees id="g" otus="taxa1"><tree id="x"><node id="n" otu="t9"/></tree></trees>`), nil, errors.ErrReference},
		{"forward edge", nexml(`<trees id="g"><tree id="x"><node id="n"/><edge id="e" source="n" target="m"/><node id="m"/></tree></trees>`), nil, errors.ErrReference},
		{"bad length", nexml(`<trees id="g"><tree id="x"><node id="n"/><rootedge id="e" target="n" length="long"/></tree></trees>`), nil, errors.ErrGrammar},
		{"unknown type", nexml(`<characters id="m" otus="taxa1" xsi:type="nex:ImageCells"/>`), nil, errors.ErrUnsupported},
		{"undeclared char", nexml(`<characters id="m" otus="taxa1" xsi:type="nex:StandardCells"><matrix><row id="r" otu="t1"><cell char="c" state="s"/></row></matrix></characters>`), nil, errors.ErrReference},
		{"long comment", nexml(`<!-- abcdefgh -->`), func(p *config.Params) { p.MaxCommentLength = 4 }, errors.ErrResourceLimit},
		{"long token", nexml(`<characters id="m" otus="taxa1" xsi:type="nex:StandardSeqs"><matrix><row id="r" otu="t1"><seq>0 123456</seq></row></matrix></characters>`), func(p *config.Params) { p.MaxTokenLength = 3 }, errors.ErrResourceLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := config.Default()
			if tt.p != nil {
				tt.p(&p)
			}
			_, _, err := read(p, tt.input)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadInputIDsMatchingMintedIDs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		link  string // input id of the OTU referenced by node n1
	}{
		{
			name: "otu id equal to a minted meta id",
			input: `<?xml version="1.0"?>
<nexml xmlns="http://www.nexml.org/2009" version="0.9">
  <otus id="o" about="#o"><otu id="meta1"/></otus>
  <trees id="g" otus="o"><tree id="x"><node id="n1" otu="meta1"/></tree></trees>
</nexml>
`,
			link: "meta1",
		},
		{
			name: "otus id equal to a minted token set id",
			input: nexml(`  <characters id="m" otus="taxa1" xsi:type="nex:DnaSeqs"><matrix><row id="r" otu="t1"><seq>ACGT</seq></row></matrix></characters>
  <otus id="tokens1"><otu id="z"/></otus>
  <trees id="g" otus="tokens1"><tree id="x"><node id="n1" otu="z"/></tree></trees>
`),
			link: "z",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := mustRead(t, tt.input)
			seen := make(map[string]bool)
			var otuID, nodeLink string
			for _, e := range events {
				var id string
				switch v := e.(type) {
				case *event.LabeledID:
					id = v.ID
					if v.Content == event.ContentOTU {
						otuID = v.ID
					}
				case *event.LinkedLabeledID:
					id = v.ID
				case *event.TokenSetDefinition:
					id = v.ID
				case *event.LiteralMeta:
					id = v.ID
				case *event.Node:
					id = v.ID
					nodeLink = v.LinkedID
				}
				if id == "" {
					continue
				}
				if seen[id] {
					t.Errorf("id %q used twice", id)
				}
				seen[id] = true
			}
			if nodeLink == "" || nodeLink != otuID {
				t.Errorf("node links to %q, last OTU has id %q", nodeLink, otuID)
			}
			out, _ := write(t, events)
			parseOutput(t, out)
		})
	}
}

func TestReadErrorPosition(t *testing.T) {
	input := "<nexml xmlns=\"http://www.nexml.org/2009\">\n<otus id=\"o\"/>\n<trees id=\"g\" otus=\"nope\"/>\n</nexml>\n"
	_, _, err := read(config.Default(), input)
	var re *errors.ReferenceError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want ReferenceError", err)
	}
	if re.Line != 3 || re.Column == 0 || re.Offset == 0 {
		t.Errorf("reference error = %+v, want line 3 with column and offset", re)
	}
}

func TestReadTruncates(t *testing.T) {
	p := config.Default()
	p.MaxCommentLength = 4
	p.TruncateOversized = true
	events, ctx, err := read(p, nexml(`<!-- abcdefgh -->`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(describe(events), `COMMENT/SOLE text=" abc"`) {
		t.Errorf("events =\n%s", describe(events))
	}
	if ctx.Diagnostics.Len() != 1 {
		t.Errorf("diagnostics = %v", ctx.Diagnostics.List())
	}
}

func write(t *testing.T, events []event.Event) (string, *format.Context) {
	t.Helper()
	doc, err := adapter.FromEvents(events)
	if err != nil {
		t.Fatalf("FromEvents() error = %v", err)
	}
	ctx := format.NewContext(config.Default(), nil)
	var buf bytes.Buffer
	if err := format.Write(ctx, &buf, doc, Format); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return buf.String(), ctx
}

// parseOutput checks that out is well formed and its references resolve.
func parseOutput(t *testing.T, out string) *nxml.Document {
	t.Helper()
	if res := nxml.Validate([]byte(out)); !res.Valid {
		t.Fatalf("output is not well formed: %v\n%s", res.Errors, out)
	}
	doc, err := nxml.Parse([]byte(out))
	if err != nil {
		t.Fatal(err)
	}
	if res := doc.References(); !res.Valid {
		t.Fatalf("unresolved references: %v\n%s", res.Errors, out)
	}
	return doc
}

func first(t *testing.T, doc *nxml.Document, expr string) *nxml.Node {
	t.Helper()
	n, err := doc.XPathFirst(expr)
	if err != nil || n == nil {
		t.Fatalf("no match for %s (%v)", expr, err)
	}
	return n
}

func TestWriteTrees(t *testing.T) {
	out, _ := write(t, mustRead(t, treesXML))
	if !strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Errorf("missing XML declaration:\n%s", out)
	}
	doc := parseOutput(t, out)
	if n, _ := doc.Count("//otu"); n != 2 {
		t.Errorf("otu count = %d", n)
	}
	if got := first(t, doc, "//edge[@id='e1']").Attr("length"); got != "0.5" {
		t.Errorf("e1 length = %q", got)
	}
	if got := first(t, doc, "//node[@id='n3']").Attr("root"); got != "true" {
		t.Errorf("n3 root = %q", got)
	}
	if got := first(t, doc, "//trees").Attr("otus"); got != "taxa1" {
		t.Errorf("trees otus = %q", got)
	}
}

func TestWriteDNAPadsRows(t *testing.T) {
	events := mustRead(t, nexml(`  <characters id="m1" otus="taxa1" xsi:type="nex:DnaSeqs">
    <matrix>
      <row id="r1" otu="t1"><seq>ACG-</seq></row>
      <row id="r2" otu="t2"><seq>AC</seq></row>
    </matrix>
  </characters>
`))
	out, ctx := write(t, events)
	doc := parseOutput(t, out)
	if got := first(t, doc, "//row[@id='r2']/seq").Text(); got != "AC??" {
		t.Errorf("r2 = %q, want padded row", got)
	}
	if got := first(t, doc, "//row[@id='r1']/seq").Text(); got != "ACG-" {
		t.Errorf("r1 = %q", got)
	}
	if n, _ := doc.Count("//state"); n != 3 {
		t.Errorf("state count = %d, want 3", n)
	}
	if n, _ := doc.Count("//uncertain_state_set[@symbol='?']/member"); n != 3 {
		t.Errorf("missing data members = %d, want 3", n)
	}
	if n, _ := doc.Count("//uncertain_state_set[@symbol='-']"); n != 1 {
		t.Errorf("gap state sets = %d", n)
	}
	padded := false
	for _, d := range ctx.Diagnostics.List() {
		if d.Kind == format.DiagPadded && d.ElementID == "r2" {
			padded = true
		}
	}
	if !padded {
		t.Errorf("no padding diagnostic: %v", ctx.Diagnostics.List())
	}
}

func TestWriteStandardStateSets(t *testing.T) {
	def := func(id, tok string, meaning event.TokenMeaning, st event.SymbolType, constituents ...string) []event.Event {
		return []event.Event{
			&event.SingleTokenDefinition{ID: id, TokenName: tok, Meaning: meaning, SymbolType: st, Constituents: constituents},
			event.NewEnd(event.ContentSingleTokenDefinition),
		}
	}
	row := func(id, otu string, tokens ...string) []event.Event {
		return []event.Event{
			&event.LinkedLabeledID{Content: event.ContentSequence, ID: id, LinkedID: otu},
			&event.SequenceTokens{Tokens: tokens},
			event.NewEnd(event.ContentSequence),
		}
	}
	events := []event.Event{
		&event.DocumentStart{},
		&event.LabeledID{Content: event.ContentOTUList, ID: "taxa1"},
		&event.LabeledID{Content: event.ContentOTU, ID: "t1", Label: "A"},
		event.NewEnd(event.ContentOTU),
		&event.LabeledID{Content: event.ContentOTU, ID: "t2", Label: "B"},
		event.NewEnd(event.ContentOTU),
		event.NewEnd(event.ContentOTUList),
		&event.LinkedLabeledID{Content: event.ContentAlignment, ID: "m1", LinkedID: "taxa1"},
		&event.TokenSetDefinition{ID: "ts1", SetType: event.SetTypeDiscrete},
	}
	events = append(events, def("d0", "0", event.MeaningCharacterState, event.SymbolAtomic)...)
	events = append(events, def("d1", "1", event.MeaningCharacterState, event.SymbolAtomic)...)
	events = append(events, def("d2", "2", event.MeaningCharacterState, event.SymbolAtomic)...)
	events = append(events, def("dgap", "-", event.MeaningGap, event.SymbolAtomic)...)
	events = append(events, def("dmis", "?", event.MeaningMissing, event.SymbolAtomic)...)
	events = append(events, event.NewEnd(event.ContentTokenSetDefinition))
	events = append(events, row("r1", "t1", "0", "(01)", "?")...)
	events = append(events, row("r2", "t2", "2", "{12}", "-")...)
	events = append(events, &event.TokenSetDefinition{ID: "ts2", SetType: event.SetTypeDiscrete})
	events = append(events, def("p01", "(01)", event.MeaningCharacterState, event.SymbolPolymorphic, "0", "1")...)
	events = append(events, def("u12", "{12}", event.MeaningCharacterState, event.SymbolUncertain, "1", "2")...)
	events = append(events,
		event.NewEnd(event.ContentTokenSetDefinition),
		event.NewEnd(event.ContentAlignment),
		event.NewEnd(event.ContentDocument),
	)

	out, _ := write(t, events)
	doc := parseOutput(t, out)
	if n, _ := doc.Count("//states"); n != 1 {
		t.Errorf("states blocks = %d, want 1", n)
	}
	counts := []struct {
		expr string
		want int
	}{
		{"//state", 3},
		{"//polymorphic_state_set[@id='p01']/member", 2},
		{"//uncertain_state_set[@id='u12']/member", 2},
		{"//uncertain_state_set[@id='dmis']/member", 3},
		{"//uncertain_state_set[@id='dgap']/member", 0},
	}
	for _, c := range counts {
		if n, _ := doc.Count(c.expr); n != c.want {
			t.Errorf("count(%s) = %d, want %d", c.expr, n, c.want)
		}
	}
	p01 := first(t, doc, "//polymorphic_state_set[@id='p01']").Attr("symbol")
	if got := first(t, doc, "//row[@id='r1']/seq").Text(); got != "0 "+p01+" "+first(t, doc, "//uncertain_state_set[@id='dmis']").Attr("symbol") {
		t.Errorf("r1 = %q", got)
	}

	// Reading the output back gives the state sets with their constituents.
	again := mustRead(t, out)
	var sets []string
	for _, e := range again {
		if d, ok := e.(*event.SingleTokenDefinition); ok && d.SymbolType != event.SymbolAtomic && d.Meaning == event.MeaningCharacterState {
			sets = append(sets, strings.Join(d.Constituents, ","))
		}
	}
	if strings.Join(sets, " ") != "0,1 1,2" {
		t.Errorf("state sets read back = %q", sets)
	}
	tokens := tokensOf(again)
	if !strings.HasSuffix(tokens["r1"], " ?") || !strings.HasSuffix(tokens["r2"], " -") {
		t.Errorf("gap and missing tokens read back as %q", tokens)
	}
}

func TestWriteStandardRenumbers(t *testing.T) {
	events := mustRead(t, nexml(`  <characters id="m1" otus="taxa1" xsi:type="nex:StandardSeqs">
    <matrix>
      <row id="r1" otu="t1"><seq>a b 1</seq></row>
      <row id="r2" otu="t2"><seq>b a 1</seq></row>
    </matrix>
  </characters>
`))
	out, _ := write(t, events)
	doc := parseOutput(t, out)
	if got := first(t, doc, "//state[@label='a']").Attr("symbol"); got != "0" {
		t.Errorf("symbol of a = %q", got)
	}
	if got := first(t, doc, "//state[@label='b']").Attr("symbol"); got != "2" {
		t.Errorf("symbol of b = %q", got)
	}
	if got := first(t, doc, "//row[@id='r2']/seq").Text(); got != "2 0 1" {
		t.Errorf("r2 = %q", got)
	}
	if got := first(t, doc, "//characters").Attr("xsi:type"); got != "nex:StandardSeqs" {
		t.Errorf("characters type = %q", got)
	}
}

func TestWriteSkipsUnknownCommands(t *testing.T) {
	events := []event.Event{
		&event.DocumentStart{},
		&event.UnknownCommand{Command: "ASSUMPTIONS", Text: "begin assumptions; end;"},
		&event.LabeledID{Content: event.ContentOTUList, ID: "taxa1"},
		&event.LabeledID{Content: event.ContentOTU, ID: "t1", Label: "A"},
		event.NewEnd(event.ContentOTU),
		event.NewEnd(event.ContentOTUList),
		event.NewEnd(event.ContentDocument),
	}
	out, ctx := write(t, events)
	if strings.Contains(out, "ASSUMPTIONS") {
		t.Errorf("unknown command written:\n%s", out)
	}
	found := false
	for _, d := range ctx.Diagnostics.List() {
		if d.Kind == format.DiagUnsupported {
			found = true
		}
	}
	if !found {
		t.Errorf("no unsupported diagnostic: %v", ctx.Diagnostics.List())
	}
}

func TestRoundTrip(t *testing.T) {
	input := header + `  <characters id="m1" otus="taxa1" xsi:type="nex:DnaSeqs">
    <format>
      <states id="sts">
        <state id="sA" symbol="A"/>
        <state id="sC" symbol="C"/>
        <state id="sG" symbol="G"/>
        <state id="sT" symbol="T"/>
        <uncertain_state_set id="gap" symbol="-"/>
      </states>
    </format>
    <matrix>
      <row id="r1" otu="t1"><seq>ACGT</seq></row>
      <row id="r2" otu="t2"><seq>A-GT</seq></row>
    </matrix>
  </characters>
` + strings.TrimPrefix(treesXML, header)

	events := mustRead(t, input)
	out, _ := write(t, events)
	again := mustRead(t, out)
	if got, want := describe(again), describe(events); got != want {
		t.Fatalf("round trip changed the events:\n%s\nwant\n%s", got, want)
	}
	d1, err := event.Digest(events)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := event.Digest(again)
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Errorf("digest %s != %s", d1, d2)
	}
}
