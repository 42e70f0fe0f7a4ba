package xml

import (
	"strings"
	"testing"
)

const sample = `<?xml version="1.0"?>
<nex:nexml xmlns:nex="http://www.nexml.org/2009" xmlns="http://www.nexml.org/2009" version="0.9">
  <otus id="taxa1">
    <otu id="t1" label="A"/>
    <otu id="t2" label="B"/>
  </otus>
  <trees id="trees1" otus="taxa1">
    <tree id="tree1">
      <node id="n1" otu="t1"/>
      <node id="n2" otu="t2"/>
      <node id="n3" root="true"/>
      <edge id="e1" source="n3" target="n1" length="0.5"/>
      <edge id="e2" source="n3" target="n2"/>
    </tree>
  </trees>
</nex:nexml>`

func TestParseValidXML(t *testing.T) {
	doc, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if root := doc.Root(); root == nil || root.Name() != "nexml" {
		t.Fatalf("root = %v", root)
	}
}

func TestParseInvalidXML(t *testing.T) {
	if _, err := Parse([]byte("<a><b></a>")); err == nil {
		t.Error("expected error for mismatched tags")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
		line  int
	}{
		{"well formed", sample, true, 0},
		{"empty", "", false, 0},
		{"unclosed", "<a>\n<b>\n</a>", false, 3},
		{"two roots", "<a/><b/>", false, 1},
		{"entity", "<!DOCTYPE a [<!ENTITY x \"y\">]><a>&x;</a>", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate([]byte(tt.input))
			if res.Valid != tt.valid {
				t.Fatalf("Valid = %v, errors %v", res.Valid, res.Errors)
			}
			if !tt.valid && tt.line > 0 && res.Errors[0].Line != tt.line {
				t.Errorf("line = %d, want %d", res.Errors[0].Line, tt.line)
			}
		})
	}
}

func TestXPath(t *testing.T) {
	doc, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	n, err := doc.Count("//otu")
	if err != nil || n != 2 {
		t.Fatalf("Count(//otu) = %d, %v", n, err)
	}
	edge, err := doc.XPathFirst("//edge[@length]")
	if err != nil || edge == nil {
		t.Fatalf("XPathFirst: %v %v", edge, err)
	}
	if edge.Attr("target") != "n1" {
		t.Errorf("target = %q", edge.Attr("target"))
	}
	missing, err := doc.XPathFirst("//row")
	if err != nil || missing != nil {
		t.Errorf("XPathFirst(//row) = %v, %v", missing, err)
	}
	if _, err := doc.XPath("//["); err == nil {
		t.Error("expected error for invalid expression")
	}
	tree, _ := doc.XPathFirst("//tree")
	if got := len(tree.Children()); got != 5 {
		t.Errorf("tree children = %d", got)
	}
}

func TestReferences(t *testing.T) {
	doc, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if res := doc.References(); !res.Valid {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}

	broken := strings.Replace(sample, `target="n2"`, `target="n9"`, 1)
	broken = strings.Replace(broken, `otu="t1"`, `otu="t7"`, 1)
	doc, err = Parse([]byte(broken))
	if err != nil {
		t.Fatal(err)
	}
	res := doc.References()
	if res.Valid || len(res.Errors) != 2 {
		t.Fatalf("References = %+v", res)
	}
	if !strings.Contains(res.Errors[0].String(), `edge target="n9"`) {
		t.Errorf("first error = %s", res.Errors[0])
	}
}

func TestReferencesContinuousCells(t *testing.T) {
	input := `<nexml xmlns="http://www.nexml.org/2009" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <otus id="taxa1"><otu id="t1"/></otus>
  <characters id="m1" otus="taxa1" xsi:type="nex:ContinuousCells">
    <format><char id="c1"/></format>
    <matrix><row id="r1" otu="t1"><cell char="c1" state="0.5"/></row></matrix>
  </characters>
</nexml>`
	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatal(err)
	}
	if res := doc.References(); !res.Valid {
		t.Errorf("continuous cell values reported as references: %v", res.Errors)
	}
}
