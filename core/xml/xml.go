// Package xml inspects XML documents: well-formedness, XPath queries and
// the id references of NeXML files.
//
// Parsing goes through encoding/xml, which never fetches external
// entities. Validate also disables internal entity expansion.
package xml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Document is a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node is an element of a document.
type Node struct {
	node *xmlquery.Node
}

// ValidationResult is the outcome of Validate or References.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError is one problem found in a document.
type ValidationError struct {
	Line    int
	Column  int
	Message string
}

func (e ValidationError) String() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
	}
	return e.Message
}

// Parse parses data into a Document.
func Parse(data []byte) (*Document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// Validate checks that data is well-formed XML with a single root element.
func Validate(data []byte) ValidationResult {
	result := ValidationResult{Valid: true}
	fail := func(line, col int, msg string) ValidationResult {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{Line: line, Column: col, Message: msg})
		return result
	}

	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Entity = map[string]string{}
	depth, roots := 0, 0
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if se, ok := err.(*xml.SyntaxError); ok {
				return fail(se.Line, 0, se.Msg)
			}
			line, col := decoder.InputPos()
			return fail(line, col, err.Error())
		}
		switch tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots > 1 {
					line, col := decoder.InputPos()
					return fail(line, col, "more than one root element")
				}
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if roots == 0 {
		return fail(0, 0, "no root element")
	}
	return result
}

// Root returns the root element.
func (d *Document) Root() *Node {
	if d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// XPath returns the nodes matching expr.
func (d *Document) XPath(expr string) ([]*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	nodes := xmlquery.QuerySelectorAll(d.root, compiled)
	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = &Node{node: n}
	}
	return result, nil
}

// XPathFirst returns the first node matching expr, or nil.
func (d *Document) XPathFirst(expr string) (*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	n := xmlquery.QuerySelector(d.root, compiled)
	if n == nil {
		return nil, nil
	}
	return &Node{node: n}, nil
}

// Count returns the number of nodes matching expr.
func (d *Document) Count(expr string) (int, error) {
	nodes, err := d.XPath(expr)
	return len(nodes), err
}

// Name returns the local element name.
func (n *Node) Name() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.Data
}

// Text returns the text of the node and its descendants.
func (n *Node) Text() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// Children returns the child elements.
func (n *Node) Children() []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			children = append(children, &Node{node: child})
		}
	}
	return children
}

// Attr returns the value of an attribute, or "".
func (n *Node) Attr(name string) string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.SelectAttr(name)
}

// refAttributes lists the NeXML attributes that hold id references, and
// whether they hold a blank-separated list.
var refAttributes = map[string]bool{
	"otus":    false,
	"otu":     true,
	"states":  false,
	"state":   false,
	"char":    true,
	"row":     true,
	"source":  false,
	"target":  false,
	"node":    true,
	"edge":    true,
	"tree":    true,
	"network": true,
}

// continuous reports whether n belongs to a continuous characters block,
// whose cells hold values instead of state ids.
func continuous(n *xmlquery.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == xmlquery.ElementNode && p.Data == "characters" {
			return strings.Contains(p.SelectAttr("xsi:type"), "Continuous")
		}
	}
	return false
}

// References checks that every id reference in a NeXML document names an
// element of the document.
func (d *Document) References() ValidationResult {
	ids := make(map[string]bool)
	var walk func(n *xmlquery.Node, visit func(*xmlquery.Node))
	walk = func(n *xmlquery.Node, visit func(*xmlquery.Node)) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == xmlquery.ElementNode {
				visit(c)
				walk(c, visit)
			}
		}
	}
	walk(d.root, func(n *xmlquery.Node) {
		if id := n.SelectAttr("id"); id != "" {
			ids[id] = true
		}
	})

	result := ValidationResult{Valid: true}
	type unresolved struct {
		key  string
		line int
	}
	var missing []unresolved
	seen := make(map[string]bool)
	walk(d.root, func(n *xmlquery.Node) {
		if n.Data == "meta" {
			return
		}
		for _, a := range n.Attr {
			list, ok := refAttributes[a.Name.Local]
			if !ok || a.Name.Space != "" {
				continue
			}
			if n.Data == "cell" && a.Name.Local == "state" && continuous(n) {
				continue
			}
			refs := []string{a.Value}
			if list {
				refs = strings.Fields(a.Value)
			}
			for _, ref := range refs {
				key := fmt.Sprintf("<%s %s=%q>", n.Data, a.Name.Local, ref)
				if !ids[ref] && !seen[key] {
					seen[key] = true
					missing = append(missing, unresolved{key, n.LineNumber})
				}
			}
		}
	})
	sort.SliceStable(missing, func(i, j int) bool { return missing[i].key < missing[j].key })
	for _, m := range missing {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{Line: m.line, Message: "unresolved reference in " + m.key})
	}
	return result
}
