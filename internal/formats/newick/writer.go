package newick

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/phyloconv/core/adapter"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
	"github.com/FocuswithJustin/phyloconv/internal/formats/command"
)

// punctuation forces a label into quotes.
const punctuation = "(),:;_"

// QuoteLabel returns s as a Newick label. Labels whose only special
// characters are blanks are written with underscores.
func QuoteLabel(s string) string {
	if s == "" {
		return ""
	}
	spaced := strings.ReplaceAll(s, " ", "_")
	if !strings.Contains(s, "_") && command.Quote(spaced, punctuation[:len(punctuation)-1]) == spaced {
		return spaced
	}
	return command.Quote(s, punctuation)
}

// metaCollector gathers the literal metadata of one element. Everything
// else it sees is counted as unwritable.
type metaCollector struct {
	kvs     []KeyValue
	skipped int
	depth   int
	cur     *KeyValue
	keep    func(*event.LiteralMeta) bool
}

func (c *metaCollector) Add(e event.Event) error {
	t := e.Type()
	switch t.Topology {
	case event.End:
		c.depth--
		if c.depth == 0 && c.cur != nil {
			c.kvs = append(c.kvs, *c.cur)
			c.cur = nil
		}
		return nil
	case event.Start:
		c.depth++
	}
	if c.depth != 1 || !t.Content.IsMeta() || t.Topology != event.Start {
		if v, ok := e.(*event.LiteralMetaContent); ok && c.cur != nil && c.depth == 1 {
			c.cur.Value += v.Value
		}
		return nil
	}
	lit, ok := e.(*event.LiteralMeta)
	if !ok || (c.keep != nil && !c.keep(lit)) {
		c.skipped++
		return nil
	}
	c.cur = &KeyValue{Key: lit.Predicate, Flag: lit.Datatype == event.DatatypeBoolean}
	return nil
}

// Literals returns the literal metadata written by write as hot comment
// entries, and the number of metadata elements that cannot be expressed.
func Literals(write func(adapter.Receiver) error, keep func(*event.LiteralMeta) bool) ([]KeyValue, int, error) {
	c := &metaCollector{keep: keep}
	if err := write(c); err != nil {
		return nil, 0, err
	}
	for i, kv := range c.kvs {
		// Only a boolean true can be written as a bare flag.
		if kv.Flag && kv.Value != "true" {
			c.kvs[i].Flag = false
		}
	}
	return c.kvs, c.skipped, nil
}

func hot(kvs []KeyValue) string {
	if len(kvs) == 0 {
		return ""
	}
	return FormatHotComment(kvs)
}

// WriteTree writes the topology of ti in Newick notation without the
// terminating ';'. label returns the text written for a node.
func WriteTree(w *bufio.Writer, ti *format.TreeInfo, tn adapter.TreeNetwork, label func(node string) string) error {
	if ti.Root == "" {
		return nil
	}
	nodes, edges := tn.Nodes(), tn.Edges()

	type item struct {
		node string
		next int
	}
	stack := []item{{node: ti.Root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		kids := ti.Children[top.node]
		if top.next < len(kids) {
			if top.next == 0 {
				w.WriteByte('(')
			} else {
				w.WriteByte(',')
			}
			child := kids[top.next]
			top.next++
			stack = append(stack, item{node: child})
			continue
		}
		if len(kids) > 0 {
			w.WriteByte(')')
		}
		node := top.node
		stack = stack[:len(stack)-1]

		w.WriteString(label(node))
		kvs, _, err := Literals(func(r adapter.Receiver) error { return nodes.WriteContent(r, node) }, nil)
		if err != nil {
			return err
		}
		w.WriteString(hot(kvs))

		edgeID := ti.Incoming[node]
		if node == ti.Root {
			edgeID = ti.RootEdge
		}
		if edgeID == "" {
			continue
		}
		if e := edges.Start(edgeID); e != nil && e.Length != nil {
			w.WriteByte(':')
			w.WriteString(strconv.FormatFloat(*e.Length, 'g', -1, 64))
		}
		kvs, _, err = Literals(func(r adapter.Receiver) error { return edges.WriteContent(r, edgeID) }, nil)
		if err != nil {
			return err
		}
		// Edge metadata must follow a length to be read back as such.
		if e := edges.Start(edgeID); e != nil && e.Length != nil {
			w.WriteString(hot(kvs))
		}
	}
	return nil
}

// Writer writes every tree of every group, one per line.
type Writer struct{}

// NewWriter returns a Newick writer.
func NewWriter() format.Writer {
	return &Writer{}
}

func (w *Writer) Capabilities(ctx *format.Context) format.Capabilities {
	return format.Capabilities{Trees: true, Metadata: true}
}

// isRooted keeps the rooting flag of a tree, which is written as [&R] or
// [&U]. Every other metadata element of a tree is dropped.
func isRooted(m *event.LiteralMeta) bool {
	return m.Predicate == event.PredicateRooted
}

// UnwritableMeta counts the metadata of the tree groups in res that Newick
// notation cannot carry. Only literals of nodes and of edges with a length
// survive, plus the rooting flag of each tree.
func UnwritableMeta(doc adapter.Document, res *format.CheckResult) (int, error) {
	skipped := 0
	count := func(write func(adapter.Receiver) error, keep func(*event.LiteralMeta) bool) error {
		kvs, n, err := Literals(write, keep)
		skipped += n
		if keep == nil {
			skipped += len(kvs)
		}
		return err
	}
	groups := doc.TreeNetworkGroups()
	for _, gi := range res.Groups {
		g := groups.Get(gi.ID)
		if err := count(g.WriteMetadata, nil); err != nil {
			return 0, err
		}
		members := g.TreesAndNetworks()
		for _, ti := range gi.Trees {
			tn := members.Get(ti.ID)
			if err := count(tn.WriteMetadata, isRooted); err != nil {
				return 0, err
			}
			edges := tn.Edges()
			for eid := range edges.IDs() {
				if edges.Start(eid).Length != nil {
					continue
				}
				if err := count(func(r adapter.Receiver) error { return edges.WriteContent(r, eid) }, nil); err != nil {
					return 0, err
				}
			}
		}
	}
	return skipped, nil
}

// Check reports metadata that has no place in Newick.
func (w *Writer) Check(ctx *format.Context, doc adapter.Document, res *format.CheckResult) error {
	kvs, n, err := Literals(doc.WriteMetadata, nil)
	if err != nil {
		return err
	}
	skipped, err := UnwritableMeta(doc, res)
	if err != nil {
		return err
	}
	skipped += n + len(kvs)
	if skipped > 0 {
		ctx.Diagnostics.Add(format.DiagUnsupported, "", "%d metadata elements cannot be written to Newick and are skipped", skipped)
	}
	return nil
}

func (w *Writer) Write(ctx *format.Context, out io.Writer, doc adapter.Document, res *format.CheckResult) error {
	bw := bufio.NewWriter(out)
	groups := doc.TreeNetworkGroups()
	for _, gi := range res.Groups {
		members := groups.Get(gi.ID).TreesAndNetworks()
		for _, ti := range gi.Trees {
			if ti.RootedKnown {
				if ti.Rooted {
					bw.WriteString("[&R] ")
				} else {
					bw.WriteString("[&U] ")
				}
			}
			err := WriteTree(bw, ti, members.Get(ti.ID), func(node string) string {
				return QuoteLabel(ti.NodeLabels[node])
			})
			if err != nil {
				return err
			}
			bw.WriteString(";\n")
		}
	}
	return bw.Flush()
}
