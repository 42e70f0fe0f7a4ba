package nexus

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/phyloconv/core/adapter"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
	"github.com/FocuswithJustin/phyloconv/core/registry"
	"github.com/FocuswithJustin/phyloconv/internal/formats/base"
	"github.com/FocuswithJustin/phyloconv/internal/formats/command"
	"github.com/FocuswithJustin/phyloconv/internal/formats/newick"
)

// punctuation forces a Nexus word into quotes.
const punctuation = `(){}/\,;:=*+<>-_`

func quote(s string) string {
	return command.Quote(s, punctuation)
}

var dataTypeNames = map[event.CharacterStateSetType]string{
	event.SetTypeDNA:        "DNA",
	event.SetTypeRNA:        "RNA",
	event.SetTypeAminoAcid:  "PROTEIN",
	event.SetTypeContinuous: "CONTINUOUS",
}

// Writer writes TAXA, CHARACTERS, TREES and SETS blocks.
type Writer struct{}

// NewWriter returns a Nexus writer.
func NewWriter() format.Writer {
	return &Writer{}
}

func (w *Writer) Capabilities(ctx *format.Context) format.Capabilities {
	return format.Capabilities{
		Matrices:     true,
		LongTokens:   true,
		Trees:        true,
		Sets:         true,
		Metadata:     true,
		UniqueLabels: true,
		LabelPolicy:  registry.LabelPolicy{MaxLength: ctx.Params.MaxLabelLength},
	}
}

// metaCount returns the number of metadata elements write emits at its
// top level.
func metaCount(write func(adapter.Receiver) error) (int, error) {
	kvs, n, err := newick.Literals(write, nil)
	return len(kvs) + n, err
}

func elementMeta[E event.Event](els adapter.Elements[E]) (int, error) {
	total := 0
	for id := range els.IDs() {
		n, err := metaCount(func(r adapter.Receiver) error { return els.WriteContent(r, id) })
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Check reports metadata outside trees and the sets Nexus has no command
// for.
func (w *Writer) Check(ctx *format.Context, doc adapter.Document, res *format.CheckResult) error {
	skipped, err := newick.UnwritableMeta(doc, res)
	if err != nil {
		return err
	}
	add := func(n int, err error) error {
		skipped += n
		return err
	}
	if err := add(metaCount(doc.WriteMetadata)); err != nil {
		return err
	}
	lists := doc.OTULists()
	for lid := range lists.IDs() {
		l := lists.Get(lid)
		if err := add(metaCount(l.WriteMetadata)); err != nil {
			return err
		}
		if err := add(elementMeta(l.OTUs())); err != nil {
			return err
		}
	}
	mats := doc.Matrices()
	for _, mi := range res.Matrices {
		m := mats.Get(mi.ID)
		if err := add(metaCount(m.WriteMetadata)); err != nil {
			return err
		}
		if err := add(elementMeta(m.Sequences())); err != nil {
			return err
		}
		if err := add(elementMeta(m.Characters())); err != nil {
			return err
		}
	}
	if skipped > 0 {
		ctx.Diagnostics.Add(format.DiagUnsupported, "", "%d metadata elements cannot be written to Nexus and are skipped", skipped)
	}
	for _, si := range res.Sets {
		switch si.Key.Type {
		case event.ContentSequenceSet, event.ContentNodeEdgeSet:
			ctx.Diagnostics.Add(format.DiagUnsupported, si.Key.ID, "%s cannot be written to Nexus", si.Key.Type)
		}
	}
	return nil
}

type nexusWriter struct {
	ctx *format.Context
	w   *bufio.Writer
	doc adapter.Document
	res *format.CheckResult
}

func (w *Writer) Write(ctx *format.Context, out io.Writer, doc adapter.Document, res *format.CheckResult) error {
	nw := &nexusWriter{ctx: ctx, w: bufio.NewWriter(out), doc: doc, res: res}
	nw.w.WriteString("#NEXUS\n")
	for _, li := range res.Lists {
		nw.taxa(li)
	}
	for _, mi := range res.Matrices {
		if err := nw.characters(mi); err != nil {
			return err
		}
	}
	for _, gi := range res.Groups {
		if err := nw.trees(gi); err != nil {
			return err
		}
	}
	nw.sets()
	if err := nw.unknownBlocks(); err != nil {
		return err
	}
	return nw.w.Flush()
}

func (nw *nexusWriter) taxa(li *format.ListInfo) {
	w := nw.w
	fmt.Fprintf(w, "\nBEGIN TAXA;\n\tTITLE %s;\n\tDIMENSIONS NTAX=%d;\n", quote(li.Label), len(li.Taxa))
	if len(li.Taxa) > 0 {
		w.WriteString("\tTAXLABELS\n")
		for _, t := range li.Taxa {
			fmt.Fprintf(w, "\t\t%s\n", quote(t.Label))
		}
		w.WriteString("\t;\n")
	}
	w.WriteString("END;\n")
}

func (nw *nexusWriter) link(listID string) {
	if li := nw.res.List(listID); li != nil {
		fmt.Fprintf(nw.w, "\tLINK TAXA = %s;\n", quote(li.Label))
	}
}

// charLabels returns the column labels of m if every column has one.
func charLabels(m adapter.Matrix, columns int64) []string {
	chars := m.Characters()
	if chars.Len() == 0 || int64(chars.Len()) != columns {
		return nil
	}
	labels := make([]string, columns)
	for id := range chars.IDs() {
		c := chars.Start(id)
		if c.Index < 0 || c.Index >= columns || c.Label == "" {
			return nil
		}
		labels[c.Index] = c.Label
	}
	for _, l := range labels {
		if l == "" {
			return nil
		}
	}
	return labels
}

func (nw *nexusWriter) characters(mi *format.MatrixInfo) error {
	w := nw.w
	m := nw.doc.Matrices().Get(mi.ID)
	fmt.Fprintf(w, "\nBEGIN CHARACTERS;\n\tTITLE %s;\n", quote(mi.Label))
	nw.link(mi.OTUListID)
	fmt.Fprintf(w, "\tDIMENSIONS NCHAR=%d;\n", mi.Columns)

	dataType, ok := dataTypeNames[mi.SetType]
	if !ok {
		dataType = "STANDARD"
	}
	tokens := mi.LongTokens && mi.SetType != event.SetTypeContinuous
	fmt.Fprintf(w, "\tFORMAT DATATYPE=%s GAP=%s MISSING=%s", dataType, command.Quote(mi.Gap, "=;"), command.Quote(mi.Missing, "=;"))
	if dataType == "STANDARD" && !mi.LongTokens && len(mi.Alphabet) > 0 {
		fmt.Fprintf(w, " SYMBOLS=\"%s\"", strings.Join(mi.Alphabet, " "))
	}
	if tokens {
		w.WriteString(" TOKENS")
	}
	w.WriteString(";\n")

	if labels := charLabels(m, mi.Columns); labels != nil {
		w.WriteString("\tCHARLABELS")
		for _, l := range labels {
			w.WriteString(" " + quote(l))
		}
		w.WriteString(";\n")
	}

	width := 0
	for _, row := range mi.Rows {
		width = max(width, len(quote(row.Label)))
	}
	sep := ""
	if mi.LongTokens || mi.SetType == event.SetTypeContinuous {
		sep = " "
	}
	rw := &base.RowWriter{W: w, Separator: sep, Spell: stateSets(mi, sep)}
	w.WriteString("\tMATRIX\n")
	for _, row := range mi.Rows {
		fmt.Fprintf(w, "\t\t%-*s  ", width, quote(row.Label))
		if err := rw.WriteRow(m.Sequences(), row, mi.Columns, mi.Missing); err != nil {
			return err
		}
		w.WriteByte('\n')
	}
	w.WriteString("\t;\nEND;\n")
	return nil
}

// stateSets returns a Spell function writing polymorphic state sets as
// (...) and uncertain ones as {...}, or nil if the matrix defines none.
func stateSets(mi *format.MatrixInfo, sep string) func(string) string {
	spelled := make(map[string]string)
	for _, def := range mi.Tokens {
		if def.Meaning != event.MeaningCharacterState || len(def.Constituents) == 0 {
			continue
		}
		switch def.SymbolType {
		case event.SymbolPolymorphic:
			spelled[def.Token] = "(" + strings.Join(def.Constituents, sep) + ")"
		case event.SymbolUncertain:
			spelled[def.Token] = "{" + strings.Join(def.Constituents, sep) + "}"
		}
	}
	if len(spelled) == 0 {
		return nil
	}
	return func(tok string) string {
		if s, ok := spelled[tok]; ok {
			return s
		}
		return tok
	}
}

func (nw *nexusWriter) trees(gi *format.GroupInfo) error {
	w := nw.w
	fmt.Fprintf(w, "\nBEGIN TREES;\n\tTITLE %s;\n", quote(gi.Label))
	nw.link(gi.OTUListID)

	li := nw.res.List(gi.OTUListID)
	translate := nw.ctx.Params.UseTranslationTable && li != nil && len(li.Taxa) > 0
	if translate {
		w.WriteString("\tTRANSLATE\n")
		for i, t := range li.Taxa {
			sep := ","
			if i == len(li.Taxa)-1 {
				sep = ""
			}
			fmt.Fprintf(w, "\t\t%d %s%s\n", i+1, quote(t.Label), sep)
		}
		w.WriteString("\t;\n")
	}

	members := nw.doc.TreeNetworkGroups().Get(gi.ID).TreesAndNetworks()
	for _, ti := range gi.Trees {
		fmt.Fprintf(w, "\tTREE %s = ", quote(ti.Label))
		if ti.RootedKnown {
			if ti.Rooted {
				w.WriteString("[&R] ")
			} else {
				w.WriteString("[&U] ")
			}
		}
		err := newick.WriteTree(w, ti, members.Get(ti.ID), func(node string) string {
			if otu := ti.NodeOTU[node]; translate && otu != "" {
				if i := li.Index(otu); i > 0 {
					return strconv.Itoa(i)
				}
			}
			return newick.QuoteLabel(ti.NodeLabels[node])
		})
		if err != nil {
			return err
		}
		w.WriteString(";\n")
	}
	w.WriteString("END;\n")
	return nil
}

// ranges renders 0-based column intervals as 1-based Nexus ranges.
func ranges(intervals [][2]int64) string {
	parts := make([]string, 0, len(intervals))
	for _, iv := range intervals {
		if iv[1]-iv[0] == 1 {
			parts = append(parts, strconv.FormatInt(iv[0]+1, 10))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", iv[0]+1, iv[1]))
		}
	}
	return strings.Join(parts, " ")
}

func (nw *nexusWriter) sets() {
	var lines []string
	for _, si := range nw.res.Sets {
		var members []string
		var cmd, qualifier string
		switch si.Key.Type {
		case event.ContentOTUSet:
			li := nw.res.List(si.ParentID)
			if li == nil {
				continue
			}
			cmd, qualifier = "TAXSET", "TAXA = "+quote(li.Label)
			for _, k := range si.Expansion.Members {
				if i := li.Index(k.ID); k.Type == event.ContentOTU && i > 0 {
					members = append(members, strconv.Itoa(i))
				}
			}
		case event.ContentCharacterSet:
			cmd, qualifier = "CHARSET", "CHARACTERS = "+quote(nw.res.Label(si.ParentID))
			ivs := make([][2]int64, len(si.Expansion.Intervals))
			for i, iv := range si.Expansion.Intervals {
				ivs[i] = [2]int64{iv.Start, iv.End}
			}
			if s := ranges(ivs); s != "" {
				members = append(members, s)
			}
		case event.ContentTreeNetworkSet:
			var gi *format.GroupInfo
			for _, g := range nw.res.Groups {
				if g.ID == si.ParentID {
					gi = g
				}
			}
			if gi == nil {
				continue
			}
			cmd, qualifier = "TREESET", "TREES = "+quote(gi.Label)
			index := make(map[string]int, len(gi.Trees))
			for i, ti := range gi.Trees {
				index[ti.ID] = i + 1
			}
			for _, k := range si.Expansion.Members {
				if i, ok := index[k.ID]; ok {
					members = append(members, strconv.Itoa(i))
				}
			}
		default:
			continue
		}
		line := fmt.Sprintf("\t%s %s (%s) =", cmd, quote(si.Label), qualifier)
		if len(members) > 0 {
			line += " " + strings.Join(members, " ")
		}
		lines = append(lines, line+";\n")
	}
	if len(lines) == 0 {
		return
	}
	nw.w.WriteString("\nBEGIN SETS;\n")
	for _, l := range lines {
		nw.w.WriteString(l)
	}
	nw.w.WriteString("END;\n")
}

// unknownBlocks writes back the commands of blocks that were read but not
// modeled. Their commands are named BLOCK.COMMAND.
func (nw *nexusWriter) unknownBlocks() error {
	type block struct {
		name     string
		commands []*event.UnknownCommand
	}
	var blocks []*block
	depth := 0
	err := nw.doc.WriteMetadata(adapter.ReceiverFunc(func(e event.Event) error {
		switch e.Type().Topology {
		case event.Start:
			depth++
		case event.End:
			depth--
		}
		uc, ok := e.(*event.UnknownCommand)
		if !ok || depth != 0 {
			return nil
		}
		name, cmd, ok := strings.Cut(uc.Command, ".")
		if !ok || name == "" || cmd == "" {
			return nil
		}
		if len(blocks) == 0 || blocks[len(blocks)-1].name != name {
			blocks = append(blocks, &block{name: name})
		}
		b := blocks[len(blocks)-1]
		b.commands = append(b.commands, &event.UnknownCommand{Command: cmd, Text: uc.Text})
		return nil
	}))
	if err != nil {
		return err
	}
	for _, b := range blocks {
		fmt.Fprintf(nw.w, "\nBEGIN %s;\n", b.name)
		for _, c := range b.commands {
			if c.Text == "" {
				fmt.Fprintf(nw.w, "\t%s;\n", c.Command)
			} else {
				fmt.Fprintf(nw.w, "\t%s %s;\n", c.Command, c.Text)
			}
		}
		nw.w.WriteString("END;\n")
	}
	return nil
}

