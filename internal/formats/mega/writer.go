package mega

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/FocuswithJustin/phyloconv/core/adapter"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
	"github.com/FocuswithJustin/phyloconv/core/registry"
	"github.com/FocuswithJustin/phyloconv/internal/formats/base"
	"github.com/FocuswithJustin/phyloconv/internal/formats/command"
)

var dataTypeNames = map[event.CharacterStateSetType]string{
	event.SetTypeDNA:       "DNA",
	event.SetTypeRNA:       "RNA",
	event.SetTypeAminoAcid: "Protein",
}

var labelReplacer = strings.NewReplacer("[", "_", "]", "_", "'", "_", `"`, "_")

func escapeLabel(s string) string {
	return labelReplacer.Replace(base.EscapeSpaces(s))
}

// Writer writes the first nucleotide or protein matrix of a document.
type Writer struct{}

// NewWriter returns a MEGA writer.
func NewWriter() format.Writer {
	return &Writer{}
}

func (w *Writer) Capabilities(ctx *format.Context) format.Capabilities {
	return format.Capabilities{
		Matrices:     true,
		SingleMatrix: true,
		UniqueLabels: true,
		LabelPolicy:  registry.LabelPolicy{Escape: escapeLabel, MaxLength: ctx.Params.MaxLabelLength},
	}
}

// Check drops matrices whose data type has no MEGA equivalent.
func (w *Writer) Check(ctx *format.Context, doc adapter.Document, res *format.CheckResult) error {
	for _, mi := range slices.Clone(res.Matrices) {
		if _, ok := dataTypeNames[mi.SetType]; !ok {
			res.SkipMatrix(ctx, mi.ID, fmt.Sprintf("MEGA cannot express %s data", mi.SetType))
		}
	}
	return nil
}

func (w *Writer) Write(ctx *format.Context, out io.Writer, doc adapter.Document, res *format.CheckResult) error {
	bw := bufio.NewWriter(out)
	bw.WriteString("#MEGA\n")
	if len(res.Matrices) == 0 {
		return bw.Flush()
	}

	mi := res.Matrices[0]
	m := doc.Matrices().Get(mi.ID)
	if title := m.Start().Label; title != "" {
		fmt.Fprintf(bw, "!Title %s;\n", command.Quote(title, ";"))
	}
	fmt.Fprintf(bw, "!Format DataType=%s Indel=%s Missing=%s;\n\n",
		dataTypeNames[mi.SetType], command.Quote(mi.Gap, ";="), command.Quote(mi.Missing, ";="))

	rw := &base.RowWriter{W: bw, Wrap: ctx.Params.LineWidth}
	for _, row := range mi.Rows {
		bw.WriteString("#" + row.Label + "\n")
		if err := rw.WriteRow(m.Sequences(), row, mi.Columns, mi.Missing); err != nil {
			return err
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
