package fasta

import (
	"bufio"
	"io"
	"strings"

	"github.com/FocuswithJustin/phyloconv/core/adapter"
	"github.com/FocuswithJustin/phyloconv/core/format"
	"github.com/FocuswithJustin/phyloconv/core/registry"
	"github.com/FocuswithJustin/phyloconv/internal/formats/base"
)

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Writer writes the first matrix of a document as FASTA records.
type Writer struct{}

// NewWriter returns a FASTA writer.
func NewWriter() format.Writer {
	return &Writer{}
}

func (w *Writer) Capabilities(ctx *format.Context) format.Capabilities {
	return format.Capabilities{
		Matrices:     true,
		SingleMatrix: true,
		Unaligned:    true,
		UniqueLabels: true,
		LabelPolicy:  registry.LabelPolicy{Escape: lineBreaks.Replace, MaxLength: ctx.Params.MaxLabelLength},
	}
}

func (w *Writer) Write(ctx *format.Context, out io.Writer, doc adapter.Document, res *format.CheckResult) error {
	bw := bufio.NewWriter(out)
	if len(res.Matrices) == 0 {
		return bw.Flush()
	}
	mi := res.Matrices[0]
	m := doc.Matrices().Get(mi.ID)
	rw := &base.RowWriter{W: bw, Wrap: ctx.Params.LineWidth}
	for _, row := range mi.Rows {
		bw.WriteString(">" + row.Label + "\n")
		if row.Length == 0 {
			continue
		}
		if err := rw.WriteRow(m.Sequences(), row, 0, mi.Missing); err != nil {
			return err
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
