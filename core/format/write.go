package format

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/FocuswithJustin/phyloconv/core/adapter"
	"github.com/FocuswithJustin/phyloconv/core/errors"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/internal/logging"
)

// Prepare runs the check pass of f's writer over doc without writing.
// Registry and resolver are reset first; diagnostics are kept.
func Prepare(ctx *Context, doc adapter.Document, f *Format) (Writer, *CheckResult, error) {
	if f.NewWriter == nil {
		return nil, nil, errors.NewUnsupported("writing "+f.ID, "format is read-only")
	}
	ctx.Registry.Reset()
	ctx.Resolver.Reset()

	w := f.NewWriter()
	res, err := Check(ctx, doc, w.Capabilities(ctx))
	if err != nil {
		return nil, nil, err
	}
	if c, ok := w.(Checker); ok {
		if err := c.Check(ctx, doc, res); err != nil {
			return nil, nil, err
		}
	}
	return w, res, nil
}

// Write checks doc for format f and writes it to out. Nothing is written
// if the check fails.
func Write(ctx *Context, out io.Writer, doc adapter.Document, f *Format) error {
	w, res, err := Prepare(ctx, doc, f)
	if err != nil {
		logging.ConversionError(ctx.Logger, f.ID, "check", err)
		return err
	}
	bw := bufio.NewWriter(out)
	if err := w.Write(ctx, bw, doc, res); err != nil {
		logging.ConversionError(ctx.Logger, f.ID, "write", err)
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s output: %w", f.ID, err)
	}
	return nil
}

// ReadEvents reads one document of format f from r.
func ReadEvents(ctx *Context, r io.Reader, f *Format) ([]event.Event, error) {
	if f.NewReader == nil {
		return nil, errors.NewUnsupported("reading "+f.ID, "format is write-only")
	}
	events, err := event.Collect(f.NewReader(r, ctx))
	if err != nil {
		logging.ConversionError(ctx.Logger, f.ID, "read", err)
		return nil, err
	}
	return events, nil
}

// ReadDocument reads one document of format f into memory.
func ReadDocument(ctx *Context, r io.Reader, f *Format) (*adapter.MemoryDocument, error) {
	events, err := ReadEvents(ctx, r, f)
	if err != nil {
		return nil, err
	}
	return adapter.FromEvents(events)
}

// Convert reads a document of format from and writes it as format to.
func Convert(ctx *Context, in io.Reader, from *Format, out io.Writer, to *Format, input string) error {
	began := time.Now()
	logging.ConversionStart(ctx.Logger, from.ID, to.ID, input)
	ctx.Reset()
	events, err := ReadEvents(ctx, in, from)
	if err != nil {
		return err
	}
	doc, err := adapter.FromEvents(events)
	if err != nil {
		return err
	}
	if err := Write(ctx, out, doc, to); err != nil {
		return err
	}
	logging.ConversionDone(ctx.Logger, from.ID, to.ID, len(events), ctx.Diagnostics.Len(), time.Since(began))
	return nil
}
