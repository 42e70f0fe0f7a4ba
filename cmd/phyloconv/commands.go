package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/FocuswithJustin/phyloconv/core/adapter"
	"github.com/FocuswithJustin/phyloconv/core/errors"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
	"github.com/FocuswithJustin/phyloconv/core/store"
	nxml "github.com/FocuswithJustin/phyloconv/core/xml"
)

// stdin is read for the input path "-".
var stdin io.Reader = os.Stdin

// openInput opens path, or stdin for "-".
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}

// detectInput opens path and resolves its format. A non-empty id forces the
// format instead of detecting it.
func detectInput(path, id string) (*format.Format, io.Reader, io.Closer, error) {
	rc, err := openInput(path)
	if err != nil {
		return nil, nil, nil, err
	}
	var f *format.Format
	var r io.Reader
	if id != "" {
		f, r, err = format.OpenAs(rc, id)
	} else {
		f, r, err = format.Open(rc)
	}
	if err != nil {
		rc.Close()
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, r, rc, nil
}

// outputFormat returns the format named by id, or the one whose extension
// matches path.
func outputFormat(id, path string) (*format.Format, error) {
	if id != "" {
		f := format.Get(id)
		if f == nil {
			return nil, errors.NewUnsupported("format "+id, "not registered")
		}
		return f, nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" {
		for _, f := range format.List() {
			for _, e := range f.Extensions {
				if e == ext {
					return f, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("cannot infer the output format of %q; use --to", path)
}

// createOutput creates path, or returns stdout for "-" or "".
func createOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, f.Close, nil
}

// readEvents reads the whole event stream of path.
func readEvents(g *Globals, path, from string) ([]event.Event, *format.Format, *format.Context, error) {
	p, err := g.params()
	if err != nil {
		return nil, nil, nil, err
	}
	f, r, c, err := detectInput(path, from)
	if err != nil {
		return nil, nil, nil, err
	}
	defer c.Close()
	ctx := format.NewContext(p, nil)
	events, err := format.ReadEvents(ctx, r, f)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, f, ctx, nil
}

// printDiagnostics lists the diagnostics of ctx on w.
func printDiagnostics(w io.Writer, ctx *format.Context) {
	for _, d := range ctx.Diagnostics.List() {
		fmt.Fprintf(w, "warning: %s\n", d)
	}
}

// ConvertCmd converts a file to another format.
type ConvertCmd struct {
	In    string `arg:"" help:"Input file, - for stdin"`
	Out   string `arg:"" optional:"" help:"Output file, - or empty for stdout"`
	From  string `help:"Input format id; detected when empty"`
	To    string `help:"Output format id; inferred from the output extension when empty"`
	Quiet bool   `short:"q" help:"Do not print diagnostics"`
}

func (c *ConvertCmd) Run(g *Globals, out io.Writer) error {
	p, err := g.params()
	if err != nil {
		return err
	}
	to, err := outputFormat(c.To, c.Out)
	if err != nil {
		return err
	}
	from, r, closer, err := detectInput(c.In, c.From)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx := format.NewContext(p, nil)
	// The document is written to memory first so that a failed
	// conversion leaves no partial output file.
	var buf bytes.Buffer
	if err := format.Convert(ctx, r, from, &buf, to, c.In); err != nil {
		return fmt.Errorf("%s: %w", c.In, err)
	}
	w, done, err := createOutput(c.Out, out)
	if err != nil {
		return err
	}
	if _, err := buf.WriteTo(w); err != nil {
		done()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := done(); err != nil {
		return err
	}
	if !c.Quiet && c.Out != "" && c.Out != "-" {
		printDiagnostics(out, ctx)
	}
	return nil
}

// EventsCmd prints the event stream of a file.
type EventsCmd struct {
	In       string `arg:"" help:"Input file, - for stdin"`
	From     string `help:"Input format id; detected when empty"`
	Describe bool   `short:"d" help:"Print one readable line per event instead of JSON"`
}

func (c *EventsCmd) Run(g *Globals, out io.Writer) error {
	events, _, _, err := readEvents(g, c.In, c.From)
	if err != nil {
		return err
	}
	for _, e := range events {
		if c.Describe {
			fmt.Fprintln(out, event.Describe(e))
			continue
		}
		data, err := event.Marshal(e)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", data)
	}
	return nil
}

// DetectCmd detects the format of a file.
type DetectCmd struct {
	In string `arg:"" help:"Input file, - for stdin"`
}

func (c *DetectCmd) Run(out io.Writer) error {
	f, _, closer, err := detectInput(c.In, "")
	if err != nil {
		return err
	}
	closer.Close()
	fmt.Fprintf(out, "%s\t%s\n", f.ID, f.Name)
	return nil
}

// DigestCmd prints the digest of the event stream of a file.
type DigestCmd struct {
	In   string `arg:"" help:"Input file, - for stdin"`
	From string `help:"Input format id; detected when empty"`
}

func (c *DigestCmd) Run(g *Globals, out io.Writer) error {
	events, _, _, err := readEvents(g, c.In, c.From)
	if err != nil {
		return err
	}
	sum, err := event.Digest(events)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s  %s\n", sum, c.In)
	return nil
}

// ValidateCmd checks that a file reads into a well-formed event stream.
// NeXML input is also checked for XML syntax and dangling references.
type ValidateCmd struct {
	In   string `arg:"" help:"Input file, - for stdin"`
	From string `help:"Input format id; detected when empty"`
}

func (c *ValidateCmd) Run(g *Globals, out io.Writer) error {
	p, err := g.params()
	if err != nil {
		return err
	}
	f, r, closer, err := detectInput(c.In, c.From)
	if err != nil {
		return err
	}
	defer closer.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	if f.ID == "nexml" {
		res := nxml.Validate(data)
		if res.Valid {
			doc, err := nxml.Parse(data)
			if err != nil {
				return err
			}
			res = doc.References()
		}
		if !res.Valid {
			for _, e := range res.Errors {
				fmt.Fprintf(out, "%s: %s\n", c.In, e)
			}
			return fmt.Errorf("%s: %d XML errors", c.In, len(res.Errors))
		}
	}

	ctx := format.NewContext(p, nil)
	events, err := format.ReadEvents(ctx, bytes.NewReader(data), f)
	if err != nil {
		return fmt.Errorf("%s: %w", c.In, err)
	}
	if err := event.Validate(events); err != nil {
		return fmt.Errorf("%s: %w", c.In, err)
	}
	if _, err := adapter.FromEvents(events); err != nil {
		return fmt.Errorf("%s: %w", c.In, err)
	}
	printDiagnostics(out, ctx)
	fmt.Fprintf(out, "%s: ok (%s, %d events)\n", c.In, f.ID, len(events))
	return nil
}

// DBFlag is the store location shared by the store commands.
type DBFlag struct {
	DB string `name:"db" help:"Event store database" default:"phyloconv.db" type:"path"`
}

func (d DBFlag) open() (*store.Store, error) {
	return store.Open(d.DB)
}

// StoreSaveCmd reads a file and stores its events.
type StoreSaveCmd struct {
	DBFlag
	In   string `arg:"" help:"Input file, - for stdin"`
	Name string `help:"Document name; defaults to the input file name"`
	From string `help:"Input format id; detected when empty"`
}

func (c *StoreSaveCmd) Run(g *Globals, out io.Writer) error {
	p, err := g.params()
	if err != nil {
		return err
	}
	name := c.Name
	if name == "" {
		if c.In == "-" {
			return fmt.Errorf("--name is required when reading stdin")
		}
		name = filepath.Base(c.In)
	}
	f, r, closer, err := detectInput(c.In, c.From)
	if err != nil {
		return err
	}
	defer closer.Close()

	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := format.NewContext(p, nil)
	entry, err := s.Save(context.Background(), name, f.ID, f.NewReader(r, ctx))
	if err != nil {
		return fmt.Errorf("%s: %w", c.In, err)
	}
	printDiagnostics(out, ctx)
	fmt.Fprintf(out, "stored %s (%s, %d events, %s)\n", entry.Name, entry.Format, entry.Events, entry.Digest)
	return nil
}

// StoreLoadCmd writes a stored document in a chosen format.
type StoreLoadCmd struct {
	DBFlag
	Name string `arg:"" help:"Document name"`
	Out  string `arg:"" optional:"" help:"Output file, - or empty for stdout"`
	To   string `help:"Output format id; inferred from the output extension when empty"`
}

func (c *StoreLoadCmd) Run(g *Globals, out io.Writer) error {
	p, err := g.params()
	if err != nil {
		return err
	}
	to, err := outputFormat(c.To, c.Out)
	if err != nil {
		return err
	}
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.Load(context.Background(), c.Name)
	if err != nil {
		return err
	}
	events, err := event.Collect(r)
	r.Close()
	if err != nil {
		return err
	}
	doc, err := adapter.FromEvents(events)
	if err != nil {
		return err
	}

	ctx := format.NewContext(p, nil)
	var buf bytes.Buffer
	if err := format.Write(ctx, &buf, doc, to); err != nil {
		return err
	}
	w, done, err := createOutput(c.Out, out)
	if err != nil {
		return err
	}
	if _, err := buf.WriteTo(w); err != nil {
		done()
		return fmt.Errorf("failed to write output: %w", err)
	}
	return done()
}

// StoreListCmd lists stored documents.
type StoreListCmd struct {
	DBFlag
}

func (c *StoreListCmd) Run(out io.Writer) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()
	entries, err := s.List(context.Background())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No stored documents.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFORMAT\tEVENTS\tCREATED\tDIGEST")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%.16s\n", e.Name, e.Format, e.Events, e.Created.Format("2006-01-02 15:04:05"), e.Digest)
	}
	return tw.Flush()
}

// StoreDeleteCmd deletes a stored document.
type StoreDeleteCmd struct {
	DBFlag
	Name string `arg:"" help:"Document name"`
}

func (c *StoreDeleteCmd) Run(out io.Writer) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Delete(context.Background(), c.Name); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %s\n", c.Name)
	return nil
}

// FormatsCmd lists the registered formats.
type FormatsCmd struct{}

func (c *FormatsCmd) Run(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEXTENSIONS\tMODE")
	for _, f := range format.List() {
		mode := "read"
		if f.NewWriter != nil {
			mode = "read/write"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.ID, f.Name, strings.Join(f.Extensions, " "), mode)
	}
	return tw.Flush()
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(out io.Writer) error {
	fmt.Fprintf(out, "phyloconv %s (%d formats)\n", version, len(format.List()))
	return nil
}
