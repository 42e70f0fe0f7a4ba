package format

import (
	"fmt"
	"log/slog"

	"github.com/FocuswithJustin/phyloconv/core/config"
	"github.com/FocuswithJustin/phyloconv/core/registry"
	"github.com/FocuswithJustin/phyloconv/core/resolve"
	"github.com/FocuswithJustin/phyloconv/internal/logging"
)

// DiagnosticKind classifies a non-fatal diagnostic.
type DiagnosticKind string

// Diagnostic kinds.
const (
	// DiagUnsupported marks content skipped because the target format cannot
	// express it.
	DiagUnsupported DiagnosticKind = "unsupported"
	// DiagSynthesized marks a placeholder element created by a writer.
	DiagSynthesized DiagnosticKind = "synthesized"
	// DiagPadded marks a sequence padded with missing data.
	DiagPadded DiagnosticKind = "padded"
	// DiagLabelEdited marks a label changed to keep names unique or legal.
	DiagLabelEdited DiagnosticKind = "label-edited"
	// DiagTruncated marks a comment or word cut at a configured limit.
	DiagTruncated DiagnosticKind = "truncated"
	// DiagDropped marks input content that has no place in the event grammar.
	DiagDropped DiagnosticKind = "dropped"
)

// Diagnostic is a non-fatal finding of a reader or writer.
type Diagnostic struct {
	Kind      DiagnosticKind `json:"kind"`
	ElementID string         `json:"element_id,omitempty"`
	Message   string         `json:"message"`
}

func (d Diagnostic) String() string {
	if d.ElementID != "" {
		return fmt.Sprintf("%s [%s]: %s", d.Kind, d.ElementID, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// Diagnostics collects the diagnostics of one conversion.
type Diagnostics struct {
	items  []Diagnostic
	logger *slog.Logger
}

// Add records a diagnostic and logs it at warn level.
func (d *Diagnostics) Add(kind DiagnosticKind, elementID, format string, args ...any) {
	diag := Diagnostic{Kind: kind, ElementID: elementID, Message: fmt.Sprintf(format, args...)}
	d.items = append(d.items, diag)
	if d.logger != nil {
		logging.DiagnosticLogged(d.logger, string(kind), elementID, diag.Message)
	}
}

// List returns the collected diagnostics in the order they were added.
func (d *Diagnostics) List() []Diagnostic {
	return append([]Diagnostic(nil), d.items...)
}

// Len returns the number of collected diagnostics.
func (d *Diagnostics) Len() int {
	return len(d.items)
}

// Context is the state of one document conversion. Readers and writers
// receive it explicitly; nothing is shared between conversions except
// through a Context, and Reset must be called before the next document.
type Context struct {
	Params      config.Params
	Registry    *registry.Registry
	Resolver    *resolve.Resolver
	Diagnostics *Diagnostics
	Logger      *slog.Logger
}

// NewContext returns a context for one conversion. A nil logger uses the
// global logger. Records logged through the context carry a conversion id.
func NewContext(p config.Params, logger *slog.Logger) *Context {
	if logger == nil {
		logger = logging.GetLogger()
	}
	logger = logging.WithConversionID(logger)
	return &Context{
		Params:      p,
		Registry:    registry.New(registry.Strategy(p.IDStrategy)),
		Resolver:    resolve.New(),
		Diagnostics: &Diagnostics{logger: logger},
		Logger:      logger,
	}
}

// Reset clears all per-document state.
func (c *Context) Reset() {
	c.Registry.Reset()
	c.Resolver.Reset()
	c.Diagnostics.items = nil
}
