// Package format ties readers and writers to format ids. It provides the
// format registry, magic-prefix detection, the per-conversion Context and the
// two-pass write protocol shared by all writers.
package format

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/FocuswithJustin/phyloconv/core/adapter"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/registry"
)

// Format describes one supported file format.
type Format struct {
	// ID is the registry key, e.g. "nexus".
	ID string
	// Name is a human-readable name.
	Name string
	// Extensions are the usual file extensions, used when writing.
	Extensions []string
	// Magic lists prefixes that identify the format, compared
	// case-insensitively after leading whitespace.
	Magic []string
	// Fallback is tried when no magic prefix matches any format.
	Fallback func(prefix []byte) bool
	// NewReader returns a reader for one document.
	NewReader func(r io.Reader, ctx *Context) event.Reader
	// NewWriter returns a writer. Nil for read-only formats.
	NewWriter func() Writer
}

// Capabilities tells the shared check pass what a writer can express.
// Content outside the capabilities is skipped with a diagnostic.
type Capabilities struct {
	Matrices     bool
	SingleMatrix bool // only the first matrix is written
	LongTokens   bool // tokens longer than one character
	Trees        bool
	Networks     bool
	Sets         bool
	Metadata     bool
	Unaligned    bool // rows may differ in length; no padding
	// UniqueLabels is set for formats that reference elements by label.
	// Labels are then resolved through the registry.
	UniqueLabels bool
	// GroupsNeedOTUList makes the check pass link every tree group to an
	// OTU list, synthesizing one if needed.
	GroupsNeedOTUList bool
	LabelPolicy       registry.LabelPolicy
}

// Writer writes one document in two passes. Write receives the result of
// the check pass and must not produce output that the result does not
// account for.
type Writer interface {
	Capabilities(ctx *Context) Capabilities
	Write(ctx *Context, w io.Writer, doc adapter.Document, res *CheckResult) error
}

// Checker is implemented by writers with checks beyond the shared ones.
type Checker interface {
	Check(ctx *Context, doc adapter.Document, res *CheckResult) error
}

var (
	mu      sync.RWMutex
	formats = make(map[string]*Format)
)

// Register adds a format to the registry. It panics on a duplicate id.
func Register(f *Format) {
	mu.Lock()
	defer mu.Unlock()
	if f.ID == "" {
		panic("format: Register with empty id")
	}
	if _, dup := formats[f.ID]; dup {
		panic(fmt.Sprintf("format: Register called twice for %q", f.ID))
	}
	formats[f.ID] = f
}

// Get returns a registered format, or nil.
func Get(id string) *Format {
	mu.RLock()
	defer mu.RUnlock()
	return formats[id]
}

// List returns all registered formats sorted by id.
func List() []*Format {
	mu.RLock()
	defer mu.RUnlock()
	result := make([]*Format, 0, len(formats))
	for _, f := range formats {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// unregister removes a format (for testing).
func unregister(id string) {
	mu.Lock()
	defer mu.Unlock()
	delete(formats, id)
}
