// Package registry is the per-document authority for element ids and
// labels. It mints and validates ids and resolves label collisions
// deterministically.
package registry

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/phyloconv/core/errors"
)

// Strategy selects how NewID builds ids.
type Strategy string

// ID strategies.
const (
	Sequential Strategy = "sequential"
	UUID       Strategy = "uuid"
)

// LabelPolicy normalizes candidate labels before collision resolution.
type LabelPolicy struct {
	// Escape maps a raw label to a form legal in the target format. Nil
	// leaves labels unchanged.
	Escape func(string) string
	// MaxLength truncates labels to this many runes. Zero means unlimited.
	MaxLength int
}

// Normalize applies the escape function and the length limit to s.
func (p LabelPolicy) Normalize(s string) string {
	if p.Escape != nil {
		s = p.Escape(s)
	}
	return p.truncate(s)
}

func (p LabelPolicy) truncate(s string) string {
	if p.MaxLength <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= p.MaxLength {
		return s
	}
	return string(r[:p.MaxLength])
}

// Registry tracks ids and labels of one document.
type Registry struct {
	strategy Strategy
	ids      map[string]bool
	counters map[string]int
	// labels holds the claimed labels per category.
	labels map[string]map[string]string
	// resolved holds the final label per category and id.
	resolved map[string]map[string]string
	// edited holds the most recently resolved label per id.
	edited map[string]string
	newUUID func() uuid.UUID
}

// New returns an empty registry using the given id strategy. An empty
// strategy means Sequential.
func New(strategy Strategy) *Registry {
	if strategy == "" {
		strategy = Sequential
	}
	r := &Registry{strategy: strategy, newUUID: uuid.New}
	r.Reset()
	return r
}

// Reset forgets every id and label. It must be called between documents.
func (r *Registry) Reset() {
	r.ids = make(map[string]bool)
	r.counters = make(map[string]int)
	r.labels = make(map[string]map[string]string)
	r.resolved = make(map[string]map[string]string)
	r.edited = make(map[string]string)
}

// NewID returns an id that has not been issued, registered or observed in
// this document. The id starts with prefix.
func (r *Registry) NewID(prefix string) string {
	for {
		var id string
		switch r.strategy {
		case UUID:
			id = prefix + strings.ReplaceAll(r.newUUID().String(), "-", "")
		default:
			r.counters[prefix]++
			id = prefix + strconv.Itoa(r.counters[prefix])
		}
		if !r.ids[id] {
			r.ids[id] = true
			return id
		}
	}
}

// RegisterID claims id. It fails with a DuplicateIDError if id is already in
// use.
func (r *Registry) RegisterID(id string) error {
	if r.ids[id] {
		return &errors.DuplicateIDError{ID: id}
	}
	r.ids[id] = true
	return nil
}

// Observe marks id as used. Unlike RegisterID it never fails; readers use it
// for ids taken from the input.
func (r *Registry) Observe(id string) {
	r.ids[id] = true
}

// Has reports whether id is in use.
func (r *Registry) Has(id string) bool {
	return r.ids[id]
}

// ResolveLabel returns the label to emit for element id in category. The
// candidate is normalized by policy; if no other element of the category
// holds it, it is used verbatim. Otherwise id + "_" + candidate is tried, and
// then "_2", "_3", ... is appended until the label is unique. Calling
// ResolveLabel again for the same id and category returns the recorded
// label, so the first claimant always keeps the unedited form.
func (r *Registry) ResolveLabel(id, candidate, category string, policy LabelPolicy) string {
	if byID := r.resolved[category]; byID != nil {
		if label, ok := byID[id]; ok {
			return label
		}
	}
	claimed := r.labels[category]
	if claimed == nil {
		claimed = make(map[string]string)
		r.labels[category] = claimed
	}

	label := policy.Normalize(candidate)
	if _, taken := claimed[label]; taken {
		base := policy.Normalize(id + "_" + candidate)
		label = base
		for n := 2; ; n++ {
			if _, taken := claimed[label]; !taken {
				break
			}
			suffix := "_" + strconv.Itoa(n)
			label = policy.truncateBase(base, suffix) + suffix
		}
	}

	claimed[label] = id
	if r.resolved[category] == nil {
		r.resolved[category] = make(map[string]string)
	}
	r.resolved[category][id] = label
	r.edited[id] = label
	return label
}

// truncateBase shortens base so that base+suffix fits MaxLength.
func (p LabelPolicy) truncateBase(base, suffix string) string {
	if p.MaxLength <= 0 {
		return base
	}
	keep := p.MaxLength - len([]rune(suffix))
	r := []rune(base)
	if keep < 0 {
		keep = 0
	}
	if len(r) > keep {
		return string(r[:keep])
	}
	return base
}

// EditedLabel returns the label most recently resolved for id.
func (r *Registry) EditedLabel(id string) (string, bool) {
	label, ok := r.edited[id]
	return label, ok
}

// Label returns the label resolved for id in category.
func (r *Registry) Label(id, category string) (string, bool) {
	label, ok := r.resolved[category][id]
	return label, ok
}

// Owner returns the id that holds label in category.
func (r *Registry) Owner(label, category string) (string, bool) {
	id, ok := r.labels[category][label]
	return id, ok
}

// Count returns the number of ids in use.
func (r *Registry) Count() int {
	return len(r.ids)
}
