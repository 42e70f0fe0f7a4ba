// Package resolve validates cross-references between identified elements and
// expands set definitions.
//
// Elements are keyed by content type and id, so an OTU and an OTU set with
// the same id never collide. Set expansion is iterative: nested set
// references are followed with an explicit stack and an in-progress marker
// per set, and reaching a set that is still being expanded is reported as a
// circular reference.
package resolve

import (
	"slices"
	"sort"

	"github.com/FocuswithJustin/phyloconv/core/errors"
	"github.com/FocuswithJustin/phyloconv/core/event"
)

// Key identifies an element by content type and id.
type Key struct {
	Type event.ContentType
	ID   string
}

func (k Key) String() string {
	return k.Type.String() + ":" + k.ID
}

// Interval is a half-open column interval [Start, End).
type Interval struct {
	Start int64
	End   int64
}

// Expansion is the flattened content of a set.
type Expansion struct {
	Members   []Key      // leaf elements in first-seen order, no duplicates
	Intervals []Interval // sorted and merged
}

// Contains reports whether column i is covered by the intervals.
func (x *Expansion) Contains(i int64) bool {
	n := sort.Search(len(x.Intervals), func(j int) bool { return x.Intervals[j].End > i })
	return n < len(x.Intervals) && x.Intervals[n].Start <= i
}

type setDef struct {
	members   []Key
	intervals []Interval
}

type link struct {
	from string
	to   Key
}

type expandState int

const (
	unvisited expandState = iota
	inProgress
	done
)

// Resolver holds the elements and sets of one document.
type Resolver struct {
	declared map[Key]bool
	sets     map[Key]*setDef
	order    []Key
	links    []link
	expanded map[Key]*Expansion
}

// New returns an empty resolver.
func New() *Resolver {
	r := &Resolver{}
	r.Reset()
	return r
}

// Reset forgets all elements, sets and links. It must be called between
// documents.
func (r *Resolver) Reset() {
	r.declared = make(map[Key]bool)
	r.sets = make(map[Key]*setDef)
	r.order = nil
	r.links = nil
	r.expanded = make(map[Key]*Expansion)
}

// Declare records that element k exists.
func (r *Resolver) Declare(k Key) {
	r.declared[k] = true
}

// Has reports whether k has been declared.
func (r *Resolver) Has(k Key) bool {
	return r.declared[k]
}

// Require checks that the element from links to has been declared.
func (r *Resolver) Require(from string, to Key) error {
	if r.declared[to] {
		return nil
	}
	return &errors.DanglingLinkError{From: from, To: to.ID, Kind: to.Type.String()}
}

// Link records a link to be checked by VerifyLinks, for callers that
// declare all elements before checking any link.
func (r *Resolver) Link(from string, to Key) {
	r.links = append(r.links, link{from: from, to: to})
}

// VerifyLinks checks every recorded link and returns the first dangling one.
func (r *Resolver) VerifyLinks() error {
	for _, l := range r.links {
		if err := r.Require(l.from, l.to); err != nil {
			return err
		}
	}
	return nil
}

// DefineSet declares set k with the given members and intervals. Members
// whose type is a set type are references to nested sets.
func (r *Resolver) DefineSet(k Key, members []Key, intervals []Interval) {
	if _, exists := r.sets[k]; !exists {
		r.order = append(r.order, k)
	}
	r.sets[k] = &setDef{
		members:   slices.Clone(members),
		intervals: slices.Clone(intervals),
	}
	r.declared[k] = true
	clear(r.expanded)
}

// Sets returns the defined set keys in definition order.
func (r *Resolver) Sets() []Key {
	return slices.Clone(r.order)
}

type frame struct {
	key  Key
	next int
}

// Expand returns the flattened members and merged intervals of set k.
// Nested references are followed without recursion. A reference to a set that
// is still being expanded yields a CircularReferenceError; a reference to an
// undefined set yields a DanglingLinkError.
func (r *Resolver) Expand(k Key) (*Expansion, error) {
	if x, ok := r.expanded[k]; ok {
		return x, nil
	}
	if _, ok := r.sets[k]; !ok {
		return nil, &errors.DanglingLinkError{From: k.ID, To: k.ID, Kind: k.Type.String()}
	}

	state := make(map[Key]expandState)
	stack := []frame{{key: k}}
	state[k] = inProgress

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		def := r.sets[top.key]
		if top.next < len(def.members) {
			m := def.members[top.next]
			top.next++
			if !m.Type.IsSet() {
				continue
			}
			if _, ok := r.expanded[m]; ok {
				continue
			}
			switch state[m] {
			case inProgress:
				return nil, r.cycle(stack, m)
			case done:
				continue
			}
			if _, ok := r.sets[m]; !ok {
				return nil, &errors.DanglingLinkError{From: top.key.ID, To: m.ID, Kind: m.Type.String()}
			}
			state[m] = inProgress
			stack = append(stack, frame{key: m})
			continue
		}
		// All nested references of top are expanded.
		r.expanded[top.key] = r.flatten(top.key)
		state[top.key] = done
		stack = stack[:len(stack)-1]
	}
	return r.expanded[k], nil
}

// flatten combines the direct content of k with the already expanded content
// of its nested sets.
func (r *Resolver) flatten(k Key) *Expansion {
	def := r.sets[k]
	x := &Expansion{}
	seen := make(map[Key]bool)
	add := func(m Key) {
		if !seen[m] {
			seen[m] = true
			x.Members = append(x.Members, m)
		}
	}
	intervals := slices.Clone(def.intervals)
	for _, m := range def.members {
		if !m.Type.IsSet() {
			add(m)
			continue
		}
		nested := r.expanded[m]
		for _, nm := range nested.Members {
			add(nm)
		}
		intervals = append(intervals, nested.Intervals...)
	}
	x.Intervals = MergeIntervals(intervals)
	return x
}

func (r *Resolver) cycle(stack []frame, repeated Key) error {
	var path []string
	start := 0
	for i, f := range stack {
		if f.key == repeated {
			start = i
			break
		}
	}
	for _, f := range stack[start:] {
		path = append(path, f.key.ID)
	}
	path = append(path, repeated.ID)
	return &errors.CircularReferenceError{SetID: repeated.ID, Path: path}
}

// ExpandAll expands every defined set in definition order and returns the
// first error.
func (r *Resolver) ExpandAll() error {
	for _, k := range r.order {
		if _, err := r.Expand(k); err != nil {
			return err
		}
	}
	return nil
}

// MergeIntervals sorts intervals and merges overlapping or adjacent ones.
// Empty intervals are dropped.
func MergeIntervals(in []Interval) []Interval {
	var out []Interval
	sorted := make([]Interval, 0, len(in))
	for _, iv := range in {
		if iv.End > iv.Start {
			sorted = append(sorted, iv)
		}
	}
	slices.SortFunc(sorted, func(a, b Interval) int {
		if a.Start != b.Start {
			if a.Start < b.Start {
				return -1
			}
			return 1
		}
		if a.End < b.End {
			return -1
		}
		if a.End > b.End {
			return 1
		}
		return 0
	})
	for _, iv := range sorted {
		if n := len(out); n > 0 && iv.Start <= out[n-1].End {
			if iv.End > out[n-1].End {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
