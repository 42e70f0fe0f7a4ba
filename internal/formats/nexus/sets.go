package nexus

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/phyloconv/core/errors"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/internal/formats/command"
)

var iupac = map[string]string{
	"A": "A", "C": "C", "G": "G", "T": "T",
	"AG": "R", "CT": "Y", "CG": "S", "AT": "W", "GT": "K", "AC": "M",
	"CGT": "B", "AGT": "D", "ACT": "H", "ACG": "V", "ACGT": "N",
}

// iupacCode returns the ambiguity code for a set of nucleotides.
func iupacCode(members []string) (string, bool) {
	var bases []string
	for _, m := range members {
		m = strings.ToUpper(m)
		if m == "U" {
			m = "T"
		}
		if !slices.Contains(bases, m) {
			bases = append(bases, m)
		}
	}
	slices.Sort(bases)
	code, ok := iupac[strings.Join(bases, "")]
	return code, ok
}

// setTarget is the element a set belongs to, with the lookups needed to
// read its members.
type setTarget struct {
	parentID string
	member   event.ContentType // element type of numbered members
	count    int64
	// element returns the 0-based index of a named element.
	element func(name string) (int64, bool)
	// id returns the id of the element at a 0-based index; nil for
	// column sets.
	id func(i int64) string
}

func (src *source) setsCommand(q *event.Queue, name string, st command.Statement) error {
	var kind event.ContentType
	switch name {
	case "CHARSET":
		kind = event.ContentCharacterSet
	case "TAXSET":
		kind = event.ContentOTUSet
	case "TREESET":
		kind = event.ContentTreeNetworkSet
	default:
		q.Push(&event.UnknownCommand{Command: "SETS." + name, Text: st.Text})
		return nil
	}
	events, err := src.defineSet(kind, name, st.Text)
	if err != nil {
		return err
	}
	q.Push(events...)
	return nil
}

// defineSet parses "name [(qualifiers)] = members" and returns the events of
// the set.
func (src *source) defineSet(kind event.ContentType, cmd, text string) ([]event.Event, error) {
	words, err := splitWords(text, `=(),-\`)
	if err != nil {
		return nil, err
	}
	malformed := func(format string, args ...any) error {
		return &errors.ParseError{Message: fmt.Sprintf("malformed %s: ", cmd) + fmt.Sprintf(format, args...)}
	}
	if len(words) == 0 || words[0].is("=") {
		return nil, malformed("missing set name")
	}
	name := words[0].name()
	i := 1

	qualifiers := map[string]string{}
	if i < len(words) && words[i].is("(") {
		i++
		for i < len(words) && !words[i].is(")") {
			switch {
			case words[i].is(","):
				i++
			case i+2 < len(words) && words[i+1].is("="):
				qualifiers[strings.ToUpper(words[i].text)] = words[i+2].name()
				i += 3
			default:
				if strings.EqualFold(words[i].text, "VECTOR") {
					return nil, errors.NewUnsupported("Nexus "+cmd+" VECTOR", "only STANDARD set notation is supported")
				}
				i++
			}
		}
		if i == len(words) {
			return nil, malformed("unterminated qualifier list")
		}
		i++
	}
	if i >= len(words) || !words[i].is("=") {
		return nil, malformed("expected '=' after %q", name)
	}
	i++

	t, err := src.setTarget(kind, qualifiers)
	if err != nil {
		return nil, err
	}

	id := src.ctx.Registry.NewID("set")
	events := []event.Event{&event.LinkedLabeledID{Content: kind, ID: id, Label: name, LinkedID: t.parentID}}
	add := func(from, to, step int64) {
		if t.id == nil && step == 1 {
			events = append(events, &event.CharacterSetInterval{Start: from, End: to + 1})
			return
		}
		for j := from; j <= to; j += step {
			if t.id == nil {
				events = append(events, &event.CharacterSetInterval{Start: j, End: j + 1})
			} else {
				events = append(events, &event.SetElement{ElementID: t.id(j), ElementType: t.member})
			}
		}
	}

	for i < len(words) {
		w := words[i]
		i++
		switch {
		case w.is(","):
			continue
		case !w.quoted && len(w.text) == 1 && strings.ContainsAny(w.text, `=()-\`):
			return nil, malformed("unexpected %q", w.text)
		case strings.EqualFold(w.text, "REMAINING") && !w.quoted:
			return nil, errors.NewUnsupported("Nexus REMAINING", "sets relative to other sets are not supported")
		case strings.EqualFold(w.text, "ALL") && !w.quoted:
			if t.count > 0 {
				add(0, t.count-1, 1)
			}
			continue
		}

		from, isIndex, err := t.index(w)
		if err != nil {
			return nil, err
		}
		if !isIndex {
			setID, ok := src.sets[t.parentID][strings.ToUpper(w.name())]
			if !ok {
				return nil, &errors.ReferenceError{Kind: cmd + " member", Name: w.name()}
			}
			events = append(events, &event.SetElement{ElementID: setID, ElementType: kind})
			continue
		}
		to, step := from, int64(1)
		if i+1 < len(words) && words[i].is("-") {
			var ok bool
			if to, ok, err = t.index(words[i+1]); err != nil {
				return nil, err
			} else if !ok {
				return nil, malformed("invalid range end %q", words[i+1].text)
			}
			i += 2
			if i+1 < len(words) && words[i].is(`\`) {
				n, err := strconv.ParseInt(words[i+1].text, 10, 64)
				if err != nil || n < 1 {
					return nil, malformed("invalid step %q", words[i+1].text)
				}
				step = n
				i += 2
			}
		}
		if to < from {
			return nil, malformed("range %d-%d is reversed", from+1, to+1)
		}
		add(from, to, step)
	}
	events = append(events, event.NewEnd(kind))

	if src.sets[t.parentID] == nil {
		src.sets[t.parentID] = make(map[string]string)
	}
	src.sets[t.parentID][strings.ToUpper(name)] = id
	return events, nil
}

// index resolves a member word to a 0-based element index. It reports
// false for names that may refer to another set.
func (t *setTarget) index(w word) (int64, bool, error) {
	if !w.quoted && w.text == "." {
		if t.count == 0 {
			return 0, false, &errors.ParseError{Message: "'.' used before the element count is known"}
		}
		return t.count - 1, true, nil
	}
	if n, err := strconv.ParseInt(w.text, 10, 64); err == nil && !w.quoted {
		if n < 1 || ((t.count > 0 || t.id != nil) && n > t.count) {
			return 0, false, &errors.ParseError{Message: fmt.Sprintf("set member %d is out of range 1-%d", n, t.count)}
		}
		return n - 1, true, nil
	}
	if i, ok := t.element(w.name()); ok {
		return i, true, nil
	}
	return 0, false, nil
}

func (src *source) setTarget(kind event.ContentType, qualifiers map[string]string) (*setTarget, error) {
	switch kind {
	case event.ContentCharacterSet:
		m, err := pick(src.matrices, qualifiers["CHARACTERS"], "CHARACTERS block", func(m *matrixBlock) string { return m.title })
		if err != nil {
			return nil, err
		}
		return &setTarget{
			parentID: m.id,
			count:    m.columns,
			element: func(name string) (int64, bool) {
				i, ok := m.charLabels[strings.ToUpper(name)]
				return i, ok
			},
		}, nil
	case event.ContentOTUSet:
		tb, err := pick(src.taxa, qualifiers["TAXA"], "TAXA block", func(t *taxaBlock) string { return t.title })
		if err != nil {
			return nil, err
		}
		return &setTarget{
			parentID: tb.id,
			member:   event.ContentOTU,
			count:    int64(len(tb.ids)),
			element: func(name string) (int64, bool) {
				i := slices.Index(tb.labels, name)
				return int64(i), i >= 0
			},
			id: func(i int64) string { return tb.ids[i] },
		}, nil
	default:
		g, err := pick(src.groups, qualifiers["TREES"], "TREES block", func(g *treesBlock) string { return g.title })
		if err != nil {
			return nil, err
		}
		return &setTarget{
			parentID: g.id,
			member:   event.ContentTree,
			count:    int64(len(g.ids)),
			element: func(name string) (int64, bool) {
				id, ok := g.byLabel[strings.ToUpper(name)]
				return int64(slices.Index(g.ids, id)), ok
			},
			id: func(i int64) string { return g.ids[i] },
		}, nil
	}
}

// pick returns the block titled title, or the last block if title is
// empty.
func pick[B any](blocks []B, title, kind string, titleOf func(B) string) (B, error) {
	var zero B
	if title == "" {
		if len(blocks) == 0 {
			return zero, &errors.ReferenceError{Kind: kind, Name: "(none)"}
		}
		return blocks[len(blocks)-1], nil
	}
	for i := len(blocks) - 1; i >= 0; i-- {
		if sameName(titleOf(blocks[i]), title) {
			return blocks[i], nil
		}
	}
	return zero, &errors.ReferenceError{Kind: kind, Name: title}
}
