package nexml

import (
	"slices"
	"sort"
	"strconv"

	"github.com/FocuswithJustin/phyloconv/core/adapter"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
)

// stateDef is a state or state set as it will be written.
type stateDef struct {
	id           string
	token        string
	symbol       string
	label        string
	element      string
	constituents []string
	members      []string // state ids
	meta         [][]event.Event
	missing      bool
}

// stateSet reports whether d is a polymorphic or uncertain set of states
// other than missing data.
func (d *stateDef) stateSet() bool {
	return d.element != "state" && !d.missing && len(d.constituents) > 0
}

type statesBlock struct {
	id    string
	label string
	meta  [][]event.Event
	defs  []*stateDef
}

// statesPlan holds the states blocks of one matrix and the symbol written
// for each token.
type statesPlan struct {
	blocks  []*statesBlock
	symbols map[string]string
}

func (p *statesPlan) symbol(tok string) string {
	if s, ok := p.symbols[tok]; ok {
		return s
	}
	return tok
}

var elementRank = map[string]int{
	"state":                 0,
	"polymorphic_state_set": 1,
	"uncertain_state_set":   2,
}

func elementFor(def *event.SingleTokenDefinition) string {
	switch def.SymbolType {
	case event.SymbolPolymorphic:
		return "polymorphic_state_set"
	case event.SymbolUncertain:
		return "uncertain_state_set"
	}
	if def.Meaning == event.MeaningGap || def.Meaning == event.MeaningMissing {
		return "uncertain_state_set"
	}
	return "state"
}

func isMeta(e event.Event) bool {
	c := e.Type().Content
	return c.IsMeta() || c == event.ContentComment
}

// planStates turns the token set definitions of m into states blocks. The
// states a sequence uses without a definition are added to the first
// block, as are the definitions of a token set that holds only state sets,
// since chars refer to the first block. Missing data is the uncertain set
// of every state. Standard data needs numeric symbols, so other tokens get
// the next free number and keep the token as label.
func planStates(ctx *format.Context, mi *format.MatrixInfo, m adapter.Matrix) (*statesPlan, error) {
	p := &statesPlan{symbols: make(map[string]string)}
	if mi.SetType == event.SetTypeContinuous {
		return p, nil
	}

	byToken := make(map[string]*stateDef)
	sets := m.TokenSets()
	for id := range sets.IDs() {
		parts, err := collect(contentOf(sets, id))
		if err != nil {
			return nil, err
		}
		b := &statesBlock{id: id, label: sets.Start(id).Label}
		for _, sub := range parts {
			switch v := sub[0].(type) {
			case *event.SingleTokenDefinition:
				d := &stateDef{
					id:           v.ID,
					token:        v.TokenName,
					label:        v.Label,
					element:      elementFor(v),
					constituents: v.Constituents,
					missing:      v.Meaning == event.MeaningMissing,
				}
				for _, child := range subtrees(sub[1 : len(sub)-1]) {
					if isMeta(child[0]) {
						d.meta = append(d.meta, child)
					}
				}
				b.defs = append(b.defs, d)
				if byToken[d.token] == nil {
					byToken[d.token] = d
				}
			default:
				if isMeta(v) {
					b.meta = append(b.meta, sub)
				}
			}
		}
		if len(p.blocks) > 0 && onlyStateSets(b) {
			p.blocks[0].defs = append(p.blocks[0].defs, b.defs...)
			continue
		}
		p.blocks = append(p.blocks, b)
	}
	if len(p.blocks) == 0 {
		p.blocks = append(p.blocks, &statesBlock{id: ctx.Registry.NewID("states")})
	}

	used, err := usedTokens(m)
	if err != nil {
		return nil, err
	}
	padded := false
	for _, row := range mi.Rows {
		if row.Length < mi.Columns {
			padded = true
		}
	}

	first := p.blocks[0]
	add := func(tok, element string) *stateDef {
		d := &stateDef{id: ctx.Registry.NewID("state"), token: tok, element: element}
		first.defs = append(first.defs, d)
		byToken[tok] = d
		return d
	}
	for _, b := range p.blocks {
		for _, d := range b.defs {
			if d.missing {
				continue
			}
			for _, c := range d.constituents {
				if byToken[c] == nil {
					add(c, "state")
				}
			}
		}
	}
	for _, tok := range used {
		if tok != mi.Gap && tok != mi.Missing && byToken[tok] == nil {
			add(tok, "state")
		}
	}
	if byToken[mi.Gap] == nil && slices.Contains(used, mi.Gap) {
		add(mi.Gap, "uncertain_state_set")
	}
	if byToken[mi.Missing] == nil && (padded || slices.Contains(used, mi.Missing)) {
		add(mi.Missing, "uncertain_state_set").missing = true
	}
	var atomic []string
	for _, b := range p.blocks {
		for _, d := range b.defs {
			if d.element == "state" {
				atomic = append(atomic, d.token)
			}
		}
	}
	for _, b := range p.blocks {
		for _, d := range b.defs {
			if d.missing && len(d.constituents) == 0 {
				d.constituents = atomic
			}
		}
	}
	sort.SliceStable(first.defs, func(i, j int) bool {
		return elementRank[first.defs[i].element] < elementRank[first.defs[j].element]
	})

	remapped := assignSymbols(p, mi.SetType.IsMolecular())
	if remapped > 0 {
		ctx.Diagnostics.Add(format.DiagSynthesized, mi.ID, "%d tokens written as numbered states labeled with the token", remapped)
	}
	for _, b := range p.blocks {
		for _, d := range b.defs {
			for _, c := range d.constituents {
				if s := byToken[c]; s != nil {
					d.members = append(d.members, s.id)
				}
			}
		}
	}
	return p, nil
}

func onlyStateSets(b *statesBlock) bool {
	if b.label != "" || len(b.meta) > 0 || len(b.defs) == 0 {
		return false
	}
	for _, d := range b.defs {
		if !d.stateSet() {
			return false
		}
	}
	return true
}

// assignSymbols fills in the symbol of every state and returns the number
// of tokens that had to be renumbered. State sets are numbered without a
// label; their members say what they stand for.
func assignSymbols(p *statesPlan, molecular bool) int {
	reserved := make(map[int]bool)
	if !molecular {
		for _, b := range p.blocks {
			for _, d := range b.defs {
				if n, err := strconv.Atoi(d.token); err == nil && n >= 0 {
					reserved[n] = true
				}
			}
		}
	}
	remapped, next := 0, 0
	for _, b := range p.blocks {
		for _, d := range b.defs {
			if n, err := strconv.Atoi(d.token); molecular || (err == nil && n >= 0) {
				d.symbol = d.token
			} else {
				for reserved[next] {
					next++
				}
				reserved[next] = true
				d.symbol = strconv.Itoa(next)
				if !d.stateSet() {
					if d.label == "" {
						d.label = d.token
					}
					remapped++
				}
			}
			if _, ok := p.symbols[d.token]; !ok {
				p.symbols[d.token] = d.symbol
			}
		}
	}
	return remapped
}

// usedTokens returns the distinct tokens of the sequences of m, sorted.
func usedTokens(m adapter.Matrix) ([]string, error) {
	seen := make(map[string]bool)
	seqs := m.Sequences()
	for sid := range seqs.IDs() {
		err := seqs.WriteContent(adapter.ReceiverFunc(func(e event.Event) error {
			if tokens, ok := e.(*event.SequenceTokens); ok {
				for _, tok := range tokens.Tokens {
					seen[tok] = true
				}
			}
			return nil
		}), sid)
		if err != nil {
			return nil, err
		}
	}
	out := make([]string, 0, len(seen))
	for tok := range seen {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out, nil
}
