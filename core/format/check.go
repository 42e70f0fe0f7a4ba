package format

import (
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/phyloconv/core/adapter"
	"github.com/FocuswithJustin/phyloconv/core/errors"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/resolve"
)

// maxInferredAlphabet bounds the distinct tokens collected for a matrix
// without token set definition.
const maxInferredAlphabet = 4096

// Taxon is one OTU of a list as it will be written.
type Taxon struct {
	ID          string
	Label       string
	Synthesized bool
}

// ListInfo is an OTU list as it will be written.
type ListInfo struct {
	ID          string
	Label       string
	Placeholder bool
	Taxa        []Taxon
	index       map[string]int
}

func newListInfo(id, label string) *ListInfo {
	return &ListInfo{ID: id, Label: label, index: make(map[string]int)}
}

func (l *ListInfo) add(t Taxon) {
	l.index[t.ID] = len(l.Taxa)
	l.Taxa = append(l.Taxa, t)
}

// Index returns the 1-based position of otuID in the list, or 0.
func (l *ListInfo) Index(otuID string) int {
	if i, ok := l.index[otuID]; ok {
		return i + 1
	}
	return 0
}

// TaxonLabel returns the label written for otuID.
func (l *ListInfo) TaxonLabel(otuID string) (string, bool) {
	if i, ok := l.index[otuID]; ok {
		return l.Taxa[i].Label, true
	}
	return "", false
}

// Row is one sequence of a matrix as it will be written.
type Row struct {
	SequenceID string
	OTUID      string
	Label      string
	Length     int64
}

// TokenInfo is a defined token of a matrix.
type TokenInfo struct {
	ID           string
	Token        string
	Label        string
	Meaning      event.TokenMeaning
	SymbolType   event.SymbolType
	Constituents []string
}

// MatrixInfo holds what writers need to declare a matrix up front.
type MatrixInfo struct {
	ID        string
	Label     string
	OTUListID string
	// Columns is the length of the longest sequence.
	Columns int64
	SetType event.CharacterStateSetType
	// InferredType is set when no token set definition was given.
	InferredType bool
	// Alphabet lists the atomic state tokens, sorted.
	Alphabet []string
	// Tokens lists the defined tokens in definition order.
	Tokens []TokenInfo
	// LongTokens is set when any token has more than one character. State
	// sets count by their constituents.
	LongTokens bool
	Gap        string
	Missing    string
	Match      string
	Rows       []Row
}

// TreeInfo holds the checked topology of a tree or network.
type TreeInfo struct {
	ID          string
	Label       string
	Network     bool
	RootedKnown bool
	Rooted      bool
	// Root is the root node of a tree; empty for networks and empty trees.
	Root     string
	RootEdge string
	// Children maps a node to its child nodes in edge order.
	Children map[string][]string
	// Incoming maps a node to the edge that leads to it.
	Incoming   map[string]string
	NodeLabels map[string]string
	NodeOTU    map[string]string
}

// GroupInfo is a tree/network group as it will be written.
type GroupInfo struct {
	ID        string
	Label     string
	OTUListID string
	Trees     []*TreeInfo
}

// SetInfo is a set as it will be written.
type SetInfo struct {
	Key       resolve.Key
	Label     string
	ParentID  string
	Expansion *resolve.Expansion
}

// CheckResult is the outcome of the check pass. It is built once and only
// read by the write pass.
type CheckResult struct {
	Caps     Capabilities
	Lists    []*ListInfo
	Matrices []*MatrixInfo
	Groups   []*GroupInfo
	Sets     []*SetInfo

	lists   map[string]*ListInfo
	labels  map[string]string
	skipped map[string]bool
}

// List returns the written OTU list with the given id.
func (r *CheckResult) List(id string) *ListInfo {
	return r.lists[id]
}

// Label returns the written label of an element, or "" if none was resolved.
func (r *CheckResult) Label(id string) string {
	return r.labels[id]
}

// Skipped reports whether an element is left out of the output.
func (r *CheckResult) Skipped(id string) bool {
	return r.skipped[id]
}

// SetsOf returns the written sets whose parent is parentID.
func (r *CheckResult) SetsOf(parentID string, t event.ContentType) []*SetInfo {
	var out []*SetInfo
	for _, s := range r.Sets {
		if s.ParentID == parentID && s.Key.Type == t {
			out = append(out, s)
		}
	}
	return out
}

// SkipMatrix drops a matrix from the result. Writer checks call it for
// matrices the format cannot express.
func (r *CheckResult) SkipMatrix(ctx *Context, id, reason string) {
	r.Matrices = slices.DeleteFunc(r.Matrices, func(mi *MatrixInfo) bool { return mi.ID == id })
	r.skipped[id] = true
	ctx.Diagnostics.Add(DiagUnsupported, id, "%s", reason)
}

type matrixStats struct {
	lengths  map[string]int64
	tokens   map[string]bool
	overflow bool
	long     bool
	types    []event.CharacterStateSetType
	defined  []TokenInfo
}

type setMeta struct {
	label    string
	parentID string
}

type checker struct {
	ctx  *Context
	caps Capabilities
	res  *CheckResult

	metaCount   int
	otuLabels   map[string]string // original OTU labels
	taxonLabels map[string]string // written OTU labels
	stats       map[string]*matrixStats
	sets        map[resolve.Key]setMeta
	rooted      map[string]bool
	placeholder *ListInfo
}

// Check runs the shared check pass over doc: id registration, link
// validation, set expansion, matrix declarations, tree topology and label
// resolution. It fails with the first consistency error.
func Check(ctx *Context, doc adapter.Document, caps Capabilities) (*CheckResult, error) {
	c := &checker{
		ctx:  ctx,
		caps: caps,
		res: &CheckResult{
			Caps:    caps,
			lists:   make(map[string]*ListInfo),
			labels:  make(map[string]string),
			skipped: make(map[string]bool),
		},
		otuLabels:   make(map[string]string),
		taxonLabels: make(map[string]string),
		stats:       make(map[string]*matrixStats),
		sets:        make(map[resolve.Key]setMeta),
		rooted:      make(map[string]bool),
	}
	if err := c.declare(doc); err != nil {
		return nil, err
	}
	if err := ctx.Resolver.VerifyLinks(); err != nil {
		return nil, err
	}
	if err := ctx.Resolver.ExpandAll(); err != nil {
		return nil, err
	}
	c.checkLists(doc)
	if err := c.checkMatrices(doc); err != nil {
		return nil, err
	}
	if err := c.checkGroups(doc); err != nil {
		return nil, err
	}
	if err := c.checkSets(); err != nil {
		return nil, err
	}
	if c.placeholder != nil {
		c.res.Lists = append(c.res.Lists, c.placeholder)
		c.res.lists[c.placeholder.ID] = c.placeholder
	}
	if !caps.Metadata && c.metaCount > 0 {
		ctx.Diagnostics.Add(DiagUnsupported, "", "%d metadata elements cannot be written and are skipped", c.metaCount)
	}
	return c.res, nil
}

// contentReceiver validates adapter content and counts top-level metadata.
type contentReceiver struct {
	v    *event.Validator
	meta *int
	fn   func(e event.Event, depth int) error
}

func (r *contentReceiver) Add(e event.Event) error {
	depth := r.v.Depth()
	if err := r.v.Accept(e); err != nil {
		return err
	}
	t := e.Type()
	if depth == 0 && t.Topology == event.Start && t.Content.IsMeta() {
		*r.meta++
	}
	if r.fn != nil {
		return r.fn(e, depth)
	}
	return nil
}

func (c *checker) scan(parent event.ContentType, write func(adapter.Receiver) error, fn func(event.Event, int) error) error {
	r := &contentReceiver{v: event.NewFragmentValidator(parent), meta: &c.metaCount, fn: fn}
	if err := write(r); err != nil {
		return err
	}
	return r.v.Close()
}

func scanElement[E event.Event](c *checker, els adapter.Elements[E], id string, parent event.ContentType, fn func(event.Event, int) error) error {
	return c.scan(parent, func(r adapter.Receiver) error { return els.WriteContent(r, id) }, fn)
}

func (c *checker) register(t event.ContentType, id string) error {
	if id == "" {
		return errors.NewConsistency("", "%s element without id", t)
	}
	if err := c.ctx.Registry.RegisterID(id); err != nil {
		return err
	}
	c.ctx.Resolver.Declare(resolve.Key{Type: t, ID: id})
	return nil
}

func (c *checker) link(from string, t event.ContentType, to string) {
	if to != "" {
		c.ctx.Resolver.Link(from, resolve.Key{Type: t, ID: to})
	}
}

// declareSets registers every set of els and records its members.
func declareSets(c *checker, els adapter.Elements[*event.LinkedLabeledID], t event.ContentType, parentID string, parentType event.ContentType) error {
	for id := range els.IDs() {
		start := els.Start(id)
		if err := c.register(t, id); err != nil {
			return err
		}
		c.link(id, parentType, start.LinkedID)
		var members []resolve.Key
		var intervals []resolve.Interval
		err := scanElement(c, els, id, t, func(e event.Event, depth int) error {
			if depth != 0 {
				return nil
			}
			switch v := e.(type) {
			case *event.SetElement:
				k := resolve.Key{Type: v.ElementType, ID: v.ElementID}
				members = append(members, k)
				c.link(id, v.ElementType, v.ElementID)
			case *event.CharacterSetInterval:
				intervals = append(intervals, resolve.Interval{Start: v.Start, End: v.End})
			}
			return nil
		})
		if err != nil {
			return err
		}
		c.ctx.Resolver.DefineSet(resolve.Key{Type: t, ID: id}, members, intervals)
		c.sets[resolve.Key{Type: t, ID: id}] = setMeta{label: start.Label, parentID: parentID}
	}
	return nil
}

func (c *checker) declare(doc adapter.Document) error {
	if err := c.scan(event.ContentDocument, doc.WriteMetadata, nil); err != nil {
		return err
	}
	lists := doc.OTULists()
	for lid := range lists.IDs() {
		l := lists.Get(lid)
		if err := c.register(event.ContentOTUList, lid); err != nil {
			return err
		}
		if err := c.scan(event.ContentOTUList, l.WriteMetadata, nil); err != nil {
			return err
		}
		otus := l.OTUs()
		for oid := range otus.IDs() {
			if err := c.register(event.ContentOTU, oid); err != nil {
				return err
			}
			c.otuLabels[oid] = otus.Start(oid).Label
			if err := scanElement(c, otus, oid, event.ContentOTU, nil); err != nil {
				return err
			}
		}
		if err := declareSets(c, l.OTUSets(), event.ContentOTUSet, lid, event.ContentOTUList); err != nil {
			return err
		}
	}

	mats := doc.Matrices()
	for mid := range mats.IDs() {
		if err := c.declareMatrix(mid, mats.Get(mid)); err != nil {
			return err
		}
	}

	groups := doc.TreeNetworkGroups()
	for gid := range groups.IDs() {
		g := groups.Get(gid)
		if err := c.register(event.ContentTreeNetworkGroup, gid); err != nil {
			return err
		}
		c.link(gid, event.ContentOTUList, g.Start().LinkedID)
		if err := c.scan(event.ContentTreeNetworkGroup, g.WriteMetadata, nil); err != nil {
			return err
		}
		members := g.TreesAndNetworks()
		for tid := range members.IDs() {
			if err := c.declareTree(tid, members.Get(tid)); err != nil {
				return err
			}
		}
		if err := declareSets(c, g.TreeSets(), event.ContentTreeNetworkSet, gid, event.ContentTreeNetworkGroup); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) declareMatrix(mid string, m adapter.Matrix) error {
	if err := c.register(event.ContentAlignment, mid); err != nil {
		return err
	}
	c.link(mid, event.ContentOTUList, m.Start().LinkedID)
	if err := c.scan(event.ContentAlignment, m.WriteMetadata, nil); err != nil {
		return err
	}
	st := &matrixStats{lengths: make(map[string]int64), tokens: make(map[string]bool)}
	c.stats[mid] = st

	chars := m.Characters()
	for id := range chars.IDs() {
		if err := c.register(event.ContentCharacterDefinition, id); err != nil {
			return err
		}
		if err := scanElement(c, chars, id, event.ContentCharacterDefinition, nil); err != nil {
			return err
		}
	}

	tokenSets := m.TokenSets()
	for id := range tokenSets.IDs() {
		ts := tokenSets.Start(id)
		if err := c.register(event.ContentTokenSetDefinition, id); err != nil {
			return err
		}
		c.link(id, event.ContentCharacterSet, ts.CharacterSetID)
		if ts.SetType != event.SetTypeUnknown && !slices.Contains(st.types, ts.SetType) {
			st.types = append(st.types, ts.SetType)
		}
		err := scanElement(c, tokenSets, id, event.ContentTokenSetDefinition, func(e event.Event, depth int) error {
			if def, ok := e.(*event.SingleTokenDefinition); ok && depth == 0 {
				if err := c.register(event.ContentSingleTokenDefinition, def.ID); err != nil {
					return err
				}
				st.defined = append(st.defined, TokenInfo{
					ID:           def.ID,
					Token:        def.TokenName,
					Label:        def.Label,
					Meaning:      def.Meaning,
					SymbolType:   def.SymbolType,
					Constituents: def.Constituents,
				})
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	seqs := m.Sequences()
	for sid := range seqs.IDs() {
		if err := c.register(event.ContentSequence, sid); err != nil {
			return err
		}
		c.link(sid, event.ContentOTU, seqs.Start(sid).LinkedID)
		var n int64
		err := scanElement(c, seqs, sid, event.ContentSequence, func(e event.Event, depth int) error {
			tokens, ok := e.(*event.SequenceTokens)
			if !ok || depth != 0 {
				return nil
			}
			n += int64(len(tokens.Tokens))
			for _, tok := range tokens.Tokens {
				if len([]rune(tok)) > 1 {
					st.long = true
				}
				if !st.overflow && !st.tokens[tok] {
					if len(st.tokens) >= maxInferredAlphabet {
						st.overflow = true
						continue
					}
					st.tokens[tok] = true
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		st.lengths[sid] = n
	}

	if err := declareSets(c, m.CharacterSets(), event.ContentCharacterSet, mid, event.ContentAlignment); err != nil {
		return err
	}
	return declareSets(c, m.SequenceSets(), event.ContentSequenceSet, mid, event.ContentAlignment)
}

func (c *checker) declareTree(tid string, tn adapter.TreeNetwork) error {
	kind := tn.Start().Content
	if err := c.register(kind, tid); err != nil {
		return err
	}
	inRooted := false
	err := c.scan(kind, tn.WriteMetadata, func(e event.Event, depth int) error {
		switch v := e.(type) {
		case *event.LiteralMeta:
			inRooted = depth == 0 && v.Predicate == event.PredicateRooted
		case *event.LiteralMetaContent:
			if inRooted {
				c.rooted[tid] = strings.EqualFold(strings.TrimSpace(v.Value), "true")
			}
		case *event.PartEnd:
			if v.Content == event.ContentMetaLiteral && depth == 1 {
				inRooted = false
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	nodes := tn.Nodes()
	for nid := range nodes.IDs() {
		if err := c.register(event.ContentNode, nid); err != nil {
			return err
		}
		c.link(nid, event.ContentOTU, nodes.Start(nid).LinkedID)
		if err := scanElement(c, nodes, nid, event.ContentNode, nil); err != nil {
			return err
		}
	}
	edges := tn.Edges()
	for eid := range edges.IDs() {
		e := edges.Start(eid)
		if err := c.register(e.Type().Content, eid); err != nil {
			return err
		}
		c.link(eid, event.ContentNode, e.SourceID)
		if e.TargetID == "" {
			return errors.NewConsistency(eid, "edge without target node")
		}
		c.link(eid, event.ContentNode, e.TargetID)
		if err := scanElement(c, edges, eid, e.Type().Content, nil); err != nil {
			return err
		}
	}
	return declareSets(c, tn.NodeEdgeSets(), event.ContentNodeEdgeSet, tid, kind)
}

// label returns the label written for id. Formats that reference elements
// by label get collision-free labels from the registry.
func (c *checker) label(id, candidate, category string) string {
	if candidate == "" {
		candidate = id
	}
	normalized := c.caps.LabelPolicy.Normalize(candidate)
	if !c.caps.UniqueLabels {
		c.res.labels[id] = normalized
		return normalized
	}
	label := c.ctx.Registry.ResolveLabel(id, candidate, category, c.caps.LabelPolicy)
	if label != normalized {
		c.ctx.Diagnostics.Add(DiagLabelEdited, id, "label %q written as %q", candidate, label)
	}
	c.res.labels[id] = label
	return label
}

func taxaCategory(listID string) string {
	return "taxa:" + listID
}

func (c *checker) checkLists(doc adapter.Document) {
	lists := doc.OTULists()
	for lid := range lists.IDs() {
		l := lists.Get(lid)
		li := newListInfo(lid, c.label(lid, l.Start().Label, "lists"))
		otus := l.OTUs()
		for oid := range otus.IDs() {
			label := c.label(oid, otus.Start(oid).Label, taxaCategory(lid))
			li.add(Taxon{ID: oid, Label: label})
			c.taxonLabels[oid] = label
		}
		c.res.Lists = append(c.res.Lists, li)
		c.res.lists[lid] = li
	}
}

func (c *checker) placeholderList(forID string) (*ListInfo, error) {
	if c.placeholder != nil {
		return c.placeholder, nil
	}
	if !c.ctx.Params.SynthesizePlaceholders {
		return nil, errors.NewConsistency(forID, "no OTU list is linked and placeholder synthesis is disabled")
	}
	id := c.ctx.Registry.NewID("otus")
	c.placeholder = newListInfo(id, c.label(id, "Undefined OTUs", "lists"))
	c.placeholder.Placeholder = true
	c.ctx.Diagnostics.Add(DiagSynthesized, id, "OTU list synthesized for %q", forID)
	return c.placeholder, nil
}

func (c *checker) listFor(elementID, listID string) (*ListInfo, error) {
	if listID != "" {
		if li := c.res.lists[listID]; li != nil {
			return li, nil
		}
	}
	return c.placeholderList(elementID)
}

func (c *checker) checkMatrices(doc adapter.Document) error {
	mats := doc.Matrices()
	infos := make(map[string]*MatrixInfo)
	// Consistency is checked for every matrix before anything is skipped.
	for mid := range mats.IDs() {
		mi, err := c.matrixInfo(mid, mats.Get(mid))
		if err != nil {
			return err
		}
		infos[mid] = mi
	}

	for mid := range mats.IDs() {
		m := mats.Get(mid)
		mi := infos[mid]
		switch {
		case !c.caps.Matrices:
			c.skip(mid, "matrices cannot be written to this format")
			continue
		case c.caps.SingleMatrix && len(c.res.Matrices) == 1:
			c.skip(mid, "only one matrix can be written to this format")
			continue
		case mi.LongTokens && !c.caps.LongTokens:
			c.skip(mid, "multi-character tokens cannot be written to this format")
			continue
		}
		mi.Label = c.label(mid, m.Start().Label, "matrices")
		li, err := c.listFor(mid, m.Start().LinkedID)
		if err != nil {
			return err
		}
		mi.OTUListID = li.ID
		c.rows(mi, m, li)
		c.res.Matrices = append(c.res.Matrices, mi)
	}
	return nil
}

func (c *checker) skip(id, reason string) {
	c.res.skipped[id] = true
	c.ctx.Diagnostics.Add(DiagUnsupported, id, "%s", reason)
}

func (c *checker) matrixInfo(mid string, m adapter.Matrix) (*MatrixInfo, error) {
	st := c.stats[mid]
	mi := &MatrixInfo{
		ID:         mid,
		LongTokens: st.long,
		Gap:        "-",
		Missing:    "?",
		Match:      c.ctx.Params.MatchToken,
		Tokens:     st.defined,
	}

	for _, n := range st.lengths {
		if n > mi.Columns {
			mi.Columns = n
		}
	}
	if declared, ok := m.DeclaredColumns(); ok && declared != mi.Columns {
		return nil, errors.NewConsistency(mid, "declared %d columns but the longest sequence has %d tokens", declared, mi.Columns)
	}

	if len(st.types) > 1 {
		return nil, errors.NewConsistency(mid, "conflicting token set types %s and %s", st.types[0], st.types[1])
	}

	special := map[string]bool{}
	atomic := map[string]bool{}
	for _, def := range st.defined {
		switch def.Meaning {
		case event.MeaningGap:
			mi.Gap = def.Token
		case event.MeaningMissing:
			mi.Missing = def.Token
		case event.MeaningMatch:
			mi.Match = def.Token
		case event.MeaningCharacterState:
			if def.SymbolType == event.SymbolAtomic {
				atomic[def.Token] = true
			} else {
				special[def.Token] = true
				for _, c := range def.Constituents {
					atomic[c] = true
				}
			}
		}
	}
	special[mi.Gap] = true
	special[mi.Missing] = true
	special[mi.Match] = true
	if !st.overflow {
		mi.LongTokens = longTokens(st)
	}

	used := make([]string, 0, len(st.tokens))
	for tok := range st.tokens {
		if !special[tok] {
			used = append(used, tok)
		}
	}

	if len(st.types) == 1 {
		mi.SetType = st.types[0]
	} else {
		mi.SetType = inferSetType(used, mi.LongTokens, st.overflow)
		mi.InferredType = true
		if len(st.lengths) > 0 {
			c.ctx.Diagnostics.Add(DiagSynthesized, mid, "token set of type %s inferred from the sequence data", mi.SetType)
		}
	}

	if mi.SetType.IsMolecular() {
		for _, tok := range used {
			if len([]rune(tok)) > 1 {
				return nil, errors.NewConsistency(mid, "token %q is not a single character in a %s matrix", tok, mi.SetType)
			}
		}
		for _, def := range st.defined {
			if len([]rune(def.Token)) > 1 {
				return nil, errors.NewConsistency(mid, "token %q is not a single character in a %s matrix", def.Token, mi.SetType)
			}
		}
	}

	if mi.SetType != event.SetTypeContinuous {
		for _, tok := range used {
			atomic[tok] = true
		}
		for tok := range atomic {
			mi.Alphabet = append(mi.Alphabet, tok)
		}
		sort.Strings(mi.Alphabet)
	}
	return mi, nil
}

// longTokens reports whether a state token of the matrix has more than one
// character. State sets count through their constituents, since writers
// spell them from those.
func longTokens(st *matrixStats) bool {
	long := func(tok string) bool { return len([]rune(tok)) > 1 }
	stateSets := make(map[string]bool)
	for _, def := range st.defined {
		if def.Meaning != event.MeaningCharacterState || def.SymbolType == event.SymbolAtomic || len(def.Constituents) == 0 {
			continue
		}
		stateSets[def.Token] = true
		if slices.ContainsFunc(def.Constituents, long) {
			return true
		}
	}
	for tok := range st.tokens {
		if !stateSets[tok] && long(tok) {
			return true
		}
	}
	return false
}

// inferSetType guesses the alphabet of a matrix from the tokens it uses.
func inferSetType(tokens []string, long, overflow bool) event.CharacterStateSetType {
	if overflow {
		return continuousOr(tokens, event.SetTypeDiscrete)
	}
	if len(tokens) == 0 {
		return event.SetTypeDiscrete
	}
	if !long {
		if allIn(tokens, "ACGTNRYSWKMBDHV") {
			return event.SetTypeDNA
		}
		if allIn(tokens, "ACGUNRYSWKMBDHV") {
			return event.SetTypeRNA
		}
	}
	if continuous := continuousOr(tokens, event.SetTypeUnknown); continuous == event.SetTypeContinuous {
		return continuous
	}
	if !long && allIn(tokens, "ABCDEFGHIKLMNPQRSTVWXYZ*") {
		return event.SetTypeAminoAcid
	}
	return event.SetTypeDiscrete
}

func allIn(tokens []string, alphabet string) bool {
	for _, tok := range tokens {
		if !strings.Contains(alphabet, strings.ToUpper(tok)) {
			return false
		}
	}
	return true
}

// continuousOr returns SetTypeContinuous if every token is a number and at
// least one is not a single digit, otherwise def.
func continuousOr(tokens []string, def event.CharacterStateSetType) event.CharacterStateSetType {
	nonDigit := false
	for _, tok := range tokens {
		if _, err := strconv.ParseFloat(tok, 64); err != nil {
			return def
		}
		if len(tok) != 1 {
			nonDigit = true
		}
	}
	if nonDigit {
		return event.SetTypeContinuous
	}
	return def
}

// rows resolves the row label and OTU of every sequence. A sequence that
// shares its OTU with an earlier sequence of the same matrix gets its own
// taxon in formats that reference taxa by label.
func (c *checker) rows(mi *MatrixInfo, m adapter.Matrix, li *ListInfo) {
	st := c.stats[mi.ID]
	seqs := m.Sequences()
	used := make(map[string]bool)
	for sid := range seqs.IDs() {
		start := seqs.Start(sid)
		row := Row{SequenceID: sid, Length: st.lengths[sid]}
		otu := start.LinkedID
		shared := used[otu] && c.caps.UniqueLabels
		if otu != "" && li.Index(otu) > 0 && !shared {
			used[otu] = true
			row.OTUID = otu
			row.Label, _ = li.TaxonLabel(otu)
		} else {
			candidate := start.Label
			if l := c.otuLabels[otu]; otu != "" && l != "" {
				candidate = l
			}
			if candidate == "" {
				candidate = sid
			}
			row.OTUID = c.ctx.Registry.NewID("otu")
			row.Label = c.label(sid, candidate, taxaCategory(li.ID))
			li.add(Taxon{ID: row.OTUID, Label: row.Label, Synthesized: true})
			if otu != "" {
				c.ctx.Diagnostics.Add(DiagSynthesized, sid, "taxon %q synthesized for a sequence sharing OTU %q", row.Label, otu)
			} else {
				c.ctx.Diagnostics.Add(DiagSynthesized, sid, "taxon %q synthesized for a sequence without OTU", row.Label)
			}
		}
		if row.Length < mi.Columns && !c.caps.Unaligned {
			c.ctx.Diagnostics.Add(DiagPadded, sid, "sequence padded from %d to %d columns with %q", row.Length, mi.Columns, mi.Missing)
		}
		mi.Rows = append(mi.Rows, row)
	}
}

func (c *checker) checkGroups(doc adapter.Document) error {
	groups := doc.TreeNetworkGroups()
	for gid := range groups.IDs() {
		g := groups.Get(gid)
		if !c.caps.Trees {
			c.skip(gid, "trees cannot be written to this format")
			continue
		}
		gi := &GroupInfo{ID: gid, Label: c.label(gid, g.Start().Label, "groups")}
		if linked := g.Start().LinkedID; linked != "" {
			gi.OTUListID = linked
		} else if c.caps.GroupsNeedOTUList {
			li, err := c.placeholderList(gid)
			if err != nil {
				return err
			}
			gi.OTUListID = li.ID
		}
		members := g.TreesAndNetworks()
		for tid := range members.IDs() {
			tn := members.Get(tid)
			network := adapter.IsNetwork(tn)
			if network && !c.caps.Networks {
				c.skip(tid, "networks cannot be written to this format")
				continue
			}
			ti, err := c.treeInfo(tid, tn, network)
			if err != nil {
				return err
			}
			ti.Label = c.label(tid, tn.Start().Label, "trees:"+gid)
			gi.Trees = append(gi.Trees, ti)
		}
		c.res.Groups = append(c.res.Groups, gi)
	}
	return nil
}

func (c *checker) treeInfo(tid string, tn adapter.TreeNetwork, network bool) (*TreeInfo, error) {
	ti := &TreeInfo{
		ID:         tid,
		Network:    network,
		Children:   make(map[string][]string),
		Incoming:   make(map[string]string),
		NodeLabels: make(map[string]string),
		NodeOTU:    make(map[string]string),
	}
	ti.Rooted, ti.RootedKnown = c.rooted[tid]

	nodes := tn.Nodes()
	var order []string
	inTree := make(map[string]bool)
	flagged := ""
	for nid := range nodes.IDs() {
		n := nodes.Start(nid)
		order = append(order, nid)
		inTree[nid] = true
		label := n.Label
		if n.LinkedID != "" {
			ti.NodeOTU[nid] = n.LinkedID
			if l, ok := c.taxonLabels[n.LinkedID]; ok {
				label = l
			}
		}
		ti.NodeLabels[nid] = label
		if n.Root && flagged == "" {
			flagged = nid
		}
	}

	edges := tn.Edges()
	rootEdgeTarget := ""
	for eid := range edges.IDs() {
		e := edges.Start(eid)
		if !inTree[e.TargetID] || (e.SourceID != "" && !inTree[e.SourceID]) {
			return nil, errors.NewConsistency(eid, "edge connects a node outside %q", tid)
		}
		if e.Root || e.SourceID == "" {
			if ti.RootEdge != "" {
				return nil, errors.NewConsistency(tid, "more than one root edge")
			}
			ti.RootEdge = eid
			rootEdgeTarget = e.TargetID
			continue
		}
		if prev, dup := ti.Incoming[e.TargetID]; dup && !network {
			return nil, errors.NewConsistency(e.TargetID, "node has more than one parent edge (%s, %s)", prev, eid)
		}
		if _, dup := ti.Incoming[e.TargetID]; !dup {
			ti.Incoming[e.TargetID] = eid
		}
		ti.Children[e.SourceID] = append(ti.Children[e.SourceID], e.TargetID)
	}

	if network || len(order) == 0 {
		return ti, nil
	}

	var roots []string
	for _, nid := range order {
		if _, ok := ti.Incoming[nid]; !ok {
			roots = append(roots, nid)
		}
	}
	if len(roots) != 1 {
		return nil, errors.NewConsistency(tid, "tree has %d root nodes, want 1", len(roots))
	}
	ti.Root = roots[0]
	if flagged != "" && flagged != ti.Root {
		return nil, errors.NewConsistency(flagged, "node is flagged as root but has a parent edge")
	}
	if rootEdgeTarget != "" && rootEdgeTarget != ti.Root {
		return nil, errors.NewConsistency(ti.RootEdge, "root edge does not lead to the root node %q", ti.Root)
	}

	// Every node must be reachable from the root; with one parent per node
	// an unreachable node can only sit on a cycle.
	seen := map[string]bool{ti.Root: true}
	stack := []string{ti.Root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range ti.Children[n] {
			if !seen[child] {
				seen[child] = true
				stack = append(stack, child)
			}
		}
	}
	if len(seen) != len(order) {
		return nil, errors.NewConsistency(tid, "tree contains a cycle")
	}
	return ti, nil
}

func (c *checker) checkSets() error {
	for _, k := range c.ctx.Resolver.Sets() {
		meta := c.sets[k]
		if c.res.skipped[meta.parentID] {
			continue
		}
		if !c.caps.Sets {
			c.skip(k.ID, "sets cannot be written to this format")
			continue
		}
		x, err := c.ctx.Resolver.Expand(k)
		if err != nil {
			return err
		}
		c.res.Sets = append(c.res.Sets, &SetInfo{
			Key:       k,
			Label:     c.label(k.ID, meta.label, "sets:"+k.Type.String()),
			ParentID:  meta.parentID,
			Expansion: x,
		})
	}
	return nil
}
