package nexus

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/phyloconv/core/errors"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/internal/formats/base"
	"github.com/FocuswithJustin/phyloconv/internal/formats/command"
)

func (src *source) openTaxa(q *event.Queue) {
	b := &src.blk
	if b.open {
		return
	}
	b.taxa = src.newTaxa(q, b.title)
	b.open = true
}

func (src *source) newTaxa(q *event.Queue, title string) *taxaBlock {
	tb := &taxaBlock{id: src.ctx.Registry.NewID("otus"), title: title, byLabel: make(map[string]string)}
	src.taxa = append(src.taxa, tb)
	q.Push(&event.LabeledID{Content: event.ContentOTUList, ID: tb.id, Label: title})
	return tb
}

// taxLabels pushes one OTU per label.
func (src *source) taxLabels(q *event.Queue, tb *taxaBlock, text string) error {
	words, err := splitWords(text, "")
	if err != nil {
		return err
	}
	for _, w := range words {
		label := w.name()
		if _, dup := tb.byLabel[label]; dup {
			return &errors.ParseError{Message: fmt.Sprintf("duplicate taxon label %q", label)}
		}
		id := src.ctx.Registry.NewID("otu")
		tb.ids = append(tb.ids, id)
		tb.labels = append(tb.labels, label)
		tb.byLabel[label] = id
		q.Push(&event.LabeledID{Content: event.ContentOTU, ID: id, Label: label}, event.NewEnd(event.ContentOTU))
	}
	return nil
}

func (src *source) taxaCommand(q *event.Queue, name string, st command.Statement) error {
	switch name {
	case "TITLE":
		src.title(q, st)
		return nil
	case "DIMENSIONS":
		return src.dimensions(st)
	case "TAXLABELS":
		src.openTaxa(q)
		return src.taxLabels(q, src.blk.taxa, st.Text)
	}
	src.openTaxa(q)
	q.Push(&event.UnknownCommand{Command: name, Text: st.Text})
	return nil
}

func (src *source) openMatrix(q *event.Queue) {
	b := &src.blk
	if b.open {
		return
	}
	b.matrix = &matrixBlock{
		id:         src.ctx.Registry.NewID("matrix"),
		title:      b.title,
		charLabels: make(map[string]int64),
		groupSeen:  make(map[string]bool),
	}
	src.matrices = append(src.matrices, b.matrix)
	link := ""
	if b.link != nil {
		link = b.link.id
	}
	q.Push(&event.LinkedLabeledID{Content: event.ContentAlignment, ID: b.matrix.id, Label: b.title, LinkedID: link})
	b.open = true
}

func (src *source) charactersCommand(q *event.Queue, name string, st command.Statement) error {
	b := &src.blk
	switch name {
	case "TITLE":
		src.title(q, st)
		return nil
	case "LINK":
		return src.link(st)
	case "DIMENSIONS":
		return src.dimensions(st)
	case "TAXLABELS":
		// A block with its own taxa, as in DIMENSIONS NEWTAXA.
		if b.open {
			return &errors.ParseError{Message: "TAXLABELS must precede FORMAT and MATRIX"}
		}
		tb := src.newTaxa(q, b.title)
		err := src.taxLabels(q, tb, st.Text)
		q.Push(event.NewEnd(event.ContentOTUList))
		b.link, b.linked = tb, true
		return err
	case "FORMAT":
		src.openMatrix(q)
		return src.formatCommand(q, st)
	case "CHARLABELS":
		src.openMatrix(q)
		words, err := splitWords(st.Text, "")
		if err != nil {
			return err
		}
		for i, w := range words {
			b.matrix.charLabels[strings.ToUpper(w.name())] = int64(i)
			q.Push(
				&event.CharacterDefinition{ID: src.ctx.Registry.NewID("char"), Label: w.name(), Index: int64(i)},
				event.NewEnd(event.ContentCharacterDefinition),
			)
		}
		return nil
	}
	src.openMatrix(q)
	q.Push(&event.UnknownCommand{Command: name, Text: st.Text})
	return nil
}

var dataTypes = map[string]event.CharacterStateSetType{
	"DNA":         event.SetTypeDNA,
	"NUCLEOTIDE":  event.SetTypeDNA,
	"RNA":         event.SetTypeRNA,
	"PROTEIN":     event.SetTypeAminoAcid,
	"STANDARD":    event.SetTypeDiscrete,
	"RESTRICTION": event.SetTypeDiscrete,
	"CONTINUOUS":  event.SetTypeContinuous,
}

func (src *source) formatCommand(q *event.Queue, st command.Statement) error {
	opts, err := command.ParseOptions("FORMAT", st.Text)
	if err != nil {
		return err
	}
	if opts.Has("TRANSPOSE") {
		return errors.NewUnsupported("Nexus FORMAT TRANSPOSE", "transposed matrices are not supported")
	}
	if opts.Has("NOLABELS") {
		return errors.NewUnsupported("Nexus FORMAT NOLABELS", "matrix rows must be labeled")
	}

	f := matrixFormat{setType: event.SetTypeDiscrete}
	if dt, ok := opts.Get("DATATYPE"); ok {
		t, known := dataTypes[strings.ToUpper(dt)]
		if !known {
			return errors.NewUnsupported("Nexus data type "+dt, "mixed and unknown data types are not modeled")
		}
		f.setType = t
	}
	f.gap, _ = opts.Get("GAP")
	f.missing, _ = opts.Get("MISSING")
	f.match, _ = opts.Get("MATCHCHAR")
	f.interleave = flag(opts, "INTERLEAVE")
	f.tokens = flag(opts, "TOKENS") || f.setType == event.SetTypeContinuous
	if opts.Has("NOTOKENS") {
		f.tokens = false
	}
	src.blk.format = f

	var symbols []string
	if text, ok := opts.Get("SYMBOLS"); ok {
		if f.tokens {
			symbols = strings.Fields(text)
		} else {
			for _, r := range text {
				if r != ' ' && r != '\t' {
					symbols = append(symbols, string(r))
				}
			}
		}
	}

	q.Push(&event.TokenSetDefinition{ID: src.ctx.Registry.NewID("tokens"), SetType: f.setType})
	define := func(tok string, meaning event.TokenMeaning) {
		if tok == "" {
			return
		}
		q.Push(
			&event.SingleTokenDefinition{
				ID:         src.ctx.Registry.NewID("token"),
				TokenName:  tok,
				Meaning:    meaning,
				SymbolType: event.SymbolAtomic,
			},
			event.NewEnd(event.ContentSingleTokenDefinition),
		)
	}
	for _, sym := range symbols {
		define(sym, event.MeaningCharacterState)
	}
	define(f.gap, event.MeaningGap)
	define(f.missing, event.MeaningMissing)
	define(f.match, event.MeaningMatch)
	q.Push(event.NewEnd(event.ContentTokenSetDefinition))
	return nil
}

// flag reports a FORMAT option given bare or with a yes value.
func flag(opts *command.Options, key string) bool {
	v, ok := opts.Get(key)
	if !ok {
		return false
	}
	switch strings.ToUpper(v) {
	case "", "YES", "TRUE":
		return true
	}
	return false
}

func (src *source) openTrees(q *event.Queue) {
	b := &src.blk
	if b.open {
		return
	}
	b.trees = &treesBlock{id: src.ctx.Registry.NewID("trees"), title: b.title, byLabel: make(map[string]string)}
	src.groups = append(src.groups, b.trees)
	link := ""
	if b.link != nil {
		link = b.link.id
	}
	q.Push(&event.LinkedLabeledID{Content: event.ContentTreeNetworkGroup, ID: b.trees.id, Label: b.title, LinkedID: link})
	b.open = true
}

func (src *source) treesCommand(q *event.Queue, name string, st command.Statement) error {
	switch name {
	case "TITLE":
		src.title(q, st)
		return nil
	case "LINK":
		return src.link(st)
	case "TRANSLATE":
		return src.translateCommand(st)
	}
	src.openTrees(q)
	q.Push(&event.UnknownCommand{Command: name, Text: st.Text})
	return nil
}

// translateCommand reads "key label, key label, ...".
func (src *source) translateCommand(st command.Statement) error {
	words, err := splitWords(st.Text, ",")
	if err != nil {
		return err
	}
	table := make(map[string]string)
	for i := 0; i < len(words); {
		if words[i].is(",") {
			i++
			continue
		}
		if i+1 >= len(words) || words[i+1].is(",") {
			return &errors.ParseError{Message: fmt.Sprintf("TRANSLATE entry %q has no label", words[i].text)}
		}
		table[words[i].name()] = words[i+1].name()
		i += 2
	}
	src.blk.translate = table
	return nil
}

func (src *source) startTree(q *event.Queue, pos command.Position, unrooted bool) error {
	src.openTrees(q)
	s := src.s
	if err := s.SkipWhitespace(); err != nil {
		return err
	}
	name, quoted, err := s.ReadWord("=;")
	if err != nil {
		return err
	}
	if name == "*" && !quoted {
		if err := s.SkipWhitespace(); err != nil {
			return err
		}
		if name, quoted, err = s.ReadWord("=;"); err != nil {
			return err
		}
	}
	if err := s.SkipWhitespace(); err != nil {
		return err
	}
	if ch, err := s.Peek(); err != nil || ch != '=' {
		return s.ErrorAt(pos, "expected '=' after the tree name")
	}
	s.Read()

	label := word{text: name, quoted: quoted}.name()
	id := src.ctx.Registry.NewID("tree")
	t := src.blk.trees
	t.ids = append(t.ids, id)
	t.byLabel[strings.ToUpper(label)] = id
	q.Push(&event.LinkedLabeledID{Content: event.ContentTree, ID: id, Label: label})
	src.tp.Reset()
	if unrooted {
		src.tp.Rooted(q, false)
	}
	src.state = stateTree
	return nil
}

// resolveNode links tree nodes to the taxa of the block, through the
// translation table if there is one. Internal labels that name no taxon
// stay unlinked, as do unknown leaves unless the block was explicitly
// linked or the label came from the translation table.
func (src *source) resolveNode(label string, leaf bool) (string, string, error) {
	b := &src.blk
	name := label
	t, translated := b.translate[label]
	if translated {
		name = t
	}
	if b.link == nil {
		return "", name, nil
	}
	if !leaf {
		return b.link.byLabel[name], name, nil
	}
	if otu, taxon, ok := b.link.lookup(name); ok {
		return otu, taxon, nil
	}
	if b.linked || translated {
		return "", "", &errors.ReferenceError{Kind: "taxon", Name: name}
	}
	return "", name, nil
}

// Matrix rows.

func (src *source) startMatrix(q *event.Queue) error {
	src.openMatrix(q)
	b := &src.blk
	b.tokens = base.NewTokens(src.ctx.Params, b.format.match)
	b.seqIDs = make(map[string]string)
	b.seqLabels = make(map[string]string)
	b.cols = make(map[string]int64)
	b.seqOrder = nil
	src.state = stateMatrix
	return nil
}

// lineRows reports whether a row ends at the end of its line. Otherwise it
// ends after NCHAR cells.
func (b *blockState) lineRows() bool {
	return b.format.interleave || b.nchar == 0
}

func (src *source) betweenRows(q *event.Queue) error {
	s := src.s
	b := &src.blk
	if err := s.SkipWhitespace(); err != nil {
		return err
	}
	ch, err := s.Peek()
	if err != nil {
		return s.Errorf("unexpected end of input inside MATRIX (missing ';')")
	}
	switch ch {
	case '[':
		text, err := s.ReadComment()
		if err != nil {
			return err
		}
		q.Push(&event.Comment{Text: text})
		return nil
	case ';':
		s.Read()
		src.state = stateBlock
		return src.finishMatrix()
	}

	pos := s.Pos()
	name, quoted, err := s.ReadWord(";")
	if err != nil {
		return err
	}
	label := word{text: name, quoted: quoted}.name()
	id, seen := b.seqIDs[label]
	if !seen {
		id = src.ctx.Registry.NewID("seq")
		b.seqIDs[label] = id
		b.seqLabels[id] = label
		b.seqOrder = append(b.seqOrder, id)
	}
	otu := ""
	if b.link != nil {
		var ok bool
		if otu, _, ok = b.link.lookup(label); !ok {
			return &errors.ReferenceError{Kind: "taxon", Name: label, Offset: pos.Offset, Line: pos.Line, Column: pos.Column}
		}
	}
	q.Push(&event.LinkedLabeledID{Content: event.ContentSequence, ID: id, Label: label, LinkedID: otu})
	b.rowID = id
	src.state = stateRow
	return nil
}

func (src *source) finishMatrix() error {
	b := &src.blk
	var longest int64
	for _, id := range b.seqOrder {
		n := b.cols[id]
		if b.nchar > 0 && n != b.nchar {
			return src.s.Errorf("row %q has %d characters but NCHAR is %d", b.seqLabels[id], n, b.nchar)
		}
		longest = max(longest, n)
	}
	if b.ntax > 0 && int64(len(b.seqOrder)) != b.ntax {
		return src.s.Errorf("MATRIX has %d rows but NTAX is %d", len(b.seqOrder), b.ntax)
	}
	b.matrix.columns = max(b.nchar, longest)
	return nil
}

func (src *source) flush(q *event.Queue) {
	b := &src.blk
	if len(b.buf) == 0 {
		return
	}
	n := int64(len(b.buf))
	b.tokens.Emit(q, b.rowID, b.cols[b.rowID], b.buf)
	b.cols[b.rowID] += n
	b.buf = b.buf[:0]
}

func (src *source) endRow(q *event.Queue) {
	src.flush(q)
	q.Push(event.NewEnd(event.ContentSequence))
	src.state = stateMatrix
}

// row reads cells of the open row until the event cap is reached or the
// row ends.
func (src *source) row(q *event.Queue) error {
	s := src.s
	b := &src.blk
	for {
		if !b.lineRows() && b.cols[b.rowID]+int64(len(b.buf)) >= b.nchar {
			src.endRow(q)
			return nil
		}
		if err := s.SkipSpaces(); err != nil {
			return err
		}
		ch, err := s.Peek()
		if err != nil {
			return s.Errorf("unexpected end of input inside MATRIX (missing ';')")
		}
		switch ch {
		case ';':
			src.endRow(q)
			return nil
		case '\n', '\r':
			s.Read()
			if b.lineRows() {
				src.endRow(q)
				return nil
			}
			continue
		case '[':
			src.flush(q)
			text, err := s.ReadComment()
			if err != nil {
				return err
			}
			q.Push(&event.Comment{Text: text})
			return nil
		}

		cell, err := src.readCell()
		if err != nil {
			return err
		}
		b.buf = append(b.buf, cell)
		if len(b.buf) >= b.tokens.Max() {
			src.flush(q)
			return nil
		}
	}
}

// readCell reads one matrix cell: a word in TOKENS mode, else one
// character. A (...) or {...} group is one cell.
func (src *source) readCell() (string, error) {
	s := src.s
	ch, _ := s.Peek()
	if ch == '(' || ch == '{' {
		return src.readGroup()
	}
	if src.blk.format.tokens {
		w, _, err := s.ReadWord(";({")
		return w, err
	}
	s.Read()
	return string(ch), nil
}

// readGroup reads a polymorphic (...) or uncertain {...} cell. Nucleotide
// groups become the IUPAC code of their members. Other groups keep their
// written form as token and are declared as state sets when the block
// ends.
func (src *source) readGroup() (string, error) {
	s := src.s
	pos := s.Pos()
	open, _ := s.Read()
	closing := ')'
	if open == '{' {
		closing = '}'
	}
	var members []string
	for {
		if err := s.SkipWhitespace(); err != nil {
			return "", err
		}
		ch, err := s.Peek()
		if err != nil || ch == ';' {
			return "", s.ErrorAt(pos, "unterminated %c group in MATRIX", open)
		}
		if ch == closing {
			s.Read()
			break
		}
		if ch == ',' {
			s.Read()
			continue
		}
		if src.blk.format.tokens {
			w, _, err := s.ReadWord(",)}")
			if err != nil {
				return "", err
			}
			if w == "" {
				s.Read()
				continue
			}
			members = append(members, w)
			continue
		}
		s.Read()
		members = append(members, string(ch))
	}
	switch src.blk.format.setType {
	case event.SetTypeDNA, event.SetTypeRNA:
		if code, ok := iupacCode(members); ok {
			return code, nil
		}
	}
	sep := ""
	if src.blk.format.tokens {
		sep = " "
	}
	tok := string(open) + strings.Join(members, sep) + string(closing)
	if m := src.blk.matrix; m != nil && !m.groupSeen[tok] {
		m.groupSeen[tok] = true
		m.groups = append(m.groups, groupCell{token: tok, members: members, uncertain: open == '{'})
	}
	return tok, nil
}

// defineGroups pushes a token set declaring every group cell of the matrix
// as a polymorphic or uncertain state set of its members.
func (src *source) defineGroups(q *event.Queue) {
	m := src.blk.matrix
	if m == nil || len(m.groups) == 0 || src.blk.format.setType == event.SetTypeContinuous {
		return
	}
	q.Push(&event.TokenSetDefinition{ID: src.ctx.Registry.NewID("tokens"), SetType: src.blk.format.setType})
	for _, g := range m.groups {
		symbolType := event.SymbolPolymorphic
		if g.uncertain {
			symbolType = event.SymbolUncertain
		}
		q.Push(
			&event.SingleTokenDefinition{
				ID:           src.ctx.Registry.NewID("token"),
				TokenName:    g.token,
				Meaning:      event.MeaningCharacterState,
				SymbolType:   symbolType,
				Constituents: g.members,
			},
			event.NewEnd(event.ContentSingleTokenDefinition),
		)
	}
	q.Push(event.NewEnd(event.ContentTokenSetDefinition))
}
