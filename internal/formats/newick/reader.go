package newick

import (
	"io"
	"strings"

	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/core/format"
	"github.com/FocuswithJustin/phyloconv/internal/formats/command"
)

// source reads a file of ';'-terminated trees into one tree group.
type source struct {
	ctx    *format.Context
	s      *command.Scanner
	tp     *TreeParser
	group  bool // TREE_NETWORK_GROUP is open
	inTree bool
	rooted *bool
}

// NewReader returns an event reader over a Newick file.
func NewReader(r io.Reader, ctx *format.Context) event.Reader {
	s := command.NewScanner(r, "newick", command.LimitsFrom(ctx.Params))
	s.Truncated = func(what string, pos command.Position) {
		ctx.Diagnostics.Add(format.DiagTruncated, "", "%s at line %d truncated", what, pos.Line)
	}
	return event.NewPullReader(&source{ctx: ctx, s: s, tp: NewTreeParser(ctx, s, nil)})
}

func (src *source) openGroup(q *event.Queue) {
	if !src.group {
		q.Push(&event.LinkedLabeledID{Content: event.ContentTreeNetworkGroup, ID: src.ctx.Registry.NewID("trees")})
		src.group = true
	}
}

func (src *source) Advance(q *event.Queue) error {
	if src.inTree {
		done, err := src.tp.Step(q)
		if err != nil {
			return err
		}
		if done {
			q.Push(event.NewEnd(event.ContentTree))
			src.inTree = false
		}
		return nil
	}

	if err := src.s.SkipWhitespace(); err != nil {
		return err
	}
	ch, err := src.s.Peek()
	if err == io.EOF {
		if src.group {
			q.Push(event.NewEnd(event.ContentTreeNetworkGroup))
		}
		return io.EOF
	}
	if err != nil {
		return err
	}

	// Comments between trees belong to the group, except a rooting comment,
	// which applies to the next tree.
	if ch == '[' {
		text, err := src.s.ReadComment()
		if err != nil {
			return err
		}
		switch strings.ToUpper(strings.TrimSpace(text)) {
		case "&R", "&U":
			rooted := strings.EqualFold(strings.TrimSpace(text), "&R")
			src.rooted = &rooted
			return nil
		}
		src.openGroup(q)
		q.Push(&event.Comment{Text: text})
		return nil
	}

	src.openGroup(q)
	q.Push(&event.LinkedLabeledID{Content: event.ContentTree, ID: src.ctx.Registry.NewID("tree")})
	src.tp.Reset()
	if src.rooted != nil {
		src.tp.Rooted(q, *src.rooted)
		src.rooted = nil
	}
	src.inTree = true
	return nil
}
