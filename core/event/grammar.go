package event

import (
	"fmt"
	"strings"
)

// contentSet is a small set of content types.
type contentSet map[ContentType]bool

func set(types ...ContentType) contentSet {
	s := make(contentSet, len(types))
	for _, t := range types {
		s[t] = true
	}
	return s
}

func (s contentSet) with(types ...ContentType) contentSet {
	out := make(contentSet, len(s)+len(types))
	for t := range s {
		out[t] = true
	}
	for _, t := range types {
		out[t] = true
	}
	return out
}

var metaOrComment = set(ContentMetaLiteral, ContentMetaResource, ContentComment)

// nesting lists, for every parent content type, the content types allowed
// directly inside it. ContentUnknown is the stream root.
var nesting = map[ContentType]contentSet{
	ContentUnknown: set(ContentDocument),
	// Sets at document level name their parent in LinkedID. Block formats
	// declare them after the parent has been closed.
	ContentDocument: metaOrComment.with(ContentOTUList, ContentAlignment,
		ContentTreeNetworkGroup, ContentUnknownCommand,
		ContentOTUSet, ContentCharacterSet, ContentTreeNetworkSet),
	ContentOTUList: metaOrComment.with(ContentOTU, ContentOTUSet, ContentUnknownCommand),
	ContentOTU:     metaOrComment,
	ContentAlignment: metaOrComment.with(ContentCharacterDefinition, ContentTokenSetDefinition,
		ContentSequence, ContentSequenceSet, ContentCharacterSet, ContentUnknownCommand),
	ContentSequence:              metaOrComment.with(ContentSequenceTokens),
	ContentCharacterDefinition:   metaOrComment,
	ContentTokenSetDefinition:    metaOrComment.with(ContentSingleTokenDefinition, ContentCharacterSetInterval),
	ContentSingleTokenDefinition: metaOrComment,
	ContentCharacterSet:          metaOrComment.with(ContentCharacterSetInterval, ContentSetElement),
	ContentOTUSet:                metaOrComment.with(ContentSetElement),
	ContentSequenceSet:           metaOrComment.with(ContentSetElement),
	ContentTreeNetworkGroup:      metaOrComment.with(ContentTree, ContentNetwork, ContentTreeNetworkSet, ContentUnknownCommand),
	ContentTreeNetworkSet:        metaOrComment.with(ContentSetElement),
	ContentTree:                  metaOrComment.with(ContentNode, ContentEdge, ContentRootEdge, ContentNodeEdgeSet),
	ContentNetwork:               metaOrComment.with(ContentNode, ContentEdge, ContentRootEdge, ContentNodeEdgeSet),
	ContentNodeEdgeSet:           metaOrComment.with(ContentSetElement),
	ContentNode:                  metaOrComment,
	ContentEdge:                  metaOrComment,
	ContentRootEdge:              metaOrComment,
	ContentMetaLiteral:           set(ContentMetaLiteralContent, ContentComment),
	ContentMetaResource:          metaOrComment,
}

// Allowed reports whether child may appear directly inside parent. Pass
// ContentUnknown as parent for the stream root.
func Allowed(parent, child ContentType) bool {
	return nesting[parent][child]
}

// GrammarViolation describes an event stream that does not follow the
// nesting table. It indicates a bug in a reader or writer, not bad input.
type GrammarViolation struct {
	Index   int // position of the offending event in the stream
	Event   string
	Path    []ContentType
	Message string
}

func (v *GrammarViolation) Error() string {
	names := make([]string, len(v.Path))
	for i, c := range v.Path {
		names[i] = c.String()
	}
	path := strings.Join(names, "/")
	if path == "" {
		path = "<root>"
	}
	if v.Event == "" {
		return fmt.Sprintf("event grammar violation at %d (in %s): %s", v.Index, path, v.Message)
	}
	return fmt.Sprintf("event grammar violation at %d (in %s): %s: %s", v.Index, path, v.Event, v.Message)
}

// Validator checks an event stream one event at a time.
type Validator struct {
	stack  []ContentType
	base   int
	count  int
	done   bool
	closed bool
}

// NewValidator returns a validator for a complete document stream.
func NewValidator() *Validator {
	return &Validator{}
}

// NewFragmentValidator returns a validator for the content written inside an
// element of type parent, such as the events an adapter writes into a
// receiver. The fragment must be balanced.
func NewFragmentValidator(parent ContentType) *Validator {
	return &Validator{stack: []ContentType{parent}, base: 1}
}

func (v *Validator) parent() ContentType {
	if len(v.stack) == 0 {
		return ContentUnknown
	}
	return v.stack[len(v.stack)-1]
}

func parentName(c ContentType) string {
	if c == ContentUnknown {
		return "<root>"
	}
	return c.String()
}

func (v *Validator) violation(e Event, format string, args ...any) *GrammarViolation {
	gv := &GrammarViolation{
		Index:   v.count,
		Path:    append([]ContentType(nil), v.stack...),
		Message: fmt.Sprintf(format, args...),
	}
	if e != nil {
		gv.Event = Describe(e)
	}
	return gv
}

// Accept validates the next event.
func (v *Validator) Accept(e Event) error {
	defer func() { v.count++ }()
	if e == nil {
		return v.violation(nil, "nil event")
	}
	if v.closed {
		return v.violation(e, "event after end of document")
	}
	t := e.Type()
	switch t.Topology {
	case Start:
		if t.Content.IsSole() {
			return v.violation(e, "%s is a sole content type", t.Content)
		}
		if !Allowed(v.parent(), t.Content) {
			return v.violation(e, "%s not allowed inside %s", t.Content, parentName(v.parent()))
		}
		v.stack = append(v.stack, t.Content)
	case End:
		if len(v.stack) <= v.base {
			return v.violation(e, "END without matching START")
		}
		if top := v.parent(); top != t.Content {
			return v.violation(e, "END of %s while %s is open", t.Content, top)
		}
		v.stack = v.stack[:len(v.stack)-1]
		if len(v.stack) == 0 && v.base == 0 {
			v.closed = true
		}
	case Sole:
		if !t.Content.IsSole() {
			return v.violation(e, "%s must be a START/END pair", t.Content)
		}
		if !Allowed(v.parent(), t.Content) {
			return v.violation(e, "%s not allowed inside %s", t.Content, parentName(v.parent()))
		}
	default:
		return v.violation(e, "invalid topology %d", int(t.Topology))
	}
	return nil
}

// Close reports whether the stream ended in a balanced state.
func (v *Validator) Close() error {
	if v.done {
		return nil
	}
	v.done = true
	if len(v.stack) > v.base {
		return v.violation(nil, "unterminated %s", v.parent())
	}
	if v.base == 0 && !v.closed {
		return v.violation(nil, "empty stream")
	}
	return nil
}

// Depth returns the number of currently open elements.
func (v *Validator) Depth() int {
	return len(v.stack) - v.base
}

// Validate checks a complete document stream.
func Validate(events []Event) error {
	v := NewValidator()
	for _, e := range events {
		if err := v.Accept(e); err != nil {
			return err
		}
	}
	return v.Close()
}

// MustValidate panics if events is not a valid document stream.
func MustValidate(events []Event) {
	if err := Validate(events); err != nil {
		panic(err)
	}
}
