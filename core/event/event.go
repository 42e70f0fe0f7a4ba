package event

import (
	"fmt"
	"strconv"
	"strings"
)

// Event is one typed notification of the canonical stream. The concrete type
// determines the payload; Type reports content type and topology.
type Event interface {
	Type() Type
}

// DocumentStart opens a document. Every stream starts with exactly one.
type DocumentStart struct{}

func (e *DocumentStart) Type() Type { return Type{ContentDocument, Start} }

// PartEnd closes the most recently opened element of the same content type.
type PartEnd struct {
	Content ContentType `json:"content"`
}

func (e *PartEnd) Type() Type { return Type{e.Content, End} }

// NewEnd returns the END event for content type c.
func NewEnd(c ContentType) *PartEnd {
	return &PartEnd{Content: c}
}

// LabeledID starts an identified element without outgoing link: an OTU
// list or an OTU.
type LabeledID struct {
	Content ContentType `json:"content"`
	ID      string      `json:"id"`
	Label   string      `json:"label,omitempty"`
}

func (e *LabeledID) Type() Type { return Type{e.Content, Start} }

// LinkedLabeledID starts an identified element that references another
// element: an alignment or tree group its OTU list, a sequence its OTU, a set
// the element it belongs to.
type LinkedLabeledID struct {
	Content  ContentType `json:"content"`
	ID       string      `json:"id"`
	Label    string      `json:"label,omitempty"`
	LinkedID string      `json:"linked_id,omitempty"`
}

func (e *LinkedLabeledID) Type() Type { return Type{e.Content, Start} }

// Node starts a tree or network node.
type Node struct {
	ID       string `json:"id"`
	Label    string `json:"label,omitempty"`
	LinkedID string `json:"linked_id,omitempty"` // OTU
	Root     bool   `json:"root,omitempty"`
}

func (e *Node) Type() Type { return Type{ContentNode, Start} }

// Edge starts a tree or network edge. Root edges have no source.
type Edge struct {
	Root     bool     `json:"root,omitempty"`
	ID       string   `json:"id"`
	Label    string   `json:"label,omitempty"`
	SourceID string   `json:"source_id,omitempty"`
	TargetID string   `json:"target_id"`
	Length   *float64 `json:"length,omitempty"`
}

func (e *Edge) Type() Type {
	if e.Root {
		return Type{ContentRootEdge, Start}
	}
	return Type{ContentEdge, Start}
}

// SequenceTokens carries a run of tokens of the enclosing sequence. Long
// sequences are split over several events.
type SequenceTokens struct {
	Tokens []string `json:"tokens"`
}

func (e *SequenceTokens) Type() Type { return Type{ContentSequenceTokens, Sole} }

// CharacterSetInterval is the half-open column interval [Start, End).
type CharacterSetInterval struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func (e *CharacterSetInterval) Type() Type { return Type{ContentCharacterSetInterval, Sole} }

// CharacterDefinition starts the definition of one alignment column.
type CharacterDefinition struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Index int64  `json:"index"`
}

func (e *CharacterDefinition) Type() Type { return Type{ContentCharacterDefinition, Start} }

// TokenSetDefinition starts an alphabet definition. Nested intervals restrict
// it to columns; without intervals it applies to the whole alignment.
type TokenSetDefinition struct {
	ID             string                `json:"id"`
	Label          string                `json:"label,omitempty"`
	SetType        CharacterStateSetType `json:"set_type"`
	CharacterSetID string                `json:"character_set_id,omitempty"`
}

func (e *TokenSetDefinition) Type() Type { return Type{ContentTokenSetDefinition, Start} }

// SingleTokenDefinition starts the definition of one token of a token set.
type SingleTokenDefinition struct {
	ID           string       `json:"id"`
	Label        string       `json:"label,omitempty"`
	TokenName    string       `json:"token_name"`
	Meaning      TokenMeaning `json:"meaning"`
	SymbolType   SymbolType   `json:"symbol_type"`
	Constituents []string     `json:"constituents,omitempty"`
}

func (e *SingleTokenDefinition) Type() Type { return Type{ContentSingleTokenDefinition, Start} }

// LiteralMeta starts a literal metadata triple about the enclosing element.
// Its value follows in LiteralMetaContent events.
type LiteralMeta struct {
	ID        string `json:"id"`
	Label     string `json:"label,omitempty"`
	Predicate string `json:"predicate"`
	Datatype  string `json:"datatype,omitempty"`
}

func (e *LiteralMeta) Type() Type { return Type{ContentMetaLiteral, Start} }

// LiteralMetaContent carries the value of a literal metadata element.
// Continued is set when more content events for the same value follow.
type LiteralMetaContent struct {
	Value     string `json:"value"`
	Continued bool   `json:"continued,omitempty"`
}

func (e *LiteralMetaContent) Type() Type { return Type{ContentMetaLiteralContent, Sole} }

// ResourceMeta starts a resource metadata element, which may nest further
// metadata.
type ResourceMeta struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Rel   string `json:"rel"`
	HRef  string `json:"href,omitempty"`
}

func (e *ResourceMeta) Type() Type { return Type{ContentMetaResource, Start} }

// Comment carries comment text. Continued is set when the comment was split
// and the next event carries more of it.
type Comment struct {
	Text      string `json:"text"`
	Continued bool   `json:"continued,omitempty"`
}

func (e *Comment) Type() Type { return Type{ContentComment, Sole} }

// SetElement names one member of the enclosing set. ElementType tells which
// kind of element ElementID refers to; a member of the same type as the set
// is a nested set reference.
type SetElement struct {
	ElementID   string      `json:"element_id"`
	ElementType ContentType `json:"element_type"`
}

func (e *SetElement) Type() Type { return Type{ContentSetElement, Sole} }

// UnknownCommand carries a command or block the reader does not model.
type UnknownCommand struct {
	Command string `json:"command"`
	Text    string `json:"text,omitempty"`
}

func (e *UnknownCommand) Type() Type { return Type{ContentUnknownCommand, Sole} }

// Describe returns a short human-readable representation of e, used in error
// messages and event dumps.
func Describe(e Event) string {
	var sb strings.Builder
	sb.WriteString(e.Type().String())
	field := func(k, v string) {
		if v != "" {
			sb.WriteString(" ")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(strconv.Quote(v))
		}
	}
	switch v := e.(type) {
	case *LabeledID:
		field("id", v.ID)
		field("label", v.Label)
	case *LinkedLabeledID:
		field("id", v.ID)
		field("label", v.Label)
		field("link", v.LinkedID)
	case *Node:
		field("id", v.ID)
		field("label", v.Label)
		field("link", v.LinkedID)
		if v.Root {
			sb.WriteString(" root")
		}
	case *Edge:
		field("id", v.ID)
		field("source", v.SourceID)
		field("target", v.TargetID)
		if v.Length != nil {
			field("length", strconv.FormatFloat(*v.Length, 'g', -1, 64))
		}
	case *SequenceTokens:
		fmt.Fprintf(&sb, " %d tokens", len(v.Tokens))
	case *CharacterSetInterval:
		fmt.Fprintf(&sb, " [%d,%d)", v.Start, v.End)
	case *CharacterDefinition:
		field("id", v.ID)
		fmt.Fprintf(&sb, " index=%d", v.Index)
	case *TokenSetDefinition:
		field("id", v.ID)
		field("type", v.SetType.String())
	case *SingleTokenDefinition:
		field("id", v.ID)
		field("token", v.TokenName)
	case *LiteralMeta:
		field("predicate", v.Predicate)
	case *LiteralMetaContent:
		field("value", v.Value)
	case *ResourceMeta:
		field("rel", v.Rel)
		field("href", v.HRef)
	case *Comment:
		field("text", v.Text)
	case *SetElement:
		field("element", v.ElementID)
		field("type", v.ElementType.String())
	case *UnknownCommand:
		field("command", v.Command)
	}
	return sb.String()
}

// ID returns the id of an identified element event, or "" for events that do
// not carry one.
func ID(e Event) string {
	switch v := e.(type) {
	case *LabeledID:
		return v.ID
	case *LinkedLabeledID:
		return v.ID
	case *Node:
		return v.ID
	case *Edge:
		return v.ID
	case *CharacterDefinition:
		return v.ID
	case *TokenSetDefinition:
		return v.ID
	case *SingleTokenDefinition:
		return v.ID
	case *LiteralMeta:
		return v.ID
	case *ResourceMeta:
		return v.ID
	}
	return ""
}
