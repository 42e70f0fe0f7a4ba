package event

import "fmt"

// ContentType classifies an event.
type ContentType int

// Content type constants.
const (
	ContentUnknown ContentType = iota
	ContentDocument
	ContentMetaLiteral
	ContentMetaLiteralContent
	ContentMetaResource
	ContentComment
	ContentUnknownCommand
	ContentOTUList
	ContentOTU
	ContentOTUSet
	ContentAlignment
	ContentSequence
	ContentSequenceTokens
	ContentCharacterDefinition
	ContentTokenSetDefinition
	ContentSingleTokenDefinition
	ContentCharacterSet
	ContentCharacterSetInterval
	ContentSequenceSet
	ContentTreeNetworkGroup
	ContentTree
	ContentNetwork
	ContentNode
	ContentEdge
	ContentRootEdge
	ContentNodeEdgeSet
	ContentTreeNetworkSet
	ContentSetElement
)

var contentTypeNames = map[ContentType]string{
	ContentDocument:              "DOCUMENT",
	ContentMetaLiteral:           "META_LITERAL",
	ContentMetaLiteralContent:    "META_LITERAL_CONTENT",
	ContentMetaResource:          "META_RESOURCE",
	ContentComment:               "COMMENT",
	ContentUnknownCommand:        "UNKNOWN_COMMAND",
	ContentOTUList:               "OTU_LIST",
	ContentOTU:                   "OTU",
	ContentOTUSet:                "OTU_SET",
	ContentAlignment:             "ALIGNMENT",
	ContentSequence:              "SEQUENCE",
	ContentSequenceTokens:        "SEQUENCE_TOKENS",
	ContentCharacterDefinition:   "CHARACTER_DEFINITION",
	ContentTokenSetDefinition:    "TOKEN_SET_DEFINITION",
	ContentSingleTokenDefinition: "SINGLE_TOKEN_DEFINITION",
	ContentCharacterSet:          "CHARACTER_SET",
	ContentCharacterSetInterval:  "CHARACTER_SET_INTERVAL",
	ContentSequenceSet:           "SEQUENCE_SET",
	ContentTreeNetworkGroup:      "TREE_NETWORK_GROUP",
	ContentTree:                  "TREE",
	ContentNetwork:               "NETWORK",
	ContentNode:                  "NODE",
	ContentEdge:                  "EDGE",
	ContentRootEdge:              "ROOT_EDGE",
	ContentNodeEdgeSet:           "NODE_EDGE_SET",
	ContentTreeNetworkSet:        "TREE_NETWORK_SET",
	ContentSetElement:            "SET_ELEMENT",
}

var contentTypesByName = func() map[string]ContentType {
	m := make(map[string]ContentType, len(contentTypeNames))
	for c, name := range contentTypeNames {
		m[name] = c
	}
	return m
}()

// soleContentTypes never have nested content.
var soleContentTypes = map[ContentType]bool{
	ContentSequenceTokens:       true,
	ContentCharacterSetInterval: true,
	ContentSetElement:           true,
	ContentComment:              true,
	ContentMetaLiteralContent:   true,
	ContentUnknownCommand:       true,
}

func (c ContentType) String() string {
	if name, ok := contentTypeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ContentType(%d)", int(c))
}

// IsSole returns true if events of this type are always SOLE events.
func (c ContentType) IsSole() bool {
	return soleContentTypes[c]
}

// IsSet returns true for content types that define a set of element ids.
func (c ContentType) IsSet() bool {
	switch c {
	case ContentOTUSet, ContentCharacterSet, ContentSequenceSet, ContentNodeEdgeSet, ContentTreeNetworkSet, ContentTokenSetDefinition:
		return true
	}
	return false
}

// IsMeta returns true for literal and resource metadata.
func (c ContentType) IsMeta() bool {
	return c == ContentMetaLiteral || c == ContentMetaResource
}

// MarshalText implements encoding.TextMarshaler.
func (c ContentType) MarshalText() ([]byte, error) {
	name, ok := contentTypeNames[c]
	if !ok {
		return nil, fmt.Errorf("invalid content type %d", int(c))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ContentType) UnmarshalText(text []byte) error {
	v, ok := contentTypesByName[string(text)]
	if !ok {
		return fmt.Errorf("unknown content type %q", text)
	}
	*c = v
	return nil
}

// ParseContentType returns the content type with the given name.
func ParseContentType(name string) (ContentType, bool) {
	c, ok := contentTypesByName[name]
	return c, ok
}

// Topology tells whether an event opens, closes or is a leaf.
type Topology int

// Topology constants.
const (
	Start Topology = iota + 1
	End
	Sole
)

func (t Topology) String() string {
	switch t {
	case Start:
		return "START"
	case End:
		return "END"
	case Sole:
		return "SOLE"
	}
	return fmt.Sprintf("Topology(%d)", int(t))
}

// Type is the pair of content type and topology of an event.
type Type struct {
	Content  ContentType
	Topology Topology
}

func (t Type) String() string {
	return t.Content.String() + "/" + t.Topology.String()
}

// CharacterStateSetType is the kind of alphabet a token set defines.
type CharacterStateSetType int

// Character state set types.
const (
	SetTypeUnknown CharacterStateSetType = iota
	SetTypeDiscrete
	SetTypeDNA
	SetTypeRNA
	SetTypeAminoAcid
	SetTypeContinuous
)

var setTypeNames = map[CharacterStateSetType]string{
	SetTypeUnknown:    "UNKNOWN",
	SetTypeDiscrete:   "DISCRETE",
	SetTypeDNA:        "DNA",
	SetTypeRNA:        "RNA",
	SetTypeAminoAcid:  "AMINO_ACID",
	SetTypeContinuous: "CONTINUOUS",
}

func (s CharacterStateSetType) String() string {
	if name, ok := setTypeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("CharacterStateSetType(%d)", int(s))
}

// IsMolecular returns true for nucleotide and amino acid alphabets, whose
// tokens are always single characters.
func (s CharacterStateSetType) IsMolecular() bool {
	return s == SetTypeDNA || s == SetTypeRNA || s == SetTypeAminoAcid
}

// MarshalText implements encoding.TextMarshaler.
func (s CharacterStateSetType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *CharacterStateSetType) UnmarshalText(text []byte) error {
	for v, name := range setTypeNames {
		if name == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown character state set type %q", text)
}

// TokenMeaning is the role of a single token definition.
type TokenMeaning int

// Token meanings.
const (
	MeaningCharacterState TokenMeaning = iota
	MeaningGap
	MeaningMissing
	MeaningMatch
	MeaningOther
)

var meaningNames = map[TokenMeaning]string{
	MeaningCharacterState: "CHARACTER_STATE",
	MeaningGap:            "GAP",
	MeaningMissing:        "MISSING",
	MeaningMatch:          "MATCH",
	MeaningOther:          "OTHER",
}

func (m TokenMeaning) String() string {
	if name, ok := meaningNames[m]; ok {
		return name
	}
	return fmt.Sprintf("TokenMeaning(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m TokenMeaning) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *TokenMeaning) UnmarshalText(text []byte) error {
	for v, name := range meaningNames {
		if name == string(text) {
			*m = v
			return nil
		}
	}
	return fmt.Errorf("unknown token meaning %q", text)
}

// SymbolType tells how a token definition relates to its constituents.
type SymbolType int

// Symbol types.
const (
	SymbolAtomic SymbolType = iota
	SymbolPolymorphic
	SymbolUncertain
)

func (s SymbolType) String() string {
	switch s {
	case SymbolAtomic:
		return "ATOMIC"
	case SymbolPolymorphic:
		return "POLYMORPHIC"
	case SymbolUncertain:
		return "UNCERTAIN"
	}
	return fmt.Sprintf("SymbolType(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s SymbolType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SymbolType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ATOMIC":
		*s = SymbolAtomic
	case "POLYMORPHIC":
		*s = SymbolPolymorphic
	case "UNCERTAIN":
		*s = SymbolUncertain
	default:
		return fmt.Errorf("unknown symbol type %q", text)
	}
	return nil
}

// Well-known literal metadata predicates produced by readers.
const (
	// PredicateRooted marks whether a tree is displayed rooted (Newick [&R]/[&U]).
	PredicateRooted = "phylo:rooted"
	// PredicateDescription holds free text descriptions (MEGA !Description).
	PredicateDescription = "dc:description"
	// PredicateTitle holds document titles.
	PredicateTitle = "dc:title"
)

// XSD datatypes used for literal metadata.
const (
	DatatypeString  = "xsd:string"
	DatatypeDouble  = "xsd:double"
	DatatypeInteger = "xsd:integer"
	DatatypeBoolean = "xsd:boolean"
)
