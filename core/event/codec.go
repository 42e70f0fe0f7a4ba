package event

import (
	"encoding/json"
	"fmt"
)

// envelope is the JSON form of one event.
type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

var kindNames = map[string]func() Event{
	"document_start":          func() Event { return &DocumentStart{} },
	"end":                     func() Event { return &PartEnd{} },
	"labeled_id":              func() Event { return &LabeledID{} },
	"linked_labeled_id":       func() Event { return &LinkedLabeledID{} },
	"node":                    func() Event { return &Node{} },
	"edge":                    func() Event { return &Edge{} },
	"sequence_tokens":         func() Event { return &SequenceTokens{} },
	"character_set_interval":  func() Event { return &CharacterSetInterval{} },
	"character_definition":    func() Event { return &CharacterDefinition{} },
	"token_set_definition":    func() Event { return &TokenSetDefinition{} },
	"single_token_definition": func() Event { return &SingleTokenDefinition{} },
	"literal_meta":            func() Event { return &LiteralMeta{} },
	"literal_meta_content":    func() Event { return &LiteralMetaContent{} },
	"resource_meta":           func() Event { return &ResourceMeta{} },
	"comment":                 func() Event { return &Comment{} },
	"set_element":             func() Event { return &SetElement{} },
	"unknown_command":         func() Event { return &UnknownCommand{} },
}

// Kind returns the envelope kind of e.
func Kind(e Event) string {
	switch e.(type) {
	case *DocumentStart:
		return "document_start"
	case *PartEnd:
		return "end"
	case *LabeledID:
		return "labeled_id"
	case *LinkedLabeledID:
		return "linked_labeled_id"
	case *Node:
		return "node"
	case *Edge:
		return "edge"
	case *SequenceTokens:
		return "sequence_tokens"
	case *CharacterSetInterval:
		return "character_set_interval"
	case *CharacterDefinition:
		return "character_definition"
	case *TokenSetDefinition:
		return "token_set_definition"
	case *SingleTokenDefinition:
		return "single_token_definition"
	case *LiteralMeta:
		return "literal_meta"
	case *LiteralMetaContent:
		return "literal_meta_content"
	case *ResourceMeta:
		return "resource_meta"
	case *Comment:
		return "comment"
	case *SetElement:
		return "set_element"
	case *UnknownCommand:
		return "unknown_command"
	}
	return ""
}

// jsonMarshal is a variable to allow testing of marshal errors.
var jsonMarshal = json.Marshal

// Marshal encodes one event as a JSON envelope.
func Marshal(e Event) ([]byte, error) {
	kind := Kind(e)
	if kind == "" {
		return nil, fmt.Errorf("cannot marshal event of type %T", e)
	}
	env := envelope{Kind: kind}
	if _, empty := e.(*DocumentStart); !empty {
		data, err := jsonMarshal(e)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s event: %w", kind, err)
		}
		env.Data = data
	}
	return jsonMarshal(env)
}

// Unmarshal decodes a JSON envelope produced by Marshal.
func Unmarshal(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode event envelope: %w", err)
	}
	newEvent, ok := kindNames[env.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %q", env.Kind)
	}
	e := newEvent()
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, e); err != nil {
			return nil, fmt.Errorf("failed to decode %s event: %w", env.Kind, err)
		}
	}
	return e, nil
}
