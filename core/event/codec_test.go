package event

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestMarshalEnvelope(t *testing.T) {
	data, err := Marshal(&SequenceTokens{Tokens: []string{"A", "C"}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"kind":"sequence_tokens","data":{"tokens":["A","C"]}}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	data, _ = Marshal(NewEnd(ContentAlignment))
	if string(data) != `{"kind":"end","data":{"content":"ALIGNMENT"}}` {
		t.Errorf("Marshal(END) = %s", data)
	}
}

func TestUnmarshalRestoresPayload(t *testing.T) {
	length := 0.25
	events := []Event{
		&DocumentStart{},
		&Edge{ID: "e1", SourceID: "n1", TargetID: "n2", Length: &length},
		&SingleTokenDefinition{ID: "st1", TokenName: "R", Meaning: MeaningCharacterState,
			SymbolType: SymbolUncertain, Constituents: []string{"A", "G"}},
		&TokenSetDefinition{ID: "ts1", SetType: SetTypeDNA},
		&SetElement{ElementID: "otu1", ElementType: ContentOTU},
	}
	for _, e := range events {
		data, err := Marshal(e)
		if err != nil {
			t.Fatalf("Marshal(%T) error = %v", e, err)
		}
		got, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", data, err)
		}
		if !reflect.DeepEqual(got, e) {
			t.Errorf("Unmarshal(%s) = %#v, want %#v", data, got, e)
		}
	}
}

func TestUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{"not json", "{", "failed to decode event envelope"},
		{"unknown kind", `{"kind":"verse"}`, `unknown event kind "verse"`},
		{"bad content type", `{"kind":"end","data":{"content":"CHAPTER"}}`, "failed to decode end event"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Unmarshal() error = %v, want %q", err, tt.wantMsg)
			}
		})
	}
}

func TestMarshalError(t *testing.T) {
	orig := jsonMarshal
	defer func() { jsonMarshal = orig }()
	jsonMarshal = func(any) ([]byte, error) { return nil, errors.New("mock error") }

	if _, err := Marshal(&Comment{Text: "x"}); err == nil {
		t.Error("Marshal() expected error")
	}
	if _, err := Digest([]Event{&Comment{Text: "x"}}); err == nil {
		t.Error("Digest() expected error")
	}
}

func TestDigest(t *testing.T) {
	a, err := Digest(minimalAlignment())
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	if len(a) != 64 {
		t.Errorf("digest length = %d, want 64", len(a))
	}
	b, _ := Digest(minimalAlignment())
	if a != b {
		t.Errorf("same events produced different digests: %s vs %s", a, b)
	}

	changed := minimalAlignment()
	changed[3] = &SequenceTokens{Tokens: []string{"A", "C", "G", "A"}}
	c, _ := Digest(changed)
	if a == c {
		t.Error("different events produced the same digest")
	}

	single, err := EventDigest(&Comment{Text: "x"})
	if err != nil || len(single) != 64 {
		t.Errorf("EventDigest() = %q, %v", single, err)
	}
}
