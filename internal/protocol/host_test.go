package protocol

import (
	"errors"
	"testing"
)

func TestParseHostMessageSendText(t *testing.T) {
	msg, err := ParseHostMessage([]byte(`{"type":"send_text","message":"hello there"}`))
	if err != nil {
		t.Fatalf("ParseHostMessage() error = %v", err)
	}
	text, ok := msg.(SendText)
	if !ok {
		t.Fatalf("message type = %T, want SendText", msg)
	}
	if text.Message != "hello there" {
		t.Fatalf("Message = %q, want %q", text.Message, "hello there")
	}
}

func TestParseHostMessageSetCharacter(t *testing.T) {
	msg, err := ParseHostMessage([]byte(`{"type":"set_character","character_id":"workspaces/w/characters/bob"}`))
	if err != nil {
		t.Fatalf("ParseHostMessage() error = %v", err)
	}
	sc, ok := msg.(SetCharacter)
	if !ok {
		t.Fatalf("message type = %T, want SetCharacter", msg)
	}
	if sc.CharacterID != "workspaces/w/characters/bob" {
		t.Fatalf("CharacterID = %q", sc.CharacterID)
	}
}

func TestParseHostMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseHostMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseHostMessageValidation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "blank text", raw: `{"type":"send_text","message":"  "}`},
		{name: "missing custom id", raw: `{"type":"send_custom"}`},
		{name: "missing character", raw: `{"type":"set_character","character_id":""}`},
		{name: "broken json", raw: `{"type":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseHostMessage([]byte(tc.raw)); err == nil {
				t.Fatalf("expected validation error for %s", tc.raw)
			}
		})
	}
}

func BenchmarkParseHostMessageSendText(b *testing.B) {
	raw := []byte(`{"type":"send_text","message":"where did you hide the key?"}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseHostMessage(raw)
		if err != nil {
			b.Fatalf("ParseHostMessage() error = %v", err)
		}
		if _, ok := msg.(SendText); !ok {
			b.Fatalf("message type = %T, want SendText", msg)
		}
	}
}
