package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Actor identifies one side of a packet's routing.
type Actor struct {
	Name        string `json:"name,omitempty"`
	IsPlayer    bool   `json:"isPlayer,omitempty"`
	IsCharacter bool   `json:"isCharacter,omitempty"`
}

type Routing struct {
	Source Actor `json:"source"`
	Target Actor `json:"target"`
}

type PacketID struct {
	PacketID      string `json:"packetId"`
	UtteranceID   string `json:"utteranceId,omitempty"`
	InteractionID string `json:"interactionId,omitempty"`
}

type TextPayload struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// EmotionPayload carries raw affect scores. Behavior and Strength are wire
// codes such as "TENSE_HUMOR" or "WEAK".
type EmotionPayload struct {
	Joy      float64 `json:"joy"`
	Fear     float64 `json:"fear"`
	Trust    float64 `json:"trust"`
	Surprise float64 `json:"surprise"`
	Behavior string  `json:"behavior"`
	Strength string  `json:"strength"`
}

type CustomParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type CustomPayload struct {
	Name       string            `json:"name"`
	Parameters []CustomParameter `json:"parameters,omitempty"`
}

// Packet is one message unit pushed by the character service. At most one
// payload is set in practice, but callers must not rely on it.
type Packet struct {
	PacketID PacketID        `json:"packetId"`
	Routing  Routing         `json:"routing"`
	Date     string          `json:"date,omitempty"`
	Text     *TextPayload    `json:"text,omitempty"`
	Emotions *EmotionPayload `json:"emotions,omitempty"`
	Custom   *CustomPayload  `json:"custom,omitempty"`
}

func (p Packet) IsText() bool    { return p.Text != nil }
func (p Packet) IsEmotion() bool { return p.Emotions != nil }
func (p Packet) IsCustom() bool  { return p.Custom != nil }

var ErrEmptyPacket = errors.New("packet has no payload")

// ParsePacket decodes a packet payload. Packets with no recognized payload
// are rejected so the caller can count and skip them.
func ParsePacket(raw []byte) (Packet, error) {
	var p Packet
	if err := json.Unmarshal(raw, &p); err != nil {
		return Packet{}, fmt.Errorf("invalid packet: %w", err)
	}
	if !p.IsText() && !p.IsEmotion() && !p.IsCustom() {
		return Packet{}, ErrEmptyPacket
	}
	return p, nil
}
