package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies host websocket payload variants.
type MessageType string

const (
	TypeSendText     MessageType = "send_text"
	TypeSendCustom   MessageType = "send_custom"
	TypeSetCharacter MessageType = "set_character"
	TypeEvents       MessageType = "events"
	TypeAck          MessageType = "ack"
	TypeErrorEvent   MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type SendText struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type SendCustom struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id"`
}

type SetCharacter struct {
	Type        MessageType `json:"type"`
	CharacterID string      `json:"character_id"`
}

// EventsMessage carries one drained batch. Events hold already-encoded
// normalized events so this package stays independent of their Go types.
type EventsMessage struct {
	Type   MessageType       `json:"type"`
	UID    string            `json:"uid"`
	Events []json.RawMessage `json:"events"`
}

type Ack struct {
	Type    MessageType `json:"type"`
	Request MessageType `json:"request"`
	OK      bool        `json:"ok"`
	Detail  any         `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	UID    string      `json:"uid"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

// ParseHostMessage decodes one inbound host websocket message.
func ParseHostMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeSendText:
		var msg SendText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Message) == "" {
			return nil, errors.New("invalid send_text")
		}
		return msg, nil
	case TypeSendCustom:
		var msg SendCustom
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.ID) == "" {
			return nil, errors.New("invalid send_custom")
		}
		return msg, nil
	case TypeSetCharacter:
		var msg SetCharacter
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.CharacterID) == "" {
			return nil, errors.New("invalid set_character")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
