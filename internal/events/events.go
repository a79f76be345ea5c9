// Package events classifies provider packets into the events a host drains.
package events

import (
	"encoding/json"
	"fmt"
)

type Kind string

const (
	KindText    Kind = "text"
	KindEmotion Kind = "emotion"
	KindCustom  Kind = "custom"
)

type Event interface {
	Kind() Kind
	isEvent()
}

// Source, Target and the ids are only set for non-player text.
type Text struct {
	Final       bool
	Text        string
	Source      *Actor
	Target      *Actor
	PacketID    string
	UtteranceID string
}

type Emotion struct {
	Joy      float64
	Fear     float64
	Trust    float64
	Surprise float64
	Behavior Behavior
	Strength Strength
}

type Custom struct {
	Name string
}

func (Text) Kind() Kind    { return KindText }
func (Emotion) Kind() Kind { return KindEmotion }
func (Custom) Kind() Kind  { return KindCustom }

func (Text) isEvent()    {}
func (Emotion) isEvent() {}
func (Custom) isEvent()  {}

func (e Text) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   Kind   `json:"type"`
		Source *Actor `json:"source,omitempty"`
		Target *Actor `json:"target,omitempty"`
		Final  bool   `json:"final"`
		Text   string `json:"text"`
		I      string `json:"i,omitempty"`
		U      string `json:"u,omitempty"`
	}{KindText, e.Source, e.Target, e.Final, e.Text, e.PacketID, e.UtteranceID})
}

func (e Emotion) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     Kind     `json:"type"`
		Joy      float64  `json:"joy"`
		Fear     float64  `json:"fear"`
		Trust    float64  `json:"trust"`
		Surprise float64  `json:"surprise"`
		Behavior Behavior `json:"behavior"`
		Strength Strength `json:"strength"`
	}{KindEmotion, e.Joy, e.Fear, e.Trust, e.Surprise, e.Behavior, e.Strength})
}

func (e Custom) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type Kind   `json:"type"`
		Name string `json:"name"`
	}{KindCustom, e.Name})
}

type ActorKind int

const (
	ActorUnknown ActorKind = iota
	ActorPlayer
	ActorCharacter
)

type Actor struct {
	Kind ActorKind
	Name string
}

func (a Actor) String() string {
	switch a.Kind {
	case ActorPlayer:
		return "Player"
	case ActorCharacter:
		return fmt.Sprintf("Character(%s)", a.Name)
	default:
		return "Unknown"
	}
}

func (a Actor) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func EncodeAll(batch []Event) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(batch))
	for _, ev := range batch {
		raw, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("encode %s event: %w", ev.Kind(), err)
		}
		out = append(out, raw)
	}
	return out, nil
}
