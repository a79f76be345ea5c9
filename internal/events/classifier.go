package events

import "github.com/ent0n29/charlink/internal/protocol"

// Classify yields one event per payload, in text, emotion, custom order.
func Classify(p protocol.Packet) []Event {
	var out []Event
	if p.IsText() {
		if ev, ok := classifyText(p); ok {
			out = append(out, ev)
		}
	}
	if p.IsEmotion() {
		out = append(out, classifyEmotion(p.Emotions))
	}
	if p.IsCustom() {
		out = append(out, Custom{Name: p.Custom.Name})
	}
	return out
}

// Partial player text is dropped.
func classifyText(p protocol.Packet) (Text, bool) {
	t := p.Text
	if p.Routing.Source.IsPlayer {
		if !t.Final {
			return Text{}, false
		}
		return Text{Final: true, Text: t.Text}, true
	}
	source := RenderActor(p.Routing.Source)
	target := RenderActor(p.Routing.Target)
	return Text{
		Final:       t.Final,
		Text:        t.Text,
		Source:      &source,
		Target:      &target,
		PacketID:    p.PacketID.PacketID,
		UtteranceID: p.PacketID.UtteranceID,
	}, true
}

func classifyEmotion(e *protocol.EmotionPayload) Emotion {
	return Emotion{
		Joy:      e.Joy,
		Fear:     e.Fear,
		Trust:    e.Trust,
		Surprise: e.Surprise,
		Behavior: BehaviorOf(e.Behavior),
		Strength: StrengthOf(e.Strength),
	}
}

// The player flag wins over the character flag.
func RenderActor(a protocol.Actor) Actor {
	switch {
	case a.IsPlayer:
		return Actor{Kind: ActorPlayer}
	case a.IsCharacter:
		return Actor{Kind: ActorCharacter, Name: a.Name}
	default:
		return Actor{Kind: ActorUnknown}
	}
}
