package events

import "strings"

type Behavior int

const (
	BehaviorNeutral Behavior = iota
	BehaviorDisgust
	BehaviorContempt
	BehaviorBelligerence
	BehaviorDomineering
	BehaviorCriticism
	BehaviorAnger
	BehaviorTension
	BehaviorTenseHumor
	BehaviorDefensiveness
	BehaviorWhining
	BehaviorSadness
	BehaviorStonewalling
	BehaviorInterest
	BehaviorValidation
	BehaviorAffection
	BehaviorHumor
	BehaviorSurprise
	BehaviorJoy
	BehaviorUnmapped
)

var behaviorNames = [...]string{
	BehaviorNeutral:       "Neutral",
	BehaviorDisgust:       "Disgust",
	BehaviorContempt:      "Contempt",
	BehaviorBelligerence:  "Belligerence",
	BehaviorDomineering:   "Domineering",
	BehaviorCriticism:     "Criticism",
	BehaviorAnger:         "Anger",
	BehaviorTension:       "Tension",
	BehaviorTenseHumor:    "TenseHumor",
	BehaviorDefensiveness: "Defensiveness",
	BehaviorWhining:       "Whining",
	BehaviorSadness:       "Sadness",
	BehaviorStonewalling:  "Stonewalling",
	BehaviorInterest:      "Interest",
	BehaviorValidation:    "Validation",
	BehaviorAffection:     "Affection",
	BehaviorHumor:         "Humor",
	BehaviorSurprise:      "Surprise",
	BehaviorJoy:           "Joy",
	BehaviorUnmapped:      "Unmapped",
}

func (b Behavior) String() string {
	if b < 0 || int(b) >= len(behaviorNames) {
		return behaviorNames[BehaviorUnmapped]
	}
	return behaviorNames[b]
}

func (b Behavior) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

type Strength int

const (
	StrengthWeak Strength = iota
	StrengthStrong
	StrengthUnmapped
)

var strengthNames = [...]string{
	StrengthWeak:     "Weak",
	StrengthStrong:   "Strong",
	StrengthUnmapped: "Unmapped",
}

func (s Strength) String() string {
	if s < 0 || int(s) >= len(strengthNames) {
		return strengthNames[StrengthUnmapped]
	}
	return strengthNames[s]
}

func (s Strength) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// BehaviorOf tries tags in declaration order; the first match wins.
func BehaviorOf(code string) Behavior {
	norm := normalizeCode(code)
	if norm == "" {
		return BehaviorUnmapped
	}
	for b := BehaviorNeutral; b < BehaviorUnmapped; b++ {
		if norm == strings.ToUpper(behaviorNames[b]) {
			return b
		}
	}
	return BehaviorUnmapped
}

// NORMAL is unmapped.
func StrengthOf(code string) Strength {
	norm := normalizeCode(code)
	if norm == "" {
		return StrengthUnmapped
	}
	for s := StrengthWeak; s < StrengthUnmapped; s++ {
		if norm == strings.ToUpper(strengthNames[s]) {
			return s
		}
	}
	return StrengthUnmapped
}

// normalizeCode folds "TENSE_HUMOR", "tense-humor" and "TenseHumor" to the
// same key and drops the optional SPAFF_CODE_ prefix used by some gateways.
func normalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.TrimPrefix(code, "SPAFF_CODE_")
	var sb strings.Builder
	sb.Grow(len(code))
	for _, r := range code {
		switch r {
		case '_', '-', ' ':
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
