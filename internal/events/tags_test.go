package events

import "testing"

func TestBehaviorOfMapsEveryCode(t *testing.T) {
	codes := map[string]Behavior{
		"NEUTRAL":       BehaviorNeutral,
		"DISGUST":       BehaviorDisgust,
		"CONTEMPT":      BehaviorContempt,
		"BELLIGERENCE":  BehaviorBelligerence,
		"DOMINEERING":   BehaviorDomineering,
		"CRITICISM":     BehaviorCriticism,
		"ANGER":         BehaviorAnger,
		"TENSION":       BehaviorTension,
		"TENSE_HUMOR":   BehaviorTenseHumor,
		"DEFENSIVENESS": BehaviorDefensiveness,
		"WHINING":       BehaviorWhining,
		"SADNESS":       BehaviorSadness,
		"STONEWALLING":  BehaviorStonewalling,
		"INTEREST":      BehaviorInterest,
		"VALIDATION":    BehaviorValidation,
		"AFFECTION":     BehaviorAffection,
		"HUMOR":         BehaviorHumor,
		"SURPRISE":      BehaviorSurprise,
		"JOY":           BehaviorJoy,
	}
	if len(codes) != 19 {
		t.Fatalf("test table has %d codes, want 19", len(codes))
	}
	seen := make(map[Behavior]bool)
	for code, want := range codes {
		got := BehaviorOf(code)
		if got != want {
			t.Fatalf("BehaviorOf(%q) = %v, want %v", code, got, want)
		}
		if seen[got] {
			t.Fatalf("BehaviorOf(%q) = %v collides with another code", code, got)
		}
		seen[got] = true
	}
}

func TestBehaviorOfAcceptsSpellings(t *testing.T) {
	for _, code := range []string{"TENSE_HUMOR", "tense-humor", "TenseHumor", "SPAFF_CODE_TENSE_HUMOR", " tense humor "} {
		if got := BehaviorOf(code); got != BehaviorTenseHumor {
			t.Fatalf("BehaviorOf(%q) = %v, want TenseHumor", code, got)
		}
	}
}

func TestBehaviorOfUnmapped(t *testing.T) {
	for _, code := range []string{"", "BOREDOM", "UNMAPPED"} {
		if got := BehaviorOf(code); got != BehaviorUnmapped {
			t.Fatalf("BehaviorOf(%q) = %v, want Unmapped", code, got)
		}
	}
}

func TestStrengthOf(t *testing.T) {
	tests := []struct {
		code string
		want Strength
	}{
		{"WEAK", StrengthWeak},
		{"strong", StrengthStrong},
		{"NORMAL", StrengthUnmapped},
		{"", StrengthUnmapped},
	}
	for _, tc := range tests {
		if got := StrengthOf(tc.code); got != tc.want {
			t.Fatalf("StrengthOf(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestTagStringOutOfRange(t *testing.T) {
	if got := Behavior(99).String(); got != "Unmapped" {
		t.Fatalf("Behavior(99).String() = %q, want Unmapped", got)
	}
	if got := Strength(-1).String(); got != "Unmapped" {
		t.Fatalf("Strength(-1).String() = %q, want Unmapped", got)
	}
}
