package policy

import (
	"errors"
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
	if strings.Contains(out, "4242") {
		t.Fatalf("card digits leaked: %q", out)
	}
}

func TestRedactPIILeavesPlainText(t *testing.T) {
	in := "The tavern opens at dawn."
	out, changed := RedactPII(in)
	if changed || out != in {
		t.Fatalf("RedactPII(%q) = %q, %v", in, out, changed)
	}
}

func TestNormalizeTrigger(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: " greeting ", want: "greeting"},
		{in: "quest.accept-1", want: "quest.accept-1"},
		{in: "", wantErr: ErrEmptyTrigger},
		{in: "drop table", wantErr: ErrInvalidTrigger},
		{in: strings.Repeat("a", 65), wantErr: ErrInvalidTrigger},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizeTrigger(tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("NormalizeTrigger() error = %v, want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("NormalizeTrigger() = %q, want %q", got, tc.want)
			}
		})
	}
}
