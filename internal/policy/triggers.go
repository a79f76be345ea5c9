package policy

import (
	"errors"
	"regexp"
	"strings"
)

const maxTriggerLength = 64

var (
	ErrEmptyTrigger   = errors.New("custom trigger name is required")
	ErrInvalidTrigger = errors.New("custom trigger name must be letters, digits, '_', '-' or '.'")

	triggerPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*$`)
)

// NormalizeTrigger trims a custom trigger name and rejects names the character
// service would not accept.
func NormalizeTrigger(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyTrigger
	}
	if len(name) > maxTriggerLength || !triggerPattern.MatchString(name) {
		return "", ErrInvalidTrigger
	}
	return name, nil
}
