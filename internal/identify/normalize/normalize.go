// Package normalize canonicalizes raw identifier input into comparable forms
// or absence. Both functions are pure, total, and idempotent; absence is a
// valid value, never a fault.
package normalize

import "strings"

// Email trims and lower-cases raw email input. Returns nil when the input is
// empty after trimming.
func Email(raw string) *string {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return nil
	}
	return &v
}

// Phone strips every non-digit character from raw phone input. Returns nil
// when no digits remain.
func Phone(raw string) *string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	v := b.String()
	if v == "" {
		return nil
	}
	return &v
}
