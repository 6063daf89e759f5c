package domain

import "strings"

// User is a registered user as seen by the credential store.
type User struct {
	ID         string `json:"id"`
	Credential string `json:"credential"`
}

// MaskCredential hides all but the edges of a secret for display.
func MaskCredential(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:3] + strings.Repeat("*", len(s)-7) + s[len(s)-4:]
}
