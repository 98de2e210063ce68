package models

import "strings"

// ValidDID reports whether s is a well-formed decentralized identifier of the
// shape did:<namespace>:<identifier>. Namespace and identifier must be
// non-empty; the identifier may itself contain colons.
func ValidDID(s string) bool {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != "did" {
		return false
	}
	return parts[1] != "" && parts[2] != ""
}
