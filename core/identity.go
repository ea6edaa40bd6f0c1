package core

import "strings"

// ClientID derives the stable client identifier from a contact address:
// the local part, lowercased, with separator characters replaced by '_'.
// "Jane.Doe@example.com" becomes "jane_doe".
//
// The mapping is deliberately lossy: distinct addresses like "a.b@x" and
// "a_b@x" collapse onto the same client ID and their entitlements merge.
// That is an accepted policy, not an accident; callers that need stronger
// separation must key on something other than email.
func ClientID(contactAddress string) (string, error) {
	addr := strings.TrimSpace(contactAddress)
	i := strings.IndexByte(addr, '@')
	if i <= 0 {
		return "", ErrInvalidIdentity
	}
	local := strings.ToLower(addr[:i])
	var b strings.Builder
	b.Grow(len(local))
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String(), nil
}
