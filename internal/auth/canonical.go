package auth

import "strings"

// DefaultProvider labels subjects whose user id carries no provider prefix.
const DefaultProvider = "default"

// ProviderSubject splits the claims into the login provider and the canonical
// viewer id. A "provider:subject" user id is reduced to its subject; otherwise
// the registered subject wins over the user id, and the email is the last
// resort. Clients and the API must agree on this mapping, so both call it.
func (c SessionClaims) ProviderSubject() (string, string) {
	provider := DefaultProvider
	subject := strings.TrimSpace(c.Subject)

	raw := strings.TrimSpace(c.UserID)
	if raw != "" {
		before, after, found := strings.Cut(raw, ":")
		if found && strings.TrimSpace(before) != "" && strings.TrimSpace(after) != "" {
			provider = strings.TrimSpace(before)
			subject = strings.TrimSpace(after)
		} else if subject == "" {
			subject = raw
		}
	}
	if subject == "" {
		subject = strings.TrimSpace(c.UserEmail)
	}
	return provider, subject
}

// ViewerID returns the canonical viewer id for the claims.
func (c SessionClaims) ViewerID() string {
	_, subject := c.ProviderSubject()
	return subject
}

// ViewerName returns the display name, falling back to the email.
func (c SessionClaims) ViewerName() string {
	if name := strings.TrimSpace(c.UserDisplayName); name != "" {
		return name
	}
	return strings.TrimSpace(c.UserEmail)
}
