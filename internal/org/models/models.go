// Package models defines the organization aggregate: domains with their
// verification state and lightweight member references.
package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"examduler/internal/users"
)

// Domain is a DNS domain claimed by an organization. The string is
// normalized (lowercase, https:// scheme). The verification token is
// generated once when the domain is first added and preserved across
// organization edits for as long as the domain is retained; regenerating it
// would invalidate an in-progress DNS propagation.
type Domain struct {
	Domain            string `json:"domain"`
	VerificationToken string `json:"verificationToken"`
	Verified          bool   `json:"verified"`
}

// MemberRef points at a user record without embedding it. Verified mirrors
// the referenced user's store status; reconciliation keeps the two in sync.
type MemberRef struct {
	UserID   uuid.UUID `json:"id"`
	Verified bool      `json:"verified"`
}

// Organization owns its domain list and member reference list. Version is
// the optimistic-concurrency counter: every write compares-and-swaps the
// version read at snapshot time.
type Organization struct {
	ID      uuid.UUID   `json:"id"`
	Name    string      `json:"name"`
	Domains []Domain    `json:"domains"`
	Members []MemberRef `json:"members"`
	Version int64       `json:"-"`
}

// Member is a MemberRef resolved to its user record, the shape returned to
// clients.
type Member struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     users.Role `json:"role"`
	Verified bool       `json:"verified"`
}

// VerifiedDomains returns the bare (scheme-stripped) verified domain strings
// of the organization, the set roster emails are bucketed against.
func (o *Organization) VerifiedDomains() []string {
	var result []string
	for _, d := range o.Domains {
		if d.Verified {
			result = append(result, StripScheme(d.Domain))
		}
	}
	return result
}

// FindDomain returns the organization's entry for the given domain string,
// matching the normalized form.
func (o *Organization) FindDomain(domain string) (Domain, bool) {
	normalized, err := NormalizeDomain(domain)
	if err != nil {
		return Domain{}, false
	}
	for _, d := range o.Domains {
		if d.Domain == normalized {
			return d, true
		}
	}
	return Domain{}, false
}

// NormalizeDomain lowercases a domain string and ensures it carries the
// https scheme. Accepts bare ("example.com") and schemed
// ("https://example.com") forms.
func NormalizeDomain(raw string) (string, error) {
	domain := strings.ToLower(strings.TrimSpace(raw))
	domain = strings.TrimSuffix(domain, "/")
	if domain == "" {
		return "", fmt.Errorf("domain is empty")
	}
	switch {
	case strings.HasPrefix(domain, "https://"):
	case strings.HasPrefix(domain, "http://"):
		domain = "https://" + strings.TrimPrefix(domain, "http://")
	default:
		domain = "https://" + domain
	}
	bare := strings.TrimPrefix(domain, "https://")
	if bare == "" || strings.ContainsAny(bare, " \t/") {
		return "", fmt.Errorf("invalid domain: %q", raw)
	}
	return domain, nil
}

// StripScheme removes the URI scheme for DNS lookups and email-domain
// comparison.
func StripScheme(domain string) string {
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return domain
}
