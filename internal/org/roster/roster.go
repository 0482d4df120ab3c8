// Package roster parses uploaded member rosters and computes membership
// deltas. Parsing is strict: one malformed row rejects the whole upload
// before anything is written.
package roster

import (
	"strings"

	"examduler/internal/users"
	domainerrors "examduler/pkg/domain-errors"
)

// Entry is one normalized roster row. Email and Domain are lowercased; Email
// is the identity key for all diffing.
type Entry struct {
	Name   string
	Email  string
	Domain string
	Role   users.Role
}

// Parse converts a roster text blob into entries. Rows are newline
// separated, fields comma separated: name,email,role. Blank lines are
// skipped; anything else malformed fails the parse with a validation error.
func Parse(text string) ([]Entry, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	entries := make([]Entry, 0, len(lines))

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return nil, domainerrors.Newf(domainerrors.CodeValidation,
				"roster line %d: expected name,email,role", i+1)
		}

		name := strings.TrimSpace(fields[0])
		email := strings.ToLower(strings.TrimSpace(fields[1]))
		roleField := strings.TrimSpace(fields[2])

		if name == "" {
			return nil, domainerrors.Newf(domainerrors.CodeValidation,
				"roster line %d: name is empty", i+1)
		}

		role, err := users.ParseRole(roleField)
		if err != nil {
			return nil, domainerrors.Newf(domainerrors.CodeValidation,
				"roster line %d: invalid role %q", i+1, roleField)
		}

		domain, err := emailDomain(email)
		if err != nil {
			return nil, domainerrors.Newf(domainerrors.CodeValidation,
				"roster line %d: no domain found in email %q", i+1, email)
		}

		entries = append(entries, Entry{
			Name:   name,
			Email:  email,
			Domain: domain,
			Role:   role,
		})
	}

	return entries, nil
}

func emailDomain(email string) (string, error) {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "", domainerrors.Newf(domainerrors.CodeValidation, "no domain found in %q", email)
	}
	return email[at+1:], nil
}
