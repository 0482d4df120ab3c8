package roster

import (
	"strings"

	"github.com/google/uuid"

	"examduler/internal/org/models"
)

// Diff is the delta between an uploaded roster and a stored member set.
type Diff struct {
	// New holds uploaded entries whose email is absent from the stored
	// set.
	New []Entry
	// Remove holds ids of stored members whose email is absent from the
	// upload.
	Remove []uuid.UUID
}

// Compute takes the set difference between uploaded entries and existing
// members, keyed by normalized email. No partial or fuzzy matching; an
// email either matches exactly or it does not.
func Compute(uploaded []Entry, existing []models.Member) Diff {
	uploadedByEmail := make(map[string]struct{}, len(uploaded))
	for _, entry := range uploaded {
		uploadedByEmail[entry.Email] = struct{}{}
	}

	existingByEmail := make(map[string]struct{}, len(existing))
	var diff Diff
	for _, member := range existing {
		email := strings.ToLower(member.Email)
		existingByEmail[email] = struct{}{}
		if _, ok := uploadedByEmail[email]; !ok {
			diff.Remove = append(diff.Remove, member.ID)
		}
	}

	for _, entry := range uploaded {
		if _, ok := existingByEmail[entry.Email]; !ok {
			diff.New = append(diff.New, entry)
		}
	}

	return diff
}
