// Package users persists member accounts. One store holds both confirmed
// and pending-domain-verification users, distinguished by Status; promotion
// is a status flip rather than a cross-collection move, so a user can never
// exist in both states at once.
package users

import (
	"fmt"

	"github.com/google/uuid"
)

// Role is the closed member role enumeration.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole validates and returns a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("invalid role: %q", s)
	}
}

// Status tags whether a user's email domain has been proven owned by one of
// their organizations.
type Status string

const (
	StatusVerified Status = "verified"
	StatusPending  Status = "pending"
)

// User is a member account. Email is unique across the store and is the
// identity key for roster reconciliation. Domain is derived from the email
// at parse time and re-checked during promotion. TokenVersion invalidates
// previously issued session tokens when bumped.
type User struct {
	ID           uuid.UUID
	Email        string
	Domain       string
	Name         string
	Role         Role
	Status       Status
	ExamIDs      []uuid.UUID
	TokenVersion int
}
