package models

import "github.com/google/uuid"

// DomainInput is a client-supplied domain entry. A verification token is
// only honored on organization creation round-trips (the client echoing back
// what it was given); otherwise a fresh token is generated server-side.
type DomainInput struct {
	Domain            string `json:"domain" validate:"required,max=253"`
	VerificationToken string `json:"verificationToken,omitempty"`
}

// CreateRequest creates an organization. Members is the roster text blob,
// one "name,email,role" row per line.
type CreateRequest struct {
	Name    string        `json:"name" validate:"required,max=50"`
	Domains []DomainInput `json:"domains" validate:"required,dive"`
	Members string        `json:"members" validate:"required"`
}

// MemberInput identifies an already-linked member the client wants to keep.
type MemberInput struct {
	ID uuid.UUID `json:"_id" validate:"required"`
}

// UpdateRequest reconciles an organization against the client's view. When
// MemberUploaded is set, UploadedMembers carries a fresh roster to diff
// against the stored member sets.
type UpdateRequest struct {
	Name            string        `json:"name" validate:"required,max=50"`
	Domains         []DomainInput `json:"domains" validate:"required,dive"`
	Members         []MemberInput `json:"members" validate:"dive"`
	UploadedMembers string        `json:"uploadedMembers,omitempty"`
	MemberUploaded  bool          `json:"memberUploaded,omitempty"`
}

// VerifyRequest asks for a domain ownership check.
type VerifyRequest struct {
	ID     uuid.UUID `json:"id" validate:"required"`
	Domain string    `json:"domain" validate:"required"`
	Method string    `json:"method" validate:"omitempty,oneof=txt http"`
}
