package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"examduler/internal/audit"
	"examduler/internal/org/models"
	"examduler/internal/verification"
	domainerrors "examduler/pkg/domain-errors"
	"examduler/pkg/platform/sentinel"
	"examduler/pkg/requestcontext"
)

// VerifyDomain runs an ownership challenge for one of the organization's
// domains, then, on success, marks the domain verified and promotes every
// pending member whose email lives under it. Verification, promotion and
// reference sync commit in one transaction so a member can never be
// promoted twice or half-promoted.
//
// A failed challenge is not an error: the Result carries the outcome and
// its HTTP-shaped status for the transport layer. Errors are reserved for
// requests that never got as far as the challenge.
func (s *Service) VerifyDomain(ctx context.Context, requesterID uuid.UUID, req models.VerifyRequest) (verification.Result, error) {
	ctx, span := s.tracer.Start(ctx, "org.VerifyDomain")
	defer span.End()

	o, err := s.orgs.Get(ctx, req.ID)
	if err != nil {
		return verification.Result{}, translateStoreError(err, "organization")
	}
	if !isVerifiedMember(o, requesterID) {
		return verification.Result{}, domainerrors.New(domainerrors.CodeForbidden,
			"only a verified member can verify domains for this organization")
	}

	normalized, err := models.NormalizeDomain(req.Domain)
	if err != nil {
		return verification.Result{}, domainerrors.Newf(domainerrors.CodeValidation,
			"invalid domain %q", req.Domain)
	}

	d, ok := o.FindDomain(normalized)
	if !ok {
		return verification.Result{}, domainerrors.New(domainerrors.CodeForbidden,
			"domain is not linked to this organization")
	}
	if d.Verified {
		return verification.Result{
			Success:    true,
			StatusCode: 200,
			Message:    "domain is already verified",
		}, nil
	}

	owner, err := s.orgs.FindVerifiedDomainOwner(ctx, normalized)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// not claimed anywhere
	case err != nil:
		return verification.Result{}, translateStoreError(err, "domain ownership")
	case owner != o.ID:
		return verification.Result{}, domainerrors.Newf(domainerrors.CodeConflict,
			"domain %s is already verified by another organization", normalized)
	}

	allowed, err := s.cooldown.Allow(ctx, o.ID, normalized)
	if err != nil {
		return verification.Result{}, domainerrors.Wrap(err, domainerrors.CodeInternal,
			"cooldown check failed")
	}
	if !allowed {
		return verification.Result{}, domainerrors.New(domainerrors.CodeRateLimited,
			"verification was attempted too recently for this domain, try again later")
	}

	method := req.Method
	if method == "" {
		method = "txt"
	}
	var result verification.Result
	switch method {
	case "http":
		result = s.verifier.VerifyHTTP(ctx, normalized, d.VerificationToken)
	default:
		result = s.verifier.VerifyTXT(ctx, normalized, d.VerificationToken)
	}

	outcome := "failure"
	if result.Success {
		outcome = "success"
	}
	s.metrics.RecordVerification(method, outcome)

	if !result.Success {
		s.logger.Info("domain verification failed",
			"org_id", o.ID, "domain", normalized, "method", method,
			"status", result.StatusCode, "message", result.Message)
		return result, nil
	}

	promoted, err := s.commitVerification(ctx, o, normalized, requesterID)
	if err != nil {
		return verification.Result{}, err
	}

	s.emit(audit.Event{
		Action:    audit.ActionDomainVerified,
		OrgID:     o.ID,
		ActorID:   requesterID,
		Domain:    normalized,
		RequestID: requestcontext.RequestID(ctx),
	})
	for _, id := range promoted {
		s.emit(audit.Event{
			Action:    audit.ActionMemberPromoted,
			OrgID:     o.ID,
			ActorID:   id,
			Domain:    normalized,
			RequestID: requestcontext.RequestID(ctx),
		})
	}
	s.logger.Info("domain verified",
		"org_id", o.ID, "domain", normalized, "method", method,
		"promoted", len(promoted))

	return result, nil
}

// commitVerification flips the domain and promotes pending members under it
// atomically. Promotion re-checks each candidate's stored domain and
// pending status inside the transaction, so a member promoted through
// another organization in the meantime is simply skipped.
func (s *Service) commitVerification(ctx context.Context, o *models.Organization, domain string, requesterID uuid.UUID) ([]uuid.UUID, error) {
	start := time.Now()
	var promoted []uuid.UUID
	err := s.txr.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.orgs.SetDomainVerified(ctx, o.ID, domain); err != nil {
			return translateStoreError(err, "domain")
		}

		var candidates []uuid.UUID
		for _, ref := range o.Members {
			if !ref.Verified {
				candidates = append(candidates, ref.UserID)
			}
		}

		var err error
		promoted, err = s.users.Promote(ctx, candidates, models.StripScheme(domain), requesterID)
		if err != nil {
			return translateStoreError(err, "members")
		}
		if len(promoted) == 0 {
			return nil
		}

		if err := s.orgs.SetMembersVerified(ctx, promoted); err != nil {
			return translateStoreError(err, "member references")
		}
		// Any session issued while these users were pending carries
		// stale claims; bump so they re-authenticate.
		for _, id := range promoted {
			if err := s.users.BumpTokenVersion(ctx, id); err != nil {
				return translateStoreError(err, "user")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.MembersPromoted.Add(float64(len(promoted)))
	}
	s.metrics.ObserveReconcile(start)
	return promoted, nil
}
