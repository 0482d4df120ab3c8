package service

import (
	"context"

	"github.com/google/uuid"

	"examduler/internal/audit"
	domainerrors "examduler/pkg/domain-errors"
	"examduler/pkg/requestcontext"
)

// Delete removes an organization. Member records that belonged only to this
// organization are deleted with it; members who also belong to other
// organizations keep their accounts, as does the requesting admin.
func (s *Service) Delete(ctx context.Context, requesterID, orgID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "org.Delete")
	defer span.End()

	err := s.txr.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.orgs.Get(ctx, orgID)
		if err != nil {
			return translateStoreError(err, "organization")
		}
		if !isVerifiedMember(o, requesterID) {
			return domainerrors.New(domainerrors.CodeForbidden,
				"only a verified member can delete this organization")
		}

		var memberIDs []uuid.UUID
		for _, ref := range o.Members {
			if ref.UserID != requesterID {
				memberIDs = append(memberIDs, ref.UserID)
			}
		}

		if err := s.orgs.Delete(ctx, orgID); err != nil {
			return translateStoreError(err, "organization")
		}

		// With this organization gone, a zero count means the user has
		// no membership left anywhere.
		if len(memberIDs) == 0 {
			return nil
		}
		counts, err := s.orgs.MembershipCounts(ctx, memberIDs)
		if err != nil {
			return translateStoreError(err, "memberships")
		}
		var orphaned []uuid.UUID
		for _, id := range memberIDs {
			if counts[id] == 0 {
				orphaned = append(orphaned, id)
			}
		}
		if len(orphaned) == 0 {
			return nil
		}
		if err := s.users.DeleteByIDs(ctx, orphaned); err != nil {
			return translateStoreError(err, "members")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.OrganizationsDeleted.Inc()
	}
	s.emit(audit.Event{
		Action:    audit.ActionOrgDeleted,
		OrgID:     orgID,
		ActorID:   requesterID,
		RequestID: requestcontext.RequestID(ctx),
	})
	s.logger.Info("organization deleted", "org_id", orgID)
	return nil
}
