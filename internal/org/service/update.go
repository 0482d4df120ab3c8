package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"examduler/internal/audit"
	"examduler/internal/org/models"
	"examduler/internal/org/roster"
	"examduler/internal/users"
	domainerrors "examduler/pkg/domain-errors"
	"examduler/pkg/requestcontext"
)

// Update reconciles an organization against the client's submitted state:
// name, domain list and, when a roster was uploaded, the member sets. The
// whole reconciliation runs in one transaction against the version read at
// snapshot time, so a concurrent edit fails the compare-and-swap instead of
// being silently overwritten.
func (s *Service) Update(ctx context.Context, requesterID, orgID uuid.UUID, req models.UpdateRequest) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "org.Update")
	defer span.End()
	start := time.Now()

	var o *models.Organization
	err := s.txr.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orgs.Get(ctx, orgID)
		if err != nil {
			return translateStoreError(err, "organization")
		}
		if !isVerifiedMember(o, requesterID) {
			return domainerrors.New(domainerrors.CodeForbidden,
				"only a verified member can modify this organization")
		}

		snapshot, err := s.resolveMembers(ctx, o)
		if err != nil {
			return err
		}

		refs, removed, err := s.reconcileMembers(ctx, o, snapshot, requesterID, req)
		if err != nil {
			return err
		}

		if err := s.cleanupRemoved(ctx, removed); err != nil {
			return err
		}

		domains, err := reconcileDomains(req.Domains, o.Domains)
		if err != nil {
			return err
		}
		if err := s.checkDomainConflicts(ctx, o.ID, domains); err != nil {
			return err
		}

		o.Name = req.Name
		o.Domains = domains
		o.Members = refs
		if err := s.orgs.Update(ctx, o); err != nil {
			return translateStoreError(err, "organization")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveReconcile(start)
	s.emit(audit.Event{
		Action:    audit.ActionOrgUpdated,
		OrgID:     o.ID,
		ActorID:   requesterID,
		RequestID: requestcontext.RequestID(ctx),
	})
	s.logger.Info("organization updated",
		"org_id", o.ID, "version", o.Version,
		"domains", len(o.Domains), "members", len(o.Members))

	members, err := s.resolveMembers(ctx, o)
	if err != nil {
		return nil, err
	}
	return &View{Organization: o, Members: members}, nil
}

// reconcileMembers computes the organization's next member reference list.
// With an uploaded roster the verified and pending member sets are diffed
// independently against the matching slice of the upload; without one, the
// client's kept-member list is applied directly. The requester can never be
// removed. Returns the new reference list and the ids dropped from it.
func (s *Service) reconcileMembers(
	ctx context.Context,
	o *models.Organization,
	snapshot []models.Member,
	requesterID uuid.UUID,
	req models.UpdateRequest,
) ([]models.MemberRef, []uuid.UUID, error) {
	if !req.MemberUploaded {
		return applyKeptMembers(o, requesterID, req.Members)
	}

	entries, err := roster.Parse(req.UploadedMembers)
	if err != nil {
		return nil, nil, err
	}

	verifiedDomains := o.VerifiedDomains()
	verifiedSet := make(map[string]struct{}, len(verifiedDomains))
	for _, d := range verifiedDomains {
		verifiedSet[d] = struct{}{}
	}

	// Split the upload and the snapshot along the same axis, then diff
	// each half independently.
	var uploadVerified, uploadPending []roster.Entry
	for _, e := range entries {
		if _, ok := verifiedSet[e.Domain]; ok {
			uploadVerified = append(uploadVerified, e)
		} else {
			uploadPending = append(uploadPending, e)
		}
	}
	var snapVerified, snapPending []models.Member
	emailToID := make(map[string]uuid.UUID, len(snapshot))
	var requesterEmail string
	for _, m := range snapshot {
		emailToID[strings.ToLower(m.Email)] = m.ID
		if m.ID == requesterID {
			requesterEmail = strings.ToLower(m.Email)
		}
		if m.Verified {
			snapVerified = append(snapVerified, m)
		} else {
			snapPending = append(snapPending, m)
		}
	}

	diffVerified := roster.Compute(uploadVerified, snapVerified)
	diffPending := roster.Compute(uploadPending, snapPending)

	removeSet := make(map[uuid.UUID]struct{})
	for _, id := range diffVerified.Remove {
		removeSet[id] = struct{}{}
	}
	for _, id := range diffPending.Remove {
		removeSet[id] = struct{}{}
	}
	delete(removeSet, requesterID)

	// A "new" entry whose email already belongs to a member means the
	// member crossed buckets since the last upload (their domain got
	// verified, or the reverse). Keep the existing record: status moves
	// through domain verification, never through a roster re-upload.
	var fresh []roster.Entry
	for _, e := range dedupeEntries(append(diffVerified.New, diffPending.New...), requesterEmail) {
		if id, ok := emailToID[e.Email]; ok {
			delete(removeSet, id)
			continue
		}
		fresh = append(fresh, e)
	}

	linked, err := s.users.UpsertByEmail(ctx, entriesToUsers(fresh, verifiedDomains))
	if err != nil {
		return nil, nil, translateStoreError(err, "members")
	}

	refs := make([]models.MemberRef, 0, len(o.Members)+len(linked))
	for _, ref := range o.Members {
		if _, gone := removeSet[ref.UserID]; gone {
			continue
		}
		refs = append(refs, ref)
	}
	for _, u := range linked {
		refs = append(refs, models.MemberRef{
			UserID:   u.ID,
			Verified: u.Status == users.StatusVerified,
		})
	}

	removed := make([]uuid.UUID, 0, len(removeSet))
	for id := range removeSet {
		removed = append(removed, id)
	}
	return refs, removed, nil
}

// applyKeptMembers handles the no-upload path: the client sends the member
// ids it wants to keep; everyone else is dropped. A nil list leaves the
// membership untouched.
func applyKeptMembers(o *models.Organization, requesterID uuid.UUID, kept []models.MemberInput) ([]models.MemberRef, []uuid.UUID, error) {
	if kept == nil {
		refs := make([]models.MemberRef, len(o.Members))
		copy(refs, o.Members)
		return refs, nil, nil
	}

	keep := make(map[uuid.UUID]struct{}, len(kept)+1)
	keep[requesterID] = struct{}{}
	for _, m := range kept {
		keep[m.ID] = struct{}{}
	}

	var refs []models.MemberRef
	var removed []uuid.UUID
	for _, ref := range o.Members {
		if _, ok := keep[ref.UserID]; ok {
			refs = append(refs, ref)
		} else {
			removed = append(removed, ref.UserID)
		}
	}
	return refs, removed, nil
}

// cleanupRemoved deletes user records that no longer belong to any
// organization. The membership counts still include the organization being
// updated, so a count of one means this was their last one.
func (s *Service) cleanupRemoved(ctx context.Context, removed []uuid.UUID) error {
	if len(removed) == 0 {
		return nil
	}
	counts, err := s.orgs.MembershipCounts(ctx, removed)
	if err != nil {
		return translateStoreError(err, "memberships")
	}
	var orphaned []uuid.UUID
	for _, id := range removed {
		if counts[id] <= 1 {
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
}
