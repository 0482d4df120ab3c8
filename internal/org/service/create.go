package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"examduler/internal/audit"
	"examduler/internal/org/models"
	"examduler/internal/org/roster"
	"examduler/internal/users"
	"examduler/internal/verification"
	domainerrors "examduler/pkg/domain-errors"
	"examduler/pkg/platform/sentinel"
	"examduler/pkg/requestcontext"
)

// Create builds a new organization for the requesting admin. The admin is
// always linked as a pre-verified member; every roster entry starts pending
// since no domain can be verified before the organization exists.
func (s *Service) Create(ctx context.Context, requesterID uuid.UUID, req models.CreateRequest) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "org.Create")
	defer span.End()

	admin, err := s.lookupUser(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	domains, err := reconcileDomains(req.Domains, nil)
	if err != nil {
		return nil, err
	}

	entries, err := roster.Parse(req.Members)
	if err != nil {
		return nil, err
	}

	o := &models.Organization{
		ID:      uuid.New(),
		Name:    req.Name,
		Domains: domains,
	}

	if err := s.checkDomainConflicts(ctx, o.ID, domains); err != nil {
		return nil, err
	}

	var linked []*users.User
	err = s.txr.RunInTx(ctx, func(ctx context.Context) error {
		batch := entriesToUsers(dedupeEntries(entries, admin.Email), nil)
		var err error
		linked, err = s.users.UpsertByEmail(ctx, batch)
		if err != nil {
			return translateStoreError(err, "members")
		}

		o.Members = append(o.Members, models.MemberRef{UserID: admin.ID, Verified: true})
		for _, u := range linked {
			o.Members = append(o.Members, models.MemberRef{
				UserID:   u.ID,
				Verified: u.Status == users.StatusVerified,
			})
		}

		if err := s.orgs.Insert(ctx, o); err != nil {
			return translateStoreError(err, "organization")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OrganizationsCreated.Inc()
	}
	s.emit(audit.Event{
		Action:    audit.ActionOrgCreated,
		OrgID:     o.ID,
		ActorID:   requesterID,
		RequestID: requestcontext.RequestID(ctx),
	})
	s.logger.Info("organization created",
		"org_id", o.ID, "name", o.Name,
		"domains", len(o.Domains), "members", len(o.Members))

	members := make([]models.Member, 0, len(linked)+1)
	members = append(members, userToMember(admin))
	for _, u := range linked {
		members = append(members, userToMember(u))
	}
	return &View{Organization: o, Members: members}, nil
}

func (s *Service) lookupUser(ctx context.Context, id uuid.UUID) (*users.User, error) {
	found, err := s.users.GetByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, translateStoreError(err, "user")
	}
	if len(found) == 0 {
		return nil, domainerrors.New(domainerrors.CodeNotFound, "user not found")
	}
	return found[0], nil
}

func (s *Service) emit(event audit.Event) {
	if s.audit != nil {
		s.audit.Emit(event)
	}
}

// reconcileDomains normalizes the incoming domain list against what the
// organization already holds. Retained domains keep their stored token and
// verified flag untouched; new domains get a fresh token (or the one the
// client echoed back) and start unverified. Duplicates in the request are a
// validation error.
func reconcileDomains(incoming []models.DomainInput, existing []models.Domain) ([]models.Domain, error) {
	existingByDomain := make(map[string]models.Domain, len(existing))
	for _, d := range existing {
		existingByDomain[d.Domain] = d
	}

	seen := make(map[string]struct{}, len(incoming))
	result := make([]models.Domain, 0, len(incoming))
	for _, in := range incoming {
		normalized, err := models.NormalizeDomain(in.Domain)
		if err != nil {
			return nil, domainerrors.Newf(domainerrors.CodeValidation, "invalid domain %q", in.Domain)
		}
		if _, dup := seen[normalized]; dup {
			return nil, domainerrors.Newf(domainerrors.CodeValidation, "duplicate domain %q", normalized)
		}
		seen[normalized] = struct{}{}

		if kept, ok := existingByDomain[normalized]; ok {
			result = append(result, kept)
			continue
		}

		token := in.VerificationToken
		if token == "" {
			token, err = verification.NewToken()
			if err != nil {
				return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to generate verification token")
			}
		}
		result = append(result, models.Domain{
			Domain:            normalized,
			VerificationToken: token,
			Verified:          false,
		})
	}
	return result, nil
}

// checkDomainConflicts enforces the global invariant that a verified domain
// belongs to at most one organization: claiming a domain another
// organization holds verified is rejected up front, naming the offender.
func (s *Service) checkDomainConflicts(ctx context.Context, orgID uuid.UUID, domains []models.Domain) error {
	for _, d := range domains {
		owner, err := s.orgs.FindVerifiedDomainOwner(ctx, d.Domain)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue // not claimed anywhere
		}
		if err != nil {
			return translateStoreError(err, "domain ownership")
		}
		if owner != orgID {
			return domainerrors.Newf(domainerrors.CodeConflict,
				"domain %s is already verified by another organization", d.Domain)
		}
	}
	return nil
}

// dedupeEntries drops duplicate emails and the admin's own address from a
// parsed roster; the admin is linked separately as a pre-verified member.
func dedupeEntries(entries []roster.Entry, adminEmail string) []roster.Entry {
	seen := map[string]struct{}{adminEmail: {}}
	result := make([]roster.Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Email]; ok {
			continue
		}
		seen[e.Email] = struct{}{}
		result = append(result, e)
	}
	return result
}

// entriesToUsers converts roster entries into user records for upsert.
// Entries whose email domain is in verifiedDomains start verified, the rest
// pending; on upsert of an existing record the stored status wins anyway.
func entriesToUsers(entries []roster.Entry, verifiedDomains []string) []*users.User {
	verified := make(map[string]struct{}, len(verifiedDomains))
	for _, d := range verifiedDomains {
		verified[d] = struct{}{}
	}

	batch := make([]*users.User, 0, len(entries))
	for _, e := range entries {
		status := users.StatusPending
		if _, ok := verified[e.Domain]; ok {
			status = users.StatusVerified
		}
		batch = append(batch, &users.User{
			Email:  e.Email,
			Domain: e.Domain,
			Name:   e.Name,
			Role:   e.Role,
			Status: status,
		})
	}
	return batch
}

func userToMember(u *users.User) models.Member {
	return models.Member{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
		Verified: u.Status == users.StatusVerified,
	}
}
