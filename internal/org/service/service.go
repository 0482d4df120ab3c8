// Package service orchestrates organization lifecycle: roster
// reconciliation, domain ownership verification and the atomic promotion of
// pending members once their domain is proven. Handlers stay thin; every
// multi-store write here runs inside one transaction.
package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"examduler/internal/audit"
	"examduler/internal/org"
	"examduler/internal/org/models"
	"examduler/internal/platform/metrics"
	"examduler/internal/users"
	"examduler/internal/verification"
	domainerrors "examduler/pkg/domain-errors"
)

// TxRunner executes fn inside a storage transaction. The SQL implementation
// lives in cmd/server; tests use NopTxRunner since the in-memory stores
// apply writes directly.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopTxRunner runs fn without any transaction.
type NopTxRunner struct{}

func (NopTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Service wires the organization store, the user store, the domain verifier
// and the audit pipeline into the operations the HTTP layer exposes.
type Service struct {
	orgs     org.Store
	users    users.Store
	verifier *verification.Verifier
	cooldown *verification.Cooldown
	txr      TxRunner
	audit    *audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

func New(
	orgs org.Store,
	users users.Store,
	verifier *verification.Verifier,
	cooldown *verification.Cooldown,
	txr TxRunner,
	auditPub *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		orgs:     orgs,
		users:    users,
		verifier: verifier,
		cooldown: cooldown,
		txr:      txr,
		audit:    auditPub,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("examduler/internal/org/service"),
	}
}

// View is an organization with its member references resolved to full user
// records, the shape returned to clients.
type View struct {
	Organization *models.Organization `json:"organization"`
	Members      []models.Member      `json:"members"`
}

// Get returns one organization with resolved members. The requester must be
// a member.
func (s *Service) Get(ctx context.Context, requesterID, orgID uuid.UUID) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "org.Get")
	defer span.End()

	o, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, translateStoreError(err, "organization")
	}
	if !isMember(o, requesterID) {
		return nil, domainerrors.New(domainerrors.CodeForbidden, "not a member of this organization")
	}

	members, err := s.resolveMembers(ctx, o)
	if err != nil {
		return nil, err
	}
	return &View{Organization: o, Members: members}, nil
}

// ListForUser returns every organization the user belongs to, members
// resolved.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*View, error) {
	ctx, span := s.tracer.Start(ctx, "org.ListForUser")
	defer span.End()

	orgs, err := s.orgs.ListByMember(ctx, userID)
	if err != nil {
		return nil, translateStoreError(err, "organizations")
	}

	views := make([]*View, len(orgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, o := range orgs {
		g.Go(func() error {
			members, err := s.resolveMembers(gctx, o)
			if err != nil {
				return err
			}
			views[i] = &View{Organization: o, Members: members}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// resolveMembers loads the user record behind each MemberRef. The verified
// and pending halves of the reference list resolve concurrently. A ref
// whose user no longer exists, or whose stored status contradicts the ref,
// is a data inconsistency: it is logged and the stored status wins.
func (s *Service) resolveMembers(ctx context.Context, o *models.Organization) ([]models.Member, error) {
	var verifiedIDs, pendingIDs []uuid.UUID
	for _, ref := range o.Members {
		if ref.Verified {
			verifiedIDs = append(verifiedIDs, ref.UserID)
		} else {
			pendingIDs = append(pendingIDs, ref.UserID)
		}
	}

	var verifiedUsers, pendingUsers []*users.User
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		verifiedUsers, err = s.users.GetByIDs(gctx, verifiedIDs)
		return err
	})
	g.Go(func() error {
		var err error
		pendingUsers, err = s.users.GetByIDs(gctx, pendingIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodePersistence, "failed to resolve members")
	}

	byID := make(map[uuid.UUID]*users.User, len(verifiedUsers)+len(pendingUsers))
	for _, u := range verifiedUsers {
		byID[u.ID] = u
	}
	for _, u := range pendingUsers {
		byID[u.ID] = u
	}

	members := make([]models.Member, 0, len(o.Members))
	for _, ref := range o.Members {
		u, ok := byID[ref.UserID]
		if !ok {
			s.logger.Warn("member reference without user record, dropping",
				"org_id", o.ID, "user_id", ref.UserID)
			continue
		}
		verified := u.Status == users.StatusVerified
		if verified != ref.Verified {
			s.logger.Warn("member reference out of sync with user status",
				"org_id", o.ID, "user_id", ref.UserID,
				"ref_verified", ref.Verified, "user_status", u.Status)
		}
		members = append(members, models.Member{
			ID:       u.ID,
			Name:     u.Name,
			Email:    u.Email,
			Role:     u.Role,
			Verified: verified,
		})
	}
	return members, nil
}

func isMember(o *models.Organization, userID uuid.UUID) bool {
	for _, ref := range o.Members {
		if ref.UserID == userID {
			return true
		}
	}
	return false
}

func isVerifiedMember(o *models.Organization, userID uuid.UUID) bool {
	for _, ref := range o.Members {
		if ref.UserID == userID {
			return ref.Verified
		}
	}
	return false
}
