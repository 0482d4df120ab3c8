// Package handler is the HTTP surface for organization management. It
// decodes and validates payloads, resolves the authenticated user from
// context and delegates everything else to the service layer.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"examduler/internal/org/models"
	"examduler/internal/org/service"
	"examduler/internal/platform/middleware"
	"examduler/internal/verification"
	domainerrors "examduler/pkg/domain-errors"
)

// Service is the slice of the organization service the handlers need.
type Service interface {
	Create(ctx context.Context, requesterID uuid.UUID, req models.CreateRequest) (*service.View, error)
	Get(ctx context.Context, requesterID, orgID uuid.UUID) (*service.View, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*service.View, error)
	Update(ctx context.Context, requesterID, orgID uuid.UUID, req models.UpdateRequest) (*service.View, error)
	Delete(ctx context.Context, requesterID, orgID uuid.UUID) error
	VerifyDomain(ctx context.Context, requesterID uuid.UUID, req models.VerifyRequest) (verification.Result, error)
}

type Handler struct {
	logger       *slog.Logger
	orgs         Service
	validate     *validator.Validate
	jwtValidator middleware.JWTValidator
	timeout      time.Duration
}

func New(orgs Service, jwtValidator middleware.JWTValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:       logger,
		orgs:         orgs,
		validate:     validator.New(),
		jwtValidator: jwtValidator,
		timeout:      30 * time.Second,
	}
}

// Register mounts the organization routes. Every route requires a valid
// session token; mutating routes additionally require the admin role.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(h.timeout))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	router.Route("/api/organization", func(r chi.Router) {
		r.Get("/fetch/{id}/", h.handleFetch)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin", h.logger))
			r.Post("/create/", h.handleCreate)
			r.Put("/update/{id}/", h.handleUpdate)
			r.Delete("/delete/{id}/", h.handleDelete)
			r.Post("/verify/", h.handleVerify)
		})
	})
	router.Get("/api/organizations/fetch/user/", h.handleListForUser)

	r.Mount("/", router)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	view, err := h.orgs.Create(ctx, middleware.GetUserID(ctx), req)
	if err != nil {
		h.writeServiceError(w, r, "create organization", err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	view, err := h.orgs.Get(ctx, middleware.GetUserID(ctx), orgID)
	if err != nil {
		h.writeServiceError(w, r, "fetch organization", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleListForUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	views, err := h.orgs.ListForUser(ctx, middleware.GetUserID(ctx))
	if err != nil {
		h.writeServiceError(w, r, "list organizations", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req models.UpdateRequest
	if !h.decode(w, r, &req) {
		return
	}

	view, err := h.orgs.Update(ctx, middleware.GetUserID(ctx), orgID, req)
	if err != nil {
		h.writeServiceError(w, r, "update organization", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.orgs.Delete(ctx, middleware.GetUserID(ctx), orgID); err != nil {
		h.writeServiceError(w, r, "delete organization", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "organization deleted"})
}

// handleVerify runs a domain ownership challenge. A challenge that ran but
// did not pass is reported with the verifier's own status code and message;
// only requests that never reached the challenge produce error envelopes.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.orgs.VerifyDomain(ctx, middleware.GetUserID(ctx), req)
	if err != nil {
		h.writeServiceError(w, r, "verify domain", err)
		return
	}
	payload := map[string]string{"message": result.Message}
	if result.Reason != "" {
		payload["reason"] = result.Reason
	}
	writeJSON(w, result.StatusCode, payload)
}

// decode unmarshals and validates a JSON request body, writing the error
// response itself when the payload is unusable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeValidation, "invalid request body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.logger.WarnContext(r.Context(), "request validation failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"path", r.URL.Path,
			"error", err.Error())
		writeError(w, domainerrors.New(domainerrors.CodeValidation, "invalid request payload"))
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeValidation, "invalid organization id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := domainerrors.CodeOf(err)
	if code == domainerrors.CodeInternal || code == domainerrors.CodePersistence {
		h.logger.ErrorContext(r.Context(), "operation failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"op", op,
			"error", err.Error())
	}
	writeError(w, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates a domain error into the {"message": ...} envelope
// clients expect. Non-domain errors collapse to a generic 500 so internals
// never leak.
func writeError(w http.ResponseWriter, err error) {
	status := domainerrors.ToHTTPStatus(domainerrors.CodeOf(err))
	writeJSON(w, status, map[string]string{"message": domainerrors.MessageOf(err)})
}
