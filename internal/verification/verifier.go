package verification

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// WellKnownPath is the challenge file location served by the domain owner.
const WellKnownPath = "/.well-known/examduler"

// Result reports a single verification attempt. StatusCode follows HTTP
// conventions so the transport layer can surface it directly; Reason is the
// failure sub-reason, empty on success.
type Result struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status"`
	Message    string `json:"message"`
	Reason     string `json:"reason,omitempty"`
}

// Failure sub-reasons. A caller can retry after fixing DNS or the hosted
// file for not_found and mismatch; upstream_error means the challenge never
// completed.
const (
	ReasonNotFound      = "not_found"
	ReasonMismatch      = "mismatch"
	ReasonUpstreamError = "upstream_error"
)

// Resolver is the DNS dependency; *net.Resolver satisfies it.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Verifier runs domain ownership challenges.
type Verifier struct {
	resolver Resolver
	client   *http.Client
}

// New constructs a Verifier. A nil resolver falls back to the default
// system resolver; a nil client gets a sane timeout-bearing default.
func New(resolver Resolver, client *http.Client) *Verifier {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Verifier{resolver: resolver, client: client}
}

// VerifyTXT checks whether any TXT record on the domain equals the token.
// Multi-string records arrive pre-flattened from the resolver, so the
// comparison is plain equality per record.
func (v *Verifier) VerifyTXT(ctx context.Context, domain, token string) Result {
	bare := stripScheme(domain)

	records, err := v.resolver.LookupTXT(ctx, bare)
	if err != nil {
		return Result{
			Success:    false,
			StatusCode: http.StatusInternalServerError,
			Message:    fmt.Sprintf("DNS lookup failed for %s", bare),
			Reason:     ReasonUpstreamError,
		}
	}

	for _, record := range records {
		if record == token {
			return Result{
				Success:    true,
				StatusCode: http.StatusOK,
				Message:    "TXT record matches verification token",
			}
		}
	}

	reason := ReasonMismatch
	if len(records) == 0 {
		reason = ReasonNotFound
	}
	return Result{
		Success:    false,
		StatusCode: http.StatusUnprocessableEntity,
		Message:    "TXT record not found or does not match verification token",
		Reason:     reason,
	}
}

// VerifyHTTP fetches {domain}/.well-known/examduler and compares the
// trimmed body against the token.
func (v *Verifier) VerifyHTTP(ctx context.Context, domain, token string) Result {
	url := strings.TrimSuffix(domain, "/") + WellKnownPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{
			Success:    false,
			StatusCode: http.StatusInternalServerError,
			Message:    fmt.Sprintf("invalid challenge URL %s", url),
			Reason:     ReasonUpstreamError,
		}
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return Result{
			Success:    false,
			StatusCode: http.StatusInternalServerError,
			Message:    fmt.Sprintf("failed to fetch %s", url),
			Reason:     ReasonUpstreamError,
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Result{
			Success:    false,
			StatusCode: http.StatusNotFound,
			Message:    "verification file not found",
			Reason:     ReasonNotFound,
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Result{
			Success:    false,
			StatusCode: http.StatusFailedDependency,
			Message:    fmt.Sprintf("unexpected status %d fetching verification file", resp.StatusCode),
			Reason:     ReasonUpstreamError,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return Result{
			Success:    false,
			StatusCode: http.StatusInternalServerError,
			Message:    "failed to read verification file",
			Reason:     ReasonUpstreamError,
		}
	}

	if strings.TrimSpace(string(body)) != token {
		return Result{
			Success:    false,
			StatusCode: http.StatusBadRequest,
			Message:    "verification file does not match verification token",
			Reason:     ReasonMismatch,
		}
	}

	return Result{
		Success:    true,
		StatusCode: http.StatusOK,
		Message:    "verification file matches verification token",
	}
}

func stripScheme(domain string) string {
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return strings.TrimSuffix(domain, "/")
}
