package verification

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestNewTokenFormat(t *testing.T) {
	token, err := NewToken()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	// 32 bytes base64-encode to 44 characters.
	assert.Len(t, token, len(TokenPrefix)+44)

	other, err := NewToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestVerifyTXTMatchAmongMultipleRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := NewMockResolver(ctrl)
	resolver.EXPECT().LookupTXT(gomock.Any(), "acme.test").
		Return([]string{"foo", "examduler-abc123=="}, nil)

	v := New(resolver, nil)
	result := v.VerifyTXT(context.Background(), "acme.test", "examduler-abc123==")
	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestVerifyTXTStripsScheme(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := NewMockResolver(ctrl)
	resolver.EXPECT().LookupTXT(gomock.Any(), "acme.test").
		Return([]string{"examduler-tok=="}, nil)

	v := New(resolver, nil)
	result := v.VerifyTXT(context.Background(), "https://acme.test", "examduler-tok==")
	assert.True(t, result.Success)
}

func TestVerifyTXTMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := NewMockResolver(ctrl)
	resolver.EXPECT().LookupTXT(gomock.Any(), "acme.test").
		Return([]string{"something-else"}, nil)

	v := New(resolver, nil)
	result := v.VerifyTXT(context.Background(), "acme.test", "examduler-tok==")
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusUnprocessableEntity, result.StatusCode)
	assert.Equal(t, ReasonMismatch, result.Reason)
}

func TestVerifyTXTNoRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := NewMockResolver(ctrl)
	resolver.EXPECT().LookupTXT(gomock.Any(), "acme.test").
		Return(nil, nil)

	v := New(resolver, nil)
	result := v.VerifyTXT(context.Background(), "acme.test", "examduler-tok==")
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusUnprocessableEntity, result.StatusCode)
	assert.Equal(t, ReasonNotFound, result.Reason)
}

func TestVerifyTXTResolutionFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := NewMockResolver(ctrl)
	resolver.EXPECT().LookupTXT(gomock.Any(), "acme.test").
		Return(nil, errors.New("no such host"))

	v := New(resolver, nil)
	result := v.VerifyTXT(context.Background(), "acme.test", "examduler-tok==")
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
	assert.Equal(t, ReasonUpstreamError, result.Reason)
}

func TestVerifyHTTPMatch(t *testing.T) {
	const token = "examduler-tok=="
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, WellKnownPath, r.URL.Path)
		// Trailing whitespace must be tolerated.
		_, _ = w.Write([]byte(token + "\n"))
	}))
	defer srv.Close()

	v := New(nil, srv.Client())
	result := v.VerifyHTTP(context.Background(), srv.URL, token)
	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestVerifyHTTPFileNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	v := New(nil, srv.Client())
	result := v.VerifyHTTP(context.Background(), srv.URL, "examduler-tok==")
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
	assert.Equal(t, ReasonNotFound, result.Reason)
}

func TestVerifyHTTPUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	v := New(nil, srv.Client())
	result := v.VerifyHTTP(context.Background(), srv.URL, "examduler-tok==")
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusFailedDependency, result.StatusCode)
	assert.Equal(t, ReasonUpstreamError, result.Reason)
}

func TestVerifyHTTPBodyMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("wrong-token"))
	}))
	defer srv.Close()

	v := New(nil, srv.Client())
	result := v.VerifyHTTP(context.Background(), srv.URL, "examduler-tok==")
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusBadRequest, result.StatusCode)
	assert.Equal(t, ReasonMismatch, result.Reason)
}

func TestVerifyHTTPNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // connection refused from here on

	v := New(nil, &http.Client{})
	result := v.VerifyHTTP(context.Background(), url, "examduler-tok==")
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
}

func TestCooldownNilClientAllowsEverything(t *testing.T) {
	var c *Cooldown
	ok, err := c.Allow(context.Background(), uuid.Nil, "acme.test")
	require.NoError(t, err)
	assert.True(t, ok)
}
