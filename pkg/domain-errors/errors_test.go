package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesCode(t *testing.T) {
	err := New(CodeForbidden, "requester is not a verified member")
	assert.True(t, Is(err, CodeForbidden))
	assert.False(t, Is(err, CodeNotFound))
}

func TestIsMatchesWrappedCode(t *testing.T) {
	inner := New(CodeConflict, "domain already verified elsewhere")
	outer := fmt.Errorf("update organization: %w", inner)
	assert.True(t, Is(outer, CodeConflict))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("pq: deadlock detected")
	err := Wrap(cause, CodePersistence, "transaction failed")
	require.ErrorIs(t, err, cause)
	assert.Equal(t, CodePersistence, CodeOf(err))
	assert.Contains(t, err.Error(), "deadlock")
}

func TestCodeOfNonDomainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, "an internal server error occurred", MessageOf(errors.New("boom")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:  http.StatusBadRequest,
		CodeNotFound:    http.StatusNotFound,
		CodeForbidden:   http.StatusForbidden,
		CodeConflict:    http.StatusConflict,
		CodeRateLimited: http.StatusTooManyRequests,
		CodeTimeout:     http.StatusGatewayTimeout,
		CodePersistence: http.StatusInternalServerError,
		CodeInternal:    http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}
