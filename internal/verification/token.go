// Package verification proves that a claimant controls a DNS domain, either
// through a TXT record or an HTTP well-known file challenge. Checks are
// pure: flipping the domain's verified flag and promoting users is the
// caller's job, and only after a successful result.
package verification

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenPrefix marks verification tokens as ours, so they are recognizable
// when inspected in third-party DNS records or well-known files.
const TokenPrefix = "examduler-"

const tokenBytes = 32

// NewToken returns a fresh verification token: the product prefix plus 32
// cryptographically random bytes, base64 encoded.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}
	return TokenPrefix + base64.StdEncoding.EncodeToString(buf), nil
}
