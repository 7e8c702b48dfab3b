// Package auth provides the request-boundary authentication gate for
// keygate. It extracts a presented bearer credential, delegates validation
// to the key lifecycle manager, and attaches the resulting tenant identity
// to the request context.
package auth

import (
	"errors"
	"net/http"
	"strings"
)

// Common errors for credential extraction.
var (
	// ErrMissingAuthHeader indicates the Authorization header is absent.
	ErrMissingAuthHeader = errors.New("missing Authorization header")

	// ErrMalformedAuthHeader indicates the Authorization header does not
	// have the exact "Bearer <token>" shape.
	ErrMalformedAuthHeader = errors.New("malformed Authorization header")
)

// bearerScheme is the only accepted authorization scheme.
const bearerScheme = "Bearer "

// BearerExtractor extracts a bearer credential from the Authorization
// header. It requires the exact "Bearer <token>" shape; anything else is
// rejected before any hashing or store access happens, with an error that
// carries no information about why.
type BearerExtractor struct{}

// NewBearerExtractor creates a new BearerExtractor.
func NewBearerExtractor() *BearerExtractor {
	return &BearerExtractor{}
}

// Extract returns the bearer token from the request's Authorization
// header.
func (e *BearerExtractor) Extract(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingAuthHeader
	}

	if !strings.HasPrefix(header, bearerScheme) {
		return "", ErrMalformedAuthHeader
	}

	token := strings.TrimSpace(header[len(bearerScheme):])
	if token == "" {
		return "", ErrMalformedAuthHeader
	}

	return token, nil
}
