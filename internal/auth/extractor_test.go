package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequestWithAuth(t *testing.T, header string) *http.Request {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, "/api/api-keys", nil)
	require.NoError(t, err)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func TestBearerExtractor_Extract(t *testing.T) {
	t.Parallel()

	extractor := NewBearerExtractor()

	tests := []struct {
		name          string
		header        string
		expectedToken string
		expectedError error
	}{
		{
			name:          "valid bearer token",
			header:        "Bearer sk_live_abc123",
			expectedToken: "sk_live_abc123",
		},
		{
			name:          "token with surrounding whitespace",
			header:        "Bearer   sk_live_abc123  ",
			expectedToken: "sk_live_abc123",
		},
		{
			name:          "missing header",
			header:        "",
			expectedError: ErrMissingAuthHeader,
		},
		{
			name:          "wrong scheme",
			header:        "Token sk_live_abc123",
			expectedError: ErrMalformedAuthHeader,
		},
		{
			name:          "basic scheme",
			header:        "Basic dXNlcjpwYXNz",
			expectedError: ErrMalformedAuthHeader,
		},
		{
			name:          "lowercase bearer",
			header:        "bearer sk_live_abc123",
			expectedError: ErrMalformedAuthHeader,
		},
		{
			name:          "scheme without token",
			header:        "Bearer ",
			expectedError: ErrMalformedAuthHeader,
		},
		{
			name:          "scheme with whitespace token",
			header:        "Bearer    ",
			expectedError: ErrMalformedAuthHeader,
		},
		{
			name:          "bare token without scheme",
			header:        "sk_live_abc123",
			expectedError: ErrMalformedAuthHeader,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			token, err := extractor.Extract(newRequestWithAuth(t, tt.header))

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Empty(t, token)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedToken, token)
			}
		})
	}
}
