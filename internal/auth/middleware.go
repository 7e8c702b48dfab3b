package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tenantsec/keygate/internal/apikey"
	"github.com/tenantsec/keygate/internal/observability"
)

// TenantHeader is the header carrying the tenant ID on routes that are
// public but still tenant-addressed (key creation).
const TenantHeader = "X-Tenant-Id"

// unauthorizedBody is the single response body for every negative
// authentication outcome. Not-found, revoked, and expired credentials are
// deliberately indistinguishable to the caller.
var unauthorizedBody = gin.H{
	"success": false,
	"error":   "Unauthorized - Invalid or missing API key",
}

// Validator validates a plaintext credential and returns the key identity,
// or (nil, nil) when the credential is not valid.
type Validator interface {
	Validate(ctx context.Context, plaintext string) (*apikey.KeyInfo, error)
}

// Gate authenticates requests with bearer API keys.
type Gate struct {
	validator Validator
	extractor *BearerExtractor
	logger    observability.Logger
}

// GateOption is a functional option for the Gate.
type GateOption func(*Gate)

// WithGateLogger sets the logger for the gate.
func WithGateLogger(logger observability.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate creates a new authentication gate delegating to validator.
func NewGate(validator Validator, opts ...GateOption) *Gate {
	g := &Gate{
		validator: validator,
		extractor: NewBearerExtractor(),
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequireAuth returns a middleware that authenticates the request with a
// bearer API key and attaches the resulting identity to the request
// context. Invalid, revoked, expired, and unknown credentials all produce
// the same generic 401; storage failures produce a 500 that is logged in
// full but never detailed to the client.
func (g *Gate) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := g.extractor.Extract(c.Request)
		if err != nil {
			// Rejected before any hashing or store access.
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorizedBody)
			return
		}

		info, err := g.validator.Validate(c.Request.Context(), token)
		if err != nil {
			// A storage failure is not an authorization decision: fail
			// closed with a 500 so it stays distinguishable in logs and
			// monitoring from a plain bad credential.
			g.logger.Error("authentication failed due to storage error",
				observability.String("path", c.Request.URL.Path),
				observability.String("method", c.Request.Method),
				observability.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "Internal server error during authentication",
			})
			return
		}
		if info == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorizedBody)
			return
		}

		identity := &Identity{
			KeyID:       info.ID,
			Name:        info.Name,
			TenantID:    info.TenantID,
			Permissions: info.Permissions,
		}
		ctx := ContextWithIdentity(c.Request.Context(), identity)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireTenant returns a middleware that resolves the tenant from the
// X-Tenant-Id header. Used on the public key-creation route, where the
// caller has no key yet.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(TenantHeader)
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Unauthorized - tenantId not found",
			})
			return
		}

		ctx := ContextWithTenant(c.Request.Context(), tenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
