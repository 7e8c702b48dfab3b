package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tenantsec/keygate/internal/apikey"
	"github.com/tenantsec/keygate/internal/auth"
	"github.com/tenantsec/keygate/internal/observability"
)

// keyHandler serves the API key management endpoints.
type keyHandler struct {
	manager *apikey.Manager
	logger  observability.Logger
}

func newKeyHandler(manager *apikey.Manager, logger observability.Logger) *keyHandler {
	return &keyHandler{
		manager: manager,
		logger:  logger,
	}
}

// createKeyRequest is the body for POST /api/api-keys.
type createKeyRequest struct {
	Name        string            `json:"name"`
	ExpiresAt   *time.Time        `json:"expiresAt"`
	Permissions []string          `json:"permissions"`
	Metadata    map[string]string `json:"metadata"`
}

// keySummary is the compact record shape returned by mutating endpoints.
type keySummary struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	KeyPrefix string        `json:"keyPrefix"`
	Status    apikey.Status `json:"status"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func summarize(key *apikey.Key) keySummary {
	return keySummary{
		ID:        key.ID,
		Name:      key.Name,
		KeyPrefix: key.KeyPrefix,
		Status:    key.Status,
		UpdatedAt: key.UpdatedAt,
	}
}

// create issues a new API key. This is the only response that ever
// contains the plaintext credential.
func (h *keyHandler) create(c *gin.Context) {
	tenantID, ok := auth.TenantFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Unauthorized - tenantId not found",
		})
		return
	}

	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request body",
		})
		return
	}

	key, plaintext, err := h.manager.Issue(c.Request.Context(), apikey.IssueParams{
		Name:        req.Name,
		TenantID:    tenantID,
		ExpiresAt:   req.ExpiresAt,
		Permissions: req.Permissions,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeError(c, err, "creating API key")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"apiKey":  plaintext,
		"apiKeyData": gin.H{
			"id":        key.ID,
			"name":      key.Name,
			"keyPrefix": key.KeyPrefix,
			"status":    key.Status,
			"expiresAt": key.ExpiresAt,
			"createdAt": key.CreatedAt,
		},
	})
}

// list returns all keys for the authenticated tenant, newest first. The
// digest is excluded at the serialization boundary.
func (h *keyHandler) list(c *gin.Context) {
	tenantID, ok := auth.TenantFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Unauthorized - tenantId not found",
		})
		return
	}

	keys, err := h.manager.List(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err, "fetching API keys")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"apiKeys": keys,
	})
}

// revoke marks a key revoked.
func (h *keyHandler) revoke(c *gin.Context) {
	tenantID, ok := auth.TenantFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Unauthorized - tenantId not found",
		})
		return
	}

	key, err := h.manager.Revoke(c.Request.Context(), c.Param("id"), tenantID)
	if err != nil {
		h.writeError(c, err, "revoking API key")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"apiKey":  summarize(key),
	})
}

// update applies the safe-update path (name and metadata only).
func (h *keyHandler) update(c *gin.Context) {
	tenantID, ok := auth.TenantFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Unauthorized - tenantId not found",
		})
		return
	}

	var params apikey.UpdateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request body",
		})
		return
	}

	key, err := h.manager.Update(c.Request.Context(), c.Param("id"), tenantID, params)
	if err != nil {
		h.writeError(c, err, "updating API key")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"apiKey":  key,
	})
}

// remove permanently deletes a key.
func (h *keyHandler) remove(c *gin.Context) {
	tenantID, ok := auth.TenantFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Unauthorized - tenantId not found",
		})
		return
	}

	key, err := h.manager.Delete(c.Request.Context(), c.Param("id"), tenantID)
	if err != nil {
		h.writeError(c, err, "deleting API key")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"apiKey":  summarize(key),
	})
}

// writeError maps domain errors to HTTP responses. Unexpected errors are
// logged with their full cause and answered with a generic message.
func (h *keyHandler) writeError(c *gin.Context, err error, context string) {
	switch {
	case apikey.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
	case errors.Is(err, apikey.ErrKeyNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "API key not found",
		})
	case errors.Is(err, apikey.ErrDuplicateDigest):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error":   "Duplicate entry",
		})
	default:
		h.logger.WithContext(c.Request.Context()).Error("unexpected error "+context,
			observability.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Something went wrong",
		})
	}
}
