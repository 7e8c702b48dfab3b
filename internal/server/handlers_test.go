package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantsec/keygate/internal/apikey"
	"github.com/tenantsec/keygate/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*gin.Engine, *apikey.MemoryStore) {
	t.Helper()

	store := apikey.NewMemoryStore()
	manager, err := apikey.NewManager(store)
	require.NoError(t, err)

	srv := New(config.Default(), manager, apikey.GetSharedMetrics())
	return srv.Engine(), store
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

// createKey issues a key over HTTP and returns its ID and plaintext.
func createKey(t *testing.T, engine *gin.Engine, tenantID, name string) (string, string) {
	t.Helper()

	w := doJSON(t, engine, http.MethodPost, "/api/api-keys",
		map[string]any{"name": name},
		map[string]string{"X-Tenant-Id": tenantID},
	)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Success    bool   `json:"success"`
		APIKey     string `json:"apiKey"`
		APIKeyData struct {
			ID string `json:"id"`
		} `json:"apiKeyData"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.APIKey)
	require.NotEmpty(t, resp.APIKeyData.ID)
	return resp.APIKeyData.ID, resp.APIKey
}

func bearer(plaintext string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + plaintext}
}

func TestCreateKey(t *testing.T) {
	t.Parallel()

	engine, _ := newTestServer(t)

	expires := time.Now().UTC().Add(24 * time.Hour).Format(time.RFC3339)
	w := doJSON(t, engine, http.MethodPost, "/api/api-keys",
		map[string]any{
			"name":        "CI Pipeline",
			"expiresAt":   expires,
			"permissions": []string{"read"},
			"metadata":    map[string]string{"env": "ci"},
		},
		map[string]string{"X-Tenant-Id": "tenant-a"},
	)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])

	plaintext, ok := resp["apiKey"].(string)
	require.True(t, ok)
	assert.Contains(t, plaintext, apikey.SecretPrefix)

	data, ok := resp["apiKeyData"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CI Pipeline", data["name"])
	assert.Equal(t, "active", data["status"])
	assert.Equal(t, apikey.DisplayPrefix(plaintext), data["keyPrefix"])
	assert.NotEmpty(t, data["id"])
	assert.NotEmpty(t, data["expiresAt"])

	// The digest never appears anywhere in the response.
	assert.NotContains(t, w.Body.String(), "digest")
}

func TestCreateKey_MissingTenant(t *testing.T) {
	t.Parallel()

	engine, store := newTestServer(t)

	w := doJSON(t, engine, http.MethodPost, "/api/api-keys",
		map[string]any{"name": "No Tenant"}, nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "tenantId not found")
	assert.Equal(t, 0, store.Count())
}

func TestCreateKey_InvalidName(t *testing.T) {
	t.Parallel()

	engine, store := newTestServer(t)

	w := doJSON(t, engine, http.MethodPost, "/api/api-keys",
		map[string]any{"name": "   "},
		map[string]string{"X-Tenant-Id": "tenant-a"},
	)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "name is required")
	assert.Equal(t, 0, store.Count())
}

func TestListKeys(t *testing.T) {
	t.Parallel()

	engine, _ := newTestServer(t)

	idA, plaintextA := createKey(t, engine, "tenant-a", "Key A")
	idB, _ := createKey(t, engine, "tenant-b", "Key B")

	w := doJSON(t, engine, http.MethodGet, "/api/api-keys", nil, bearer(plaintextA))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		APIKeys []struct {
			ID       string `json:"id"`
			TenantID string `json:"tenantId"`
		} `json:"apiKeys"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)

	// Only the authenticated tenant's keys are listed.
	require.Len(t, resp.APIKeys, 1)
	assert.Equal(t, idA, resp.APIKeys[0].ID)
	assert.NotEqual(t, idB, resp.APIKeys[0].ID)

	assert.NotContains(t, w.Body.String(), "digest")
}

func TestListKeys_Unauthorized(t *testing.T) {
	t.Parallel()

	engine, _ := newTestServer(t)
	createKey(t, engine, "tenant-a", "Key A")

	w := doJSON(t, engine, http.MethodGet, "/api/api-keys", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid or missing API key")

	w = doJSON(t, engine, http.MethodGet, "/api/api-keys", nil, bearer("sk_live_bogus"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRevokeKey(t *testing.T) {
	t.Parallel()

	engine, _ := newTestServer(t)

	id, plaintext := createKey(t, engine, "tenant-a", "Key A")

	w := doJSON(t, engine, http.MethodPatch, "/api/api-keys/"+id+"/revoke", nil, bearer(plaintext))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		APIKey  struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"apiKey"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, id, resp.APIKey.ID)
	assert.Equal(t, "revoked", resp.APIKey.Status)

	// The revoked credential stops authenticating immediately.
	w = doJSON(t, engine, http.MethodGet, "/api/api-keys", nil, bearer(plaintext))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRevokeKey_CrossTenant(t *testing.T) {
	t.Parallel()

	engine, _ := newTestServer(t)

	idA, plaintextA := createKey(t, engine, "tenant-a", "Key A")
	_, plaintextB := createKey(t, engine, "tenant-b", "Key B")

	// Tenant B cannot revoke tenant A's key; the response does not reveal
	// that the key exists.
	w := doJSON(t, engine, http.MethodPatch, "/api/api-keys/"+idA+"/revoke", nil, bearer(plaintextB))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "API key not found")

	// Tenant A's key still works.
	w = doJSON(t, engine, http.MethodGet, "/api/api-keys", nil, bearer(plaintextA))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateKey(t *testing.T) {
	t.Parallel()

	engine, _ := newTestServer(t)

	id, plaintext := createKey(t, engine, "tenant-a", "Key A")

	w := doJSON(t, engine, http.MethodPatch, "/api/api-keys/"+id,
		map[string]any{"name": "Renamed", "metadata": map[string]string{"env": "prod"}},
		bearer(plaintext))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		APIKey  struct {
			ID       string            `json:"id"`
			Name     string            `json:"name"`
			Status   string            `json:"status"`
			Metadata map[string]string `json:"metadata"`
		} `json:"apiKey"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Renamed", resp.APIKey.Name)
	assert.Equal(t, "prod", resp.APIKey.Metadata["env"])
	assert.Equal(t, "active", resp.APIKey.Status)
	assert.NotContains(t, w.Body.String(), "digest")
}

func TestUpdateKey_ForbiddenFields(t *testing.T) {
	t.Parallel()

	engine, _ := newTestServer(t)

	id, plaintext := createKey(t, engine, "tenant-a", "Key A")

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "status", body: map[string]any{"status": "revoked"}},
		{name: "expiresAt", body: map[string]any{"expiresAt": "2020-01-01T00:00:00Z"}},
		{name: "permissions", body: map[string]any{"permissions": []string{"admin"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, engine, http.MethodPatch, "/api/api-keys/"+id, tt.body, bearer(plaintext))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "cannot update")
		})
	}

	// The rejected updates left the credential fully working.
	w := doJSON(t, engine, http.MethodGet, "/api/api-keys", nil, bearer(plaintext))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateKey_NotFound(t *testing.T) {
	t.Parallel()

	engine, _ := newTestServer(t)

	_, plaintext := createKey(t, engine, "tenant-a", "Key A")

	w := doJSON(t, engine, http.MethodPatch, "/api/api-keys/missing-id",
		map[string]any{"name": "Renamed"}, bearer(plaintext))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "API key not found")
}

func TestDeleteKey(t *testing.T) {
	t.Parallel()

	engine, store := newTestServer(t)

	id, plaintext := createKey(t, engine, "tenant-a", "Key A")
	_, other := createKey(t, engine, "tenant-a", "Key B")

	w := doJSON(t, engine, http.MethodDelete, "/api/api-keys/"+id, nil, bearer(other))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.Count())

	// The deleted credential no longer authenticates and a repeat delete
	// reports not found.
	w = doJSON(t, engine, http.MethodGet, "/api/api-keys", nil, bearer(plaintext))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, engine, http.MethodDelete, "/api/api-keys/"+id, nil, bearer(other))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	engine, _ := newTestServer(t)

	w := doJSON(t, engine, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	engine, _ := newTestServer(t)

	// Drive at least one validation so domain metrics have samples.
	_, plaintext := createKey(t, engine, "tenant-a", "Key A")
	doJSON(t, engine, http.MethodGet, "/api/api-keys", nil, bearer(plaintext))

	w := doJSON(t, engine, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "keygate_apikey_validation_total")
}

func TestRequestIDEcho(t *testing.T) {
	t.Parallel()

	engine, _ := newTestServer(t)

	w := doJSON(t, engine, http.MethodGet, "/healthz", nil,
		map[string]string{"X-Request-Id": "req-123"})
	assert.Equal(t, "req-123", w.Header().Get("X-Request-Id"))

	w = doJSON(t, engine, http.MethodGet, "/healthz", nil, nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}
