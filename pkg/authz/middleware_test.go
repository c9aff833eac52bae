package authz

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireGroup(t *testing.T) {
	reached := false
	handler := IdentityMiddleware()(RequireGroup(GroupAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Remote-User", "9")
	req.Header.Set("X-Remote-Group", "ops,admin")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.True(t, reached)

	reached = false
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Remote-User", "10")
	req.Header.Set("X-Remote-Group", "ops")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.False(t, reached)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "forbidden", body["error"])
	assert.Contains(t, body["message"], `"10"`)
}

func TestRequireGroupWithoutIdentity(t *testing.T) {
	handler := RequireGroup(GroupAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
