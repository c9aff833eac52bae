package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityFromContextMissing(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)
}

func TestIdentityMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		user       string
		groups     string
		wantUser   string
		wantID     int64
		wantGroups []string
	}{
		{name: "numeric user with groups", user: "42", groups: "admin,ops", wantUser: "42", wantID: 42, wantGroups: []string{"admin", "ops"}},
		{name: "named user", user: "alice", wantUser: "alice"},
		{name: "missing user", groups: "ops", wantUser: "anonymous", wantGroups: []string{"ops"}},
		{name: "whitespace user", user: "   ", wantUser: "anonymous"},
		{name: "negative id", user: "-3", wantUser: "-3"},
		{name: "groups with blanks", user: "7", groups: " admin , ,ops,", wantUser: "7", wantID: 7, wantGroups: []string{"admin", "ops"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Identity
			var ok bool
			handler := IdentityMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, ok = IdentityFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.user != "" {
				req.Header.Set("X-Remote-User", tt.user)
			}
			if tt.groups != "" {
				req.Header.Set("X-Remote-Group", tt.groups)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			require.True(t, ok)
			assert.Equal(t, tt.wantUser, got.User)
			assert.Equal(t, tt.wantID, got.UserID)
			assert.Equal(t, tt.wantGroups, got.Groups)
		})
	}
}
