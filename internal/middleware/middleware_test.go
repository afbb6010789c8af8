package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedEngine(tokens auth.TokenManager, role string) *gin.Engine {
	r := gin.New()
	mw := NewAuthMiddleware(tokens)
	r.GET("/p", append(mw.Protect(role), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.JSON(http.StatusOK, gin.H{"clinic": claims.ClinicNumber})
	})...)
	return r
}

func TestProtect(t *testing.T) {
	tokens := auth.NewTokenManager("secret", "clinic-queue", time.Hour)
	callerToken, _, err := tokens.Issue(auth.RoleCaller, 4)
	require.NoError(t, err)
	adminToken, _, err := tokens.Issue(auth.RoleAdmin, 0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + adminToken, http.StatusForbidden},
		{"caller", "Bearer " + callerToken, http.StatusOK},
		{"lowercase scheme", "bearer " + callerToken, http.StatusOK},
	}

	r := protectedEngine(tokens, auth.RoleCaller)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestProtectExposesClinic(t *testing.T) {
	tokens := auth.NewTokenManager("secret", "clinic-queue", time.Hour)
	token, _, err := tokens.Issue(auth.RoleCaller, 12)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	protectedEngine(tokens, auth.RoleCaller).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"clinic":12}`, w.Body.String())
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(PerMinute(2))

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "limits are kept per address")
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/x", NewRateLimiter(PerMinute(1)).RateLimit(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		return w
	}

	assert.Equal(t, http.StatusNoContent, do().Code)
	w := do()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}
