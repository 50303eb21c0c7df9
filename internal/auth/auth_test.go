package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsanders-rh/modelctl/internal/auth"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestAuth_Tokens(t *testing.T) {
	a := auth.NewAuth(secret, time.Hour)

	t.Run("issued tokens validate with their subject and role", func(t *testing.T) {
		token, err := a.IssueToken("ci-bot", types.RoleOperator)
		require.NoError(t, err)

		claims, err := a.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "ci-bot", claims.Subject)
		assert.Equal(t, string(types.RoleOperator), claims.Role)
		assert.True(t, claims.ExpiresAt.After(time.Now()))
	})

	t.Run("unknown roles are refused", func(t *testing.T) {
		_, err := a.IssueToken("ci-bot", types.Role("root"))
		assert.Error(t, err)
	})

	t.Run("tokens signed with another secret are rejected", func(t *testing.T) {
		other := auth.NewAuth("fedcba9876543210fedcba9876543210", time.Hour)
		token, err := other.IssueToken("ci-bot", types.RoleViewer)
		require.NoError(t, err)

		_, err = a.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("expired tokens are rejected", func(t *testing.T) {
		expired := auth.NewAuth(secret, -time.Minute)
		token, err := expired.IssueToken("ci-bot", types.RoleViewer)
		require.NoError(t, err)

		_, err = a.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := a.ValidateToken("not-a-token")
		assert.Error(t, err)
	})
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return http.StatusOK
	}
	var httpErr *echo.HTTPError
	require.True(t, errors.As(err, &httpErr), "unexpected error %v", err)
	return httpErr.Code
}

func TestMiddleware(t *testing.T) {
	a := auth.NewAuth(secret, time.Hour)
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	call := func(t *testing.T, h echo.HandlerFunc, method, header string) (int, echo.Context) {
		req := httptest.NewRequest(method, "/api/v1/deployments", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		c := e.NewContext(req, httptest.NewRecorder())
		return statusOf(t, h(c)), c
	}
	bearer := func(role types.Role) string {
		token, err := a.IssueToken("svc-"+string(role), role)
		require.NoError(t, err)
		return "Bearer " + token
	}

	operatorOnly := auth.RequireAuth(a)(auth.RequireOperator()(ok))
	adminOnly := auth.RequireAuth(a)(auth.RequireAdmin()(ok))

	t.Run("missing and malformed headers are unauthorized", func(t *testing.T) {
		code, _ := call(t, operatorOnly, http.MethodGet, "")
		assert.Equal(t, http.StatusUnauthorized, code)

		code, _ = call(t, operatorOnly, http.MethodGet, "Token abc")
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("claims are stored on the context", func(t *testing.T) {
		code, c := call(t, operatorOnly, http.MethodGet, bearer(types.RoleViewer))
		require.Equal(t, http.StatusOK, code)

		claims, err := auth.GetClaims(c)
		require.NoError(t, err)
		assert.Equal(t, "svc-viewer", claims.Subject)
	})

	t.Run("viewers cannot mutate", func(t *testing.T) {
		code, _ := call(t, operatorOnly, http.MethodPost, bearer(types.RoleViewer))
		assert.Equal(t, http.StatusForbidden, code)

		code, _ = call(t, operatorOnly, http.MethodPost, bearer(types.RoleOperator))
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("only admins pass the admin gate", func(t *testing.T) {
		code, _ := call(t, adminOnly, http.MethodPost, bearer(types.RoleOperator))
		assert.Equal(t, http.StatusForbidden, code)

		code, _ = call(t, adminOnly, http.MethodPost, bearer(types.RoleAdmin))
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("claims are absent without the auth middleware", func(t *testing.T) {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		_, err := auth.GetClaims(c)
		assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
	})
}
