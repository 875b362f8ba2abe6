package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/velikanov/digital_shop/internal/models"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/register", map[string]string{
		"username": "buyer",
		"password": "password",
	})
	require.NoError(t, env.Auth.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	require.Equal(t, "buyer", user.Username)
	require.Equal(t, "user", user.Role)
	require.NotEmpty(t, user.ID)

	// the hash never leaves the server
	require.NotContains(t, rec.Body.String(), "password_hash")
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)

	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/register", map[string]string{
		"username": "buyer", "password": "password",
	})
	require.NoError(t, env.Auth.Register(c))

	_, c2 := env.doJSONRequest(http.MethodPost, "/api/v1/register", map[string]string{
		"username": "buyer", "password": "other",
	})
	err := env.Auth.Register(c2)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusConflict, he.Code)
}

func TestLoginSetsAccessCookie(t *testing.T) {
	env := newTestEnv(t)
	ck := loginAs(t, env, "buyer", "user")
	require.NotEmpty(t, ck.Value)
	require.True(t, ck.HttpOnly)
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	loginAs(t, env, "buyer", "user")

	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/login", map[string]string{
		"username": "buyer", "password": "wrong",
	})
	err := env.Auth.Login(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	handler := RequireLogin(env.JWTSecret)(env.Auth.Me)

	_, c := env.doJSONRequest(http.MethodGet, "/api/v1/me", nil)
	err := handler(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusUnauthorized, he.Code)

	ck := loginAs(t, env, "buyer", "user")
	rec, c2 := env.doJSONRequest(http.MethodGet, "/api/v1/me", nil, ck)
	require.NoError(t, handler(c2))
	require.Equal(t, http.StatusOK, rec.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	require.Equal(t, "buyer", user.Username)
}

func TestAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	handler := AdminOnly(env.JWTSecret)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, c := env.doJSONRequest(http.MethodPost, "/api/v1/admin/products", nil)
		err := handler(c)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok, "expected HTTPError")
		require.Equal(t, http.StatusUnauthorized, he.Code)
	})

	t.Run("plain user", func(t *testing.T) {
		ck := loginAs(t, env, "user1", "user")
		_, c := env.doJSONRequest(http.MethodPost, "/api/v1/admin/products", nil, ck)
		err := handler(c)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok, "expected HTTPError")
		require.Equal(t, http.StatusForbidden, he.Code)
	})

	t.Run("admin", func(t *testing.T) {
		ck := loginAs(t, env, "admin1", "admin")
		rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/admin/products", nil, ck)
		require.NoError(t, handler(c))
		require.Equal(t, http.StatusOK, rec.Code)
	})
}
