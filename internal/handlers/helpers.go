package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/velikanov/digital_shop/internal/service"
)

// Publisher is the event sink handlers report lifecycle events to.
// *mykafka.Producer satisfies it; tests leave it nil.
type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event interface{}) error
}

func publish(c echo.Context, p Publisher, topic string, event map[string]any) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := p.PublishEvent(ctx, topic, fmt.Sprint(event["order_id"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

func CreateCookie(name, value, path string, expTime time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expTime,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// httpError maps service sentinels onto the HTTP error taxonomy.
func httpError(err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInsufficientStock):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrGateway):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// currentUser returns the authenticated user's id and role from the
// access cookie, or (nil, "") for anonymous requests.
func currentUser(c echo.Context, jwtSecret []byte) (*uint, string) {
	cookie, err := c.Cookie("accessToken")
	if err != nil || cookie.Value == "" {
		return nil, ""
	}
	token, err := jwt.Parse(cookie.Value, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ""
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ""
	}
	subRaw, ok := claims["sub"].(float64)
	if !ok {
		return nil, ""
	}
	id := uint(subRaw)
	role, _ := claims["role"].(string)
	return &id, role
}

// RequireLogin rejects anonymous requests and stores identity on the context.
func RequireLogin(jwtSecret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, role := currentUser(c, jwtSecret)
			if id == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid access token")
			}
			c.Set("userID", *id)
			c.Set("role", role)
			return next(c)
		}
	}
}

// AdminOnly additionally requires the admin role.
func AdminOnly(jwtSecret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, role := currentUser(c, jwtSecret)
			if id == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid access token")
			}
			if role != "admin" {
				return echo.NewHTTPError(http.StatusForbidden, "admin role required")
			}
			c.Set("userID", *id)
			c.Set("role", role)
			return next(c)
		}
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func parseUintParam(c echo.Context, name string) (uint, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(v), nil
}
