// Package jwtauth issues and checks the access tokens handlers rely on.
// Identity verification beyond the token itself lives outside this service.
package jwtauth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const CookieName = "accessToken"

// NewToken signs an HS256 access token for the given subject and role.
func NewToken(secret []byte, subject uint, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// NewCookie wraps a token in the http-only cookie handlers set on login.
func NewCookie(token string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func parse(c echo.Context, secret []byte) (jwt.MapClaims, error) {
	cookie, err := c.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing auth cookie")
	}

	token, err := jwt.Parse(cookie.Value, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// GetID extracts the authenticated subject id from the request cookie.
func GetID(c echo.Context, secret []byte) (uint, error) {
	claims, err := parse(c, secret)
	if err != nil {
		return 0, err
	}
	sub, ok := claims["sub"].(float64)
	if !ok {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid subject claim")
	}
	return uint(sub), nil
}

// RequireCustomer rejects requests without a valid customer token and puts
// the customer id into the echo context under "customer_id".
func RequireCustomer(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := parse(c, secret)
			if err != nil {
				return err
			}
			if role, _ := claims["role"].(string); role != "customer" {
				return echo.NewHTTPError(http.StatusForbidden, "customer access required")
			}
			sub, ok := claims["sub"].(float64)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject claim")
			}
			c.Set("customer_id", uint(sub))
			return next(c)
		}
	}
}

// RequireAdmin rejects requests without a valid admin token.
func RequireAdmin(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := parse(c, secret)
			if err != nil {
				return err
			}
			if role, _ := claims["role"].(string); role != "admin" {
				return echo.NewHTTPError(http.StatusForbidden, "admin access required")
			}
			sub, ok := claims["sub"].(float64)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject claim")
			}
			c.Set("admin_id", uint(sub))
			return next(c)
		}
	}
}

// CustomerID reads the id RequireCustomer stored on the context.
func CustomerID(c echo.Context) (uint, error) {
	id, ok := c.Get("customer_id").(uint)
	if !ok {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return id, nil
}
