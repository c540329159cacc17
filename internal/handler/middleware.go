package handler

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/sumire/channelsync/internal/domain"
)

const contextKeySession = "session"

// RequestLogger logs each HTTP request with structured fields.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			slog.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)

			return err
		}
	}
}

// SessionAuth validates the dashboard's Bearer token and injects the session
// identity into echo context. The token is issued by the admin backend and
// verified here with the shared HMAC secret.
func SessionAuth(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return domain.ErrUnauthorized
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				return domain.ErrUnauthorized
			}

			session, err := parseSessionToken(parts[1], secret)
			if err != nil {
				return domain.ErrUnauthorized
			}

			c.Set(contextKeySession, session)
			return next(c)
		}
	}
}

// GetSession extracts the authenticated session from echo context.
func GetSession(c echo.Context) (domain.Session, bool) {
	session, ok := c.Get(contextKeySession).(domain.Session)
	return session, ok
}

func parseSessionToken(tokenString string, secret []byte) (domain.Session, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("parse session token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return domain.Session{}, domain.ErrUnauthorized
	}

	userID, err := claims.GetSubject()
	if err != nil || userID == "" {
		return domain.Session{}, domain.ErrUnauthorized
	}

	role, _ := claims["role"].(string)
	return domain.Session{UserID: userID, Role: domain.Role(role)}, nil
}
