package handler

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/srgjo27/session_reservation/internal/core/domain"
)

const requesterKey = "requester"

// Claims carries the caller's company and capabilities next to the standard
// subject claim.
type Claims struct {
	CompanyID    string   `json:"company"`
	Capabilities []string `json:"caps,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuth validates an HS256 bearer token and stores the caller as a
// domain.Requester on the context.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			}

			var claims Claims
			tok, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &claims, func(*jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			}
			if claims.Subject == "" || claims.CompanyID == "" {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "token is missing subject or company"})
			}

			c.Set(requesterKey, domain.Requester{
				CompanyID:    claims.CompanyID,
				RequesterID:  claims.Subject,
				Capabilities: claims.Capabilities,
			})
			return next(c)
		}
	}
}

// RequireCapability rejects callers whose token lacks capability.
func RequireCapability(capability string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r, ok := requesterFrom(c)
			if !ok || !slices.Contains(r.Capabilities, capability) {
				return c.JSON(http.StatusForbidden, errorResponse{Error: "forbidden"})
			}
			return next(c)
		}
	}
}

func requesterFrom(c echo.Context) (domain.Requester, bool) {
	r, ok := c.Get(requesterKey).(domain.Requester)
	return r, ok
}

// SignToken issues a token JWTAuth accepts. Used by tooling and tests.
func SignToken(secret string, r domain.Requester, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		CompanyID:    r.CompanyID,
		Capabilities: r.Capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   r.RequesterID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
