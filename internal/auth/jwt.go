package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject    = "sub"
	claimType       = "typ"
	claimServiceURL = "serviceurl"
	adminTokenType  = "admin"
)

// JWTMiddleware returns a JWT auth middleware for operator endpoints, configured for HS256 tokens.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// AdminSubjectFromContext extracts the operator subject from admin JWT claims.
func AdminSubjectFromContext(c echo.Context) (string, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	if claimString(claims, claimType) != adminTokenType {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid admin token")
	}
	subject := claimString(claims, claimSubject)
	if subject == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "subject missing")
	}
	return subject, nil
}

// GenerateAdminToken creates a signed JWT for an operator.
func GenerateAdminToken(subject, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, fmt.Errorf("subject is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject: subject,
		claimType:    adminTokenType,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ChannelToken holds the claims a channel presents when calling the messaging endpoint.
type ChannelToken struct {
	AppID      string
	Issuer     string
	ServiceURL string
}

// GenerateChannelToken creates an HS256 channel token, for self-hosted channels and local testing.
func GenerateChannelToken(info ChannelToken, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(info.AppID) == "" {
		return "", time.Time{}, fmt.Errorf("app id is required")
	}
	if strings.TrimSpace(info.Issuer) == "" {
		return "", time.Time{}, fmt.Errorf("issuer is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("hmac secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		"aud": info.AppID,
		"iss": info.Issuer,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": expiresAt.Unix(),
	}
	if strings.TrimSpace(info.ServiceURL) != "" {
		claims[claimServiceURL] = info.ServiceURL
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
