// Package auth verifies channel credentials on inbound webhook requests, tracks
// the service origins those requests prove, and issues operator tokens.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/memohai/visionbot/internal/activity"
)

const defaultClockSkew = 5 * time.Minute

// Options configures an Authenticator.
type Options struct {
	// AppID is the bot's application id; tokens must name it as audience.
	// An empty AppID disables authentication (local emulator mode).
	AppID     string
	Issuers   []string
	Keys      KeySource
	Trusted   *TrustedOrigins
	ClockSkew time.Duration
}

// Authenticator validates the bearer token of inbound channel requests.
type Authenticator struct {
	appID   string
	issuers []string
	keys    KeySource
	trusted *TrustedOrigins
	leeway  time.Duration
	logger  *slog.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(log *slog.Logger, opts Options) *Authenticator {
	if log == nil {
		log = slog.Default()
	}
	trusted := opts.Trusted
	if trusted == nil {
		trusted = NewTrustedOrigins()
	}
	leeway := opts.ClockSkew
	if leeway <= 0 {
		leeway = defaultClockSkew
	}
	issuers := make([]string, 0, len(opts.Issuers))
	for _, iss := range opts.Issuers {
		if iss = strings.TrimSpace(iss); iss != "" {
			issuers = append(issuers, iss)
		}
	}
	return &Authenticator{
		appID:   strings.TrimSpace(opts.AppID),
		issuers: issuers,
		keys:    opts.Keys,
		trusted: trusted,
		leeway:  leeway,
		logger:  log.With(slog.String("component", "authenticator")),
	}
}

// Enabled reports whether requests are verified.
func (a *Authenticator) Enabled() bool {
	return a.appID != ""
}

// Trusted returns the origin set this authenticator records into.
func (a *Authenticator) Trusted() *TrustedOrigins {
	return a.trusted
}

// Authenticate verifies the request credential against the configured app id
// and, on success, trusts the service origin of every activity.
// Nothing is recorded when it returns false.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request, activities []*activity.Activity) bool {
	if !a.Enabled() {
		a.trust(activities)
		return true
	}
	if r == nil || a.keys == nil {
		a.logger.Error("authenticator not configured with request or key source")
		return false
	}
	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		a.logger.Warn("request rejected: bearer token missing")
		return false
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.keys.Key(ctx, t)
	},
		jwt.WithValidMethods(a.keys.Methods()),
		jwt.WithAudience(a.appID),
		jwt.WithLeeway(a.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil || token == nil || !token.Valid {
		a.logger.Warn("request rejected: invalid token", slog.Any("error", err))
		return false
	}
	if len(a.issuers) > 0 {
		issuer, _ := claims.GetIssuer()
		if !slices.Contains(a.issuers, issuer) {
			a.logger.Warn("request rejected: untrusted issuer", slog.String("issuer", issuer))
			return false
		}
	}
	if claimed := claimString(claims, claimServiceURL); claimed != "" {
		for _, act := range activities {
			if act == nil {
				continue
			}
			if !sameServiceURL(claimed, act.ServiceURL) {
				a.logger.Warn("request rejected: service url mismatch",
					slog.String("claimed", claimed),
					slog.String("activity", act.ServiceURL),
				)
				return false
			}
		}
	}
	a.trust(activities)
	return true
}

func (a *Authenticator) trust(activities []*activity.Activity) {
	for _, act := range activities {
		if act == nil {
			continue
		}
		a.trusted.Add(act.ServiceURL)
	}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func sameServiceURL(a, b string) bool {
	normalize := func(s string) string {
		return strings.TrimRight(strings.ToLower(strings.TrimSpace(s)), "/")
	}
	return normalize(a) == normalize(b)
}
