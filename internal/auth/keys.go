package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnknownKey indicates the token references a signing key the key source does not know.
	ErrUnknownKey = errors.New("unknown signing key")
	// ErrKeysUnavailable indicates signing keys could not be retrieved.
	ErrKeysUnavailable = errors.New("signing keys unavailable")
)

const (
	keyDocumentMaxBytes int64 = 1 << 20
	// minRefreshInterval bounds how often unknown kids or failed fetches may hit the key endpoints.
	minRefreshInterval = 5 * time.Minute
)

// KeySource resolves the verification key for a parsed, not yet verified token.
type KeySource interface {
	Key(ctx context.Context, token *jwt.Token) (any, error)
	Methods() []string
}

// SecretKeys verifies HS256 tokens with a shared secret.
type SecretKeys struct {
	secret []byte
}

// NewSecretKeys creates a key source for a shared HMAC secret.
func NewSecretKeys(secret string) *SecretKeys {
	return &SecretKeys{secret: []byte(secret)}
}

// Key returns the shared secret.
func (s *SecretKeys) Key(_ context.Context, _ *jwt.Token) (any, error) {
	if len(s.secret) == 0 {
		return nil, ErrKeysUnavailable
	}
	return s.secret, nil
}

// Methods returns the accepted signing methods.
func (s *SecretKeys) Methods() []string {
	return []string{jwt.SigningMethodHS256.Alg()}
}

// OpenIDKeys resolves RSA keys published through an OpenID metadata document.
type OpenIDKeys struct {
	metadataURL     string
	client          *http.Client
	refreshInterval time.Duration
	logger          *slog.Logger

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	fetchMu     sync.Mutex
	lastAttempt time.Time
	lastErr     error
	minRefresh  time.Duration
}

// NewOpenIDKeys creates a key source backed by the metadata document at metadataURL.
func NewOpenIDKeys(log *slog.Logger, metadataURL string, client *http.Client, refreshInterval time.Duration) *OpenIDKeys {
	if log == nil {
		log = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if refreshInterval <= 0 {
		refreshInterval = 24 * time.Hour
	}
	return &OpenIDKeys{
		metadataURL:     strings.TrimSpace(metadataURL),
		client:          client,
		refreshInterval: refreshInterval,
		logger:          log.With(slog.String("component", "openid_keys")),
		keys:            map[string]*rsa.PublicKey{},
		minRefresh:      minRefreshInterval,
	}
}

// Methods returns the accepted signing methods.
func (o *OpenIDKeys) Methods() []string {
	return []string{jwt.SigningMethodRS256.Alg()}
}

// Key returns the RSA key matching the token's kid header, refreshing the cache
// when it is stale or the kid is unknown. Refreshes are attempted at most once
// per minRefreshInterval.
func (o *OpenIDKeys) Key(ctx context.Context, token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, fmt.Errorf("%w: kid header missing", ErrUnknownKey)
	}
	if key, fresh := o.lookup(kid); key != nil && fresh {
		return key, nil
	}
	if err := o.refresh(ctx, kid); err != nil {
		if key, _ := o.lookup(kid); key != nil {
			o.logger.Warn("key refresh failed, using cached key", slog.Any("error", err))
			return key, nil
		}
		return nil, err
	}
	if key, _ := o.lookup(kid); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
}

func (o *OpenIDKeys) lookup(kid string) (*rsa.PublicKey, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.keys[kid], time.Since(o.fetchedAt) < o.refreshInterval
}

type openIDMetadata struct {
	JWKSURI string `json:"jwks_uri"`
}

type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jsonWebKeySet struct {
	Keys []jsonWebKey `json:"keys"`
}

func (o *OpenIDKeys) refresh(ctx context.Context, kid string) error {
	o.fetchMu.Lock()
	defer o.fetchMu.Unlock()

	// another caller may have refreshed while this one waited
	if key, fresh := o.lookup(kid); key != nil && fresh {
		return nil
	}
	now := time.Now()
	if !o.lastAttempt.IsZero() && now.Sub(o.lastAttempt) < o.minRefresh {
		return o.lastErr
	}
	o.lastAttempt = now
	o.lastErr = o.fetch(ctx)
	return o.lastErr
}

func (o *OpenIDKeys) fetch(ctx context.Context) error {
	if o.metadataURL == "" {
		return fmt.Errorf("%w: openid metadata url not configured", ErrKeysUnavailable)
	}
	var meta openIDMetadata
	if err := o.getJSON(ctx, o.metadataURL, &meta); err != nil {
		return fmt.Errorf("%w: metadata: %v", ErrKeysUnavailable, err)
	}
	if strings.TrimSpace(meta.JWKSURI) == "" {
		return fmt.Errorf("%w: metadata has no jwks_uri", ErrKeysUnavailable)
	}
	var set jsonWebKeySet
	if err := o.getJSON(ctx, meta.JWKSURI, &set); err != nil {
		return fmt.Errorf("%w: jwks: %v", ErrKeysUnavailable, err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if !strings.EqualFold(jwk.Kty, "RSA") || strings.TrimSpace(jwk.Kid) == "" {
			continue
		}
		key, err := rsaPublicKey(jwk)
		if err != nil {
			o.logger.Warn("skip invalid jwk", slog.String("kid", jwk.Kid), slog.Any("error", err))
			continue
		}
		keys[jwk.Kid] = key
	}
	o.mu.Lock()
	o.keys = keys
	o.fetchedAt = time.Now()
	o.mu.Unlock()
	o.logger.Debug("signing keys refreshed", slog.Int("count", len(keys)))
	return nil
}

func (o *OpenIDKeys) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, keyDocumentMaxBytes)).Decode(out)
}

func rsaPublicKey(jwk jsonWebKey) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(jwk.N, "="))
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(jwk.E, "="))
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	exponent := new(big.Int).SetBytes(e)
	if len(n) == 0 || !exponent.IsInt64() || exponent.Int64() < 3 {
		return nil, fmt.Errorf("invalid rsa key parameters")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exponent.Int64())}, nil
}
