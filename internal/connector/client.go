// Package connector posts reply activities back to the conversation service
// that delivered the original activity.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/memohai/visionbot/internal/activity"
)

var (
	// ErrUntrustedOrigin indicates a reply addressed to a service origin no authenticated request vouched for.
	ErrUntrustedOrigin = errors.New("service origin is not trusted")
	// ErrInvalidReply indicates the reply lacks the addressing needed to send it.
	ErrInvalidReply = errors.New("invalid reply activity")
	// ErrSendFailed indicates the conversation service rejected the reply.
	ErrSendFailed = errors.New("reply send failed")
)

const (
	defaultTimeout     = 15 * time.Second
	errorBodyMaxBytes  = 4 << 10
	DefaultOAuthScope  = "https://api.botframework.com/.default"
	DefaultTokenURL    = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"
	conversationsRoute = "/v3/conversations/"
)

// Sender delivers a reply activity to its conversation.
type Sender interface {
	ReplyToActivity(ctx context.Context, reply *activity.Activity) error
}

// OriginChecker reports whether a service URL belongs to a trusted origin.
type OriginChecker interface {
	Contains(serviceURL string) bool
}

// Config holds the bot credentials used to obtain outbound tokens.
// Without an app id and password, replies are sent unauthenticated (emulator mode).
type Config struct {
	AppID       string
	AppPassword string
	TokenURL    string
	Scope       string
	Timeout     time.Duration
}

// Client is the HTTP reply transport.
type Client struct {
	http    *http.Client
	trusted OriginChecker
	logger  *slog.Logger
}

// NewClient creates a Client. base may be nil; it is used for both token and reply requests.
func NewClient(log *slog.Logger, cfg Config, trusted OriginChecker, base *http.Client) *Client {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if base == nil {
		base = &http.Client{Timeout: timeout}
	}
	httpClient := base
	if strings.TrimSpace(cfg.AppID) != "" && strings.TrimSpace(cfg.AppPassword) != "" {
		tokenURL := strings.TrimSpace(cfg.TokenURL)
		if tokenURL == "" {
			tokenURL = DefaultTokenURL
		}
		scope := strings.TrimSpace(cfg.Scope)
		if scope == "" {
			scope = DefaultOAuthScope
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppPassword,
			TokenURL:     tokenURL,
			Scopes:       []string{scope},
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = cc.Client(ctx)
		httpClient.Timeout = timeout
	}
	return &Client{
		http:    httpClient,
		trusted: trusted,
		logger:  log.With(slog.String("component", "connector")),
	}
}

// ReplyToActivity posts reply to {serviceUrl}/v3/conversations/{id}/activities[/{replyToId}].
func (c *Client) ReplyToActivity(ctx context.Context, reply *activity.Activity) error {
	if reply == nil {
		return fmt.Errorf("%w: nil reply", ErrInvalidReply)
	}
	serviceURL := strings.TrimSpace(reply.ServiceURL)
	conversationID := strings.TrimSpace(reply.Conversation.ID)
	if serviceURL == "" || conversationID == "" {
		return fmt.Errorf("%w: service url and conversation id are required", ErrInvalidReply)
	}
	if c.trusted == nil || !c.trusted.Contains(serviceURL) {
		return fmt.Errorf("%w: %s", ErrUntrustedOrigin, serviceURL)
	}

	endpoint := strings.TrimRight(serviceURL, "/") + conversationsRoute + url.PathEscape(conversationID) + "/activities"
	if replyTo := strings.TrimSpace(reply.ReplyToID); replyTo != "" {
		endpoint += "/" + url.PathEscape(replyTo)
	}
	body, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyMaxBytes))
		return fmt.Errorf("%w: status %d: %s", ErrSendFailed, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyMaxBytes))
	c.logger.Debug("reply sent",
		slog.String("conversation_id", conversationID),
		slog.Int("status", resp.StatusCode),
	)
	return nil
}
