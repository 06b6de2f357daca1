package auth

import (
	"net/url"
	"sort"
	"strings"
	"sync"
)

// TrustedOrigins is the set of service origins that passed authentication.
// It only grows and is safe for concurrent use.
type TrustedOrigins struct {
	mu      sync.RWMutex
	origins map[string]struct{}
}

// NewTrustedOrigins creates an empty set.
func NewTrustedOrigins() *TrustedOrigins {
	return &TrustedOrigins{origins: map[string]struct{}{}}
}

// Add records the origin of serviceURL as trusted. Empty or unparsable URLs are ignored.
func (t *TrustedOrigins) Add(serviceURL string) bool {
	key := OriginKey(serviceURL)
	if key == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.origins[key] = struct{}{}
	return true
}

// Contains reports whether the origin of serviceURL has been trusted.
func (t *TrustedOrigins) Contains(serviceURL string) bool {
	key := OriginKey(serviceURL)
	if key == "" {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.origins[key]
	return ok
}

// List returns the trusted origins in lexical order.
func (t *TrustedOrigins) List() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	items := make([]string, 0, len(t.origins))
	for key := range t.origins {
		items = append(items, key)
	}
	sort.Strings(items)
	return items
}

// OriginKey reduces a service URL to scheme://host[:port], lowercased.
func OriginKey(serviceURL string) string {
	raw := strings.TrimSpace(serviceURL)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
