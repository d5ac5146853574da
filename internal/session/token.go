package session

import (
	"context"
	"strings"
	"sync"

	"github.com/pitabwire/marketdesk/model"
)

// TokenHolder stores the bearer token of the admin owning a view. It is
// refreshed from every authenticated request that touches the view and read
// by the view's resource client, including from background fetches that
// outlive the request which started them.
type TokenHolder struct {
	mu    sync.RWMutex
	token string
}

// NewTokenHolder returns a holder seeded with token.
func NewTokenHolder(token string) *TokenHolder {
	return &TokenHolder{token: strings.TrimSpace(token)}
}

// Set replaces the stored token. Empty tokens are ignored so that a request
// without credentials cannot sign a view out.
func (h *TokenHolder) Set(token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

// Clear forgets the stored token.
func (h *TokenHolder) Clear() {
	h.mu.Lock()
	h.token = ""
	h.mu.Unlock()
}

// Token returns the stored token, falling back to the token of the request
// in ctx.
func (h *TokenHolder) Token(ctx context.Context) string {
	h.mu.RLock()
	token := h.token
	h.mu.RUnlock()
	if token != "" {
		return token
	}
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		return strings.TrimSpace(rctx.Token)
	}
	return ""
}
