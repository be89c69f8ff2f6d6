package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/adapter"
	"edu-checkout/internal/infra/logging"
	"edu-checkout/internal/infra/metrics"
)

// TokenStore shares a token between service instances. Load returns
// (nil, nil) when nothing is stored.
type TokenStore interface {
	Load(ctx context.Context) (*model.GatewayToken, error)
	Store(ctx context.Context, tok *model.GatewayToken) error
	Clear(ctx context.Context) error
}

// TokenProvider is what the payment flows need from the cache.
type TokenProvider interface {
	Token(ctx context.Context) (*model.GatewayToken, error)
	Invalidate(ctx context.Context)
}

var _ TokenProvider = (*TokenCache)(nil)

const (
	tokenFlightKey      = "gateway-token"
	defaultTokenMargin  = 60 * time.Second
	defaultTokenTimeout = 15 * time.Second
)

// TokenCache hands out the gateway bearer token. Concurrent misses share one
// outbound grant; the call runs detached from the caller that started it, so
// a cancelled request cannot fail the others waiting on the same flight.
type TokenCache struct {
	source  adapter.TokenSource
	store   TokenStore
	margin  time.Duration
	ahead   time.Duration
	timeout time.Duration
	log     *zerolog.Logger
	now     func() time.Time

	mu    sync.RWMutex
	cur   *model.GatewayToken
	group singleflight.Group
}

// NewTokenCache builds a cache over source. store may be nil.
func NewTokenCache(source adapter.TokenSource, store TokenStore, margin time.Duration, logger *zerolog.Logger) *TokenCache {
	if margin <= 0 {
		margin = defaultTokenMargin
	}
	return &TokenCache{
		source:  source,
		store:   store,
		margin:  margin,
		ahead:   5 * margin,
		timeout: defaultTokenTimeout,
		log:     logger,
		now:     time.Now,
	}
}

// Token returns the cached token while it has more than the safety margin
// left, otherwise it refreshes. Failures wrap domain.ErrGatewayAuth.
func (c *TokenCache) Token(ctx context.Context) (*model.GatewayToken, error) {
	if tok := c.cached(); tok.UsableAt(c.now(), c.margin) {
		return tok, nil
	}
	return c.refresh(ctx, c.margin, "sync")
}

// RefreshInBackground renews the token when it is missing or close to expiry.
// It never blocks and never reports errors; the next Token call retries.
func (c *TokenCache) RefreshInBackground(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if _, err := c.refresh(ctx, c.ahead, "background"); err != nil {
			logging.With(ctx, c.log).Warn().Err(err).Msg("background token refresh failed")
		}
	}()
}

// Invalidate drops the token everywhere, used after the gateway refused it.
func (c *TokenCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.cur = nil
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.Clear(ctx); err != nil {
			c.log.Warn().Err(err).Msg("clear shared gateway token")
		}
	}
}

func (c *TokenCache) cached() *model.GatewayToken {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur
}

func (c *TokenCache) set(tok *model.GatewayToken) {
	c.mu.Lock()
	c.cur = tok
	c.mu.Unlock()
}

func (c *TokenCache) refresh(ctx context.Context, margin time.Duration, source string) (*model.GatewayToken, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(tokenFlightKey, func() (interface{}, error) {
		return c.fetch(detached, margin, source)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", domain.ErrGatewayAuth, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.GatewayToken), nil
	}
}

// fetch runs inside the flight.
func (c *TokenCache) fetch(ctx context.Context, margin time.Duration, source string) (*model.GatewayToken, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	now := c.now()
	// a flight that finished just before this one may already have refreshed
	prev := c.cached()
	if prev.UsableAt(now, margin) {
		return prev, nil
	}

	if c.store != nil {
		shared, err := c.store.Load(ctx)
		switch {
		case err != nil:
			c.log.Warn().Err(err).Msg("load shared gateway token")
		case shared.UsableAt(now, margin):
			c.set(shared)
			metrics.IncTokenRefresh("shared", "ok")
			return shared, nil
		}
	}

	var tok *model.GatewayToken
	if prev != nil && prev.RefreshToken != "" {
		t, err := c.source.RefreshToken(ctx, prev.RefreshToken)
		if err != nil {
			metrics.IncTokenRefresh("refresh", "error")
			c.log.Debug().Err(err).Msg("token refresh rejected, falling back to grant")
		} else {
			metrics.IncTokenRefresh("refresh", "ok")
			tok = t
		}
	}
	if tok == nil {
		t, err := c.source.GrantToken(ctx)
		if err != nil {
			metrics.IncTokenRefresh(source, "error")
			if !errors.Is(err, domain.ErrGatewayAuth) {
				err = fmt.Errorf("%w: %w", domain.ErrGatewayAuth, err)
			}
			return nil, err
		}
		metrics.IncTokenRefresh(source, "ok")
		tok = t
	}

	c.set(tok)
	if c.store != nil {
		if err := c.store.Store(ctx, tok); err != nil {
			c.log.Warn().Err(err).Msg("store shared gateway token")
		}
	}
	left := tok.Remaining(c.now())
	if left <= margin {
		// every caller will refresh again until the gateway issues a longer token
		c.log.Warn().Dur("valid_for", left).Dur("margin", margin).Msg("gateway token expires inside the refresh margin")
	}
	c.log.Info().Str("source", source).Time("expires_at", tok.ExpiresAt).Dur("valid_for", left).Msg("gateway token refreshed")
	return tok, nil
}
