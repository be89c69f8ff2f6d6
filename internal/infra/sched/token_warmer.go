package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Refresher renews the gateway token ahead of expiry. *usecase.TokenCache
// satisfies it.
type Refresher interface {
	RefreshInBackground(ctx context.Context)
}

// TokenWarmer periodically renews the gateway token so checkout requests
// rarely pay for a grant.
type TokenWarmer struct {
	interval  time.Duration
	refresher Refresher
	log       *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTokenWarmer returns nil when interval is not positive; a nil warmer's
// Start and Stop are no-ops.
func NewTokenWarmer(interval time.Duration, refresher Refresher, logger *zerolog.Logger) *TokenWarmer {
	if interval <= 0 {
		return nil
	}
	l := logger.With().Str("component", "TokenWarmer").Logger()
	return &TokenWarmer{
		interval:  interval,
		refresher: refresher,
		log:       &l,
		done:      make(chan struct{}),
	}
}

// Start warms once immediately and then on every tick. Calling Start twice has
// no effect.
func (s *TokenWarmer) Start(parentCtx context.Context) {
	if s == nil || s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(parentCtx)
	go s.loop()
}

func (s *TokenWarmer) loop() {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	s.log.Info().Dur("interval", s.interval).Msg("token warmer started")
	s.refresher.RefreshInBackground(s.ctx)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.refresher.RefreshInBackground(s.ctx)
		}
	}
}

// Stop cancels the loop and waits for it to exit. It is idempotent.
func (s *TokenWarmer) Stop() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.ctx, s.cancel = nil, nil
	s.done = make(chan struct{})
	s.log.Info().Msg("token warmer stopped")
}
