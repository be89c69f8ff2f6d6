//go:build !integration

package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/usecase"
)

func TestTokenCache_Token(t *testing.T) {
	ctx := context.Background()

	t.Run("should coalesce concurrent cold misses into one grant", func(t *testing.T) {
		gw := &MockPaymentGateway{}
		release := make(chan struct{})
		gw.GrantTokenFunc = func(ctx context.Context) (*model.GatewayToken, error) {
			<-release
			return &model.GatewayToken{IDToken: "shared", ExpiresAt: time.Now().Add(time.Hour)}, nil
		}
		cache := usecase.NewTokenCache(gw, nil, time.Minute, newTestLogger())

		const callers = 32
		var wg sync.WaitGroup
		var started sync.WaitGroup
		tokens := make([]string, callers)
		errs := make([]error, callers)
		started.Add(callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				started.Done()
				tok, err := cache.Token(ctx)
				errs[i] = err
				if tok != nil {
					tokens[i] = tok.IDToken
				}
			}(i)
		}
		started.Wait()
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		if gw.Grants() != 1 {
			t.Fatalf("expected exactly 1 grant, got %d", gw.Grants())
		}
		for i := range tokens {
			if errs[i] != nil || tokens[i] != "shared" {
				t.Fatalf("caller %d got token=%q err=%v", i, tokens[i], errs[i])
			}
		}
	})

	t.Run("should serve a usable token from memory", func(t *testing.T) {
		gw := &MockPaymentGateway{}
		cache := usecase.NewTokenCache(gw, nil, time.Minute, newTestLogger())
		first, _ := cache.Token(ctx)
		second, _ := cache.Token(ctx)
		if gw.Grants() != 1 || first.IDToken != second.IDToken {
			t.Errorf("expected one grant and the same token, grants=%d", gw.Grants())
		}
	})

	t.Run("should refresh a token inside the safety margin", func(t *testing.T) {
		gw := &MockPaymentGateway{}
		var refreshes int32
		gw.GrantTokenFunc = func(ctx context.Context) (*model.GatewayToken, error) {
			// 30s of validity is below the 60s margin
			return &model.GatewayToken{IDToken: "short", RefreshToken: "rf", ExpiresAt: time.Now().Add(30 * time.Second)}, nil
		}
		gw.RefreshTokenFunc = func(ctx context.Context, refreshToken string) (*model.GatewayToken, error) {
			atomic.AddInt32(&refreshes, 1)
			if refreshToken != "rf" {
				t.Errorf("expected the stored refresh token, got %q", refreshToken)
			}
			return &model.GatewayToken{IDToken: "renewed", ExpiresAt: time.Now().Add(time.Hour)}, nil
		}
		cache := usecase.NewTokenCache(gw, nil, time.Minute, newTestLogger())

		tok, err := cache.Token(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if tok.IDToken != "short" {
			t.Fatalf("the first grant is returned even if short lived, got %q", tok.IDToken)
		}
		tok, _ = cache.Token(ctx)
		if tok.IDToken != "renewed" || atomic.LoadInt32(&refreshes) != 1 {
			t.Errorf("expected a refresh-token renewal, got %q (refreshes=%d)", tok.IDToken, refreshes)
		}
	})

	t.Run("should reuse the shared token of another instance", func(t *testing.T) {
		gw := &MockPaymentGateway{}
		store := &MockTokenStore{}
		_ = store.Store(ctx, &model.GatewayToken{IDToken: "from-redis", ExpiresAt: time.Now().Add(time.Hour)})
		cache := usecase.NewTokenCache(gw, store, time.Minute, newTestLogger())

		tok, err := cache.Token(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if tok.IDToken != "from-redis" || gw.Grants() != 0 {
			t.Errorf("expected shared token without a grant, got %q grants=%d", tok.IDToken, gw.Grants())
		}
	})

	t.Run("should warn when the gateway issues a token inside the margin", func(t *testing.T) {
		gw := &MockPaymentGateway{}
		gw.GrantTokenFunc = func(ctx context.Context) (*model.GatewayToken, error) {
			return &model.GatewayToken{IDToken: "short", ExpiresAt: time.Now().Add(30 * time.Second)}, nil
		}
		var buf bytes.Buffer
		logger := zerolog.New(&buf)
		tok, err := usecase.NewTokenCache(gw, nil, time.Minute, &logger).Token(ctx)
		if err != nil || tok.IDToken != "short" {
			t.Fatalf("expected the issued token, got %v %v", tok, err)
		}
		if !strings.Contains(buf.String(), "expires inside the refresh margin") || !strings.Contains(buf.String(), `"valid_for"`) {
			t.Errorf("expected a margin warning, got %s", buf.String())
		}
	})

	t.Run("should wrap grant failures as ErrGatewayAuth", func(t *testing.T) {
		gw := &MockPaymentGateway{GrantTokenFunc: func(ctx context.Context) (*model.GatewayToken, error) {
			return nil, errors.New("dial tcp: connection refused")
		}}
		cache := usecase.NewTokenCache(gw, nil, time.Minute, newTestLogger())
		if _, err := cache.Token(ctx); !errors.Is(err, domain.ErrGatewayAuth) {
			t.Fatalf("expected ErrGatewayAuth, got %v", err)
		}
	})

	t.Run("should not let one cancelled caller fail the flight", func(t *testing.T) {
		gw := &MockPaymentGateway{}
		release := make(chan struct{})
		gw.GrantTokenFunc = func(ctx context.Context) (*model.GatewayToken, error) {
			<-release
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return &model.GatewayToken{IDToken: "ok", ExpiresAt: time.Now().Add(time.Hour)}, nil
		}
		cache := usecase.NewTokenCache(gw, nil, time.Minute, newTestLogger())

		cctx, cancel := context.WithCancel(ctx)
		firstErr := make(chan error, 1)
		go func() {
			_, err := cache.Token(cctx)
			firstErr <- err
		}()
		time.Sleep(10 * time.Millisecond)
		secondTok := make(chan *model.GatewayToken, 1)
		go func() {
			tok, _ := cache.Token(ctx)
			secondTok <- tok
		}()
		time.Sleep(10 * time.Millisecond)
		cancel()
		if err := <-firstErr; err == nil {
			t.Error("cancelled caller should return an error")
		}
		close(release)
		if tok := <-secondTok; tok == nil || tok.IDToken != "ok" {
			t.Errorf("second caller should get the token, got %+v", tok)
		}
		if gw.Grants() != 1 {
			t.Errorf("expected one grant, got %d", gw.Grants())
		}
	})
}

func TestTokenCache_InvalidateAndBackground(t *testing.T) {
	ctx := context.Background()
	gw := &MockPaymentGateway{}
	store := &MockTokenStore{}
	cache := usecase.NewTokenCache(gw, store, time.Minute, newTestLogger())

	first, _ := cache.Token(ctx)
	cache.Invalidate(ctx)
	if tok, _ := store.Load(ctx); tok != nil {
		t.Fatal("invalidate must clear the shared token")
	}
	second, _ := cache.Token(ctx)
	if first.IDToken == second.IDToken || gw.Grants() != 2 {
		t.Fatalf("expected a fresh grant after invalidate, grants=%d", gw.Grants())
	}

	// a token with an hour left needs no background refresh
	cache.RefreshInBackground(ctx)
	time.Sleep(20 * time.Millisecond)
	if gw.Grants() != 2 {
		t.Errorf("background refresh of a fresh token should be a no-op, grants=%d", gw.Grants())
	}

	cache.Invalidate(ctx)
	cache.RefreshInBackground(ctx)
	deadline := time.Now().Add(time.Second)
	for gw.Grants() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if gw.Grants() != 3 {
		t.Errorf("expected the background refresh to grant, grants=%d", gw.Grants())
	}
}
