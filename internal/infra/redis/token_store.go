package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"edu-checkout/internal/domain/model"
)

const gatewayTokenKey = "bkash:token"

// TokenStore shares the gateway token between service instances so only one
// of them pays for a grant per token lifetime.
type TokenStore struct {
	client RedisClient
	key    string
}

func NewTokenStore(client RedisClient) *TokenStore {
	return &TokenStore{client: client, key: gatewayTokenKey}
}

// Load returns (nil, nil) when nothing is stored.
func (s *TokenStore) Load(ctx context.Context) (*model.GatewayToken, error) {
	val, err := s.client.Get(ctx, s.key)
	if errors.Is(err, Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tok model.GatewayToken
	if err := json.Unmarshal([]byte(val), &tok); err != nil {
		// A corrupt entry is treated as absent.
		return nil, nil
	}
	return &tok, nil
}

// Store keeps the token until it expires.
func (s *TokenStore) Store(ctx context.Context, tok *model.GatewayToken) error {
	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, b, ttl)
}

func (s *TokenStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key)
}
