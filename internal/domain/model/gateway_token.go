package model

import "time"

// GatewayToken is the bearer credential for the payment gateway API.
type GatewayToken struct {
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// UsableAt is false once less than margin of validity remains.
func (t *GatewayToken) UsableAt(now time.Time, margin time.Duration) bool {
	if t == nil || t.IDToken == "" {
		return false
	}
	return now.Add(margin).Before(t.ExpiresAt)
}

// Remaining is the validity left at now, never negative.
func (t *GatewayToken) Remaining(now time.Time) time.Duration {
	if t == nil {
		return 0
	}
	d := t.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
