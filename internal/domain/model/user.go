package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"edu-checkout/internal/domain"
)

// User is the purchaser as known to this service. Identity itself is owned by
// the external identity provider; we keep what checkout and email need.
type User struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

func NewUser(id, name, email, phone string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(name) == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidArgument
	}
	return &User{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		Phone:     strings.TrimSpace(phone),
		CreatedAt: time.Now(),
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }
