//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"edu-checkout/internal/domain/model"
)

// seedBuyer writes a user and one course and returns both.
func seedBuyer(t *testing.T, ctx context.Context) (*model.User, *model.CatalogItem) {
	t.Helper()
	cleanup(t)
	u, err := model.NewUser("", "Nusrat", "nusrat@example.com", "01711111111")
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if err := NewPostgresUserRepo(testPool).Save(ctx, nil, u); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}
	item, _ := model.NewCatalogItem("go-101", model.TargetCourse, "Go 101", decimal.NewFromInt(1500))
	if err := NewCatalogRepo(testPool).Save(ctx, nil, item); err != nil {
		t.Fatalf("failed to save catalog item: %v", err)
	}
	return u, item
}

func newPending(t *testing.T, userID string, target model.PurchaseTarget, amount int64) *model.Payment {
	t.Helper()
	p, err := model.NewPendingPayment(uuid.NewString(), ulid.Make().String(), userID, target, decimal.NewFromInt(amount), time.Now().UTC())
	if err != nil {
		t.Fatalf("NewPendingPayment: %v", err)
	}
	p.PayerName, p.PayerEmail, p.PayerPhone = "Nusrat", "nusrat@example.com", "01711111111"
	return p
}
