package repository

import (
	"context"

	"edu-checkout/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
}

// -----------------------------
// Catalog (courses, workshops, books)
// -----------------------------

type CatalogRepository interface {
	Save(ctx context.Context, tx Tx, item *model.CatalogItem) error
	FindByTarget(ctx context.Context, tx Tx, target model.PurchaseTarget) (*model.CatalogItem, error)
}
