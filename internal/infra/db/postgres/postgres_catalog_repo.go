package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/repository"
)

var _ repository.CatalogRepository = (*catalogRepo)(nil)

type catalogRepo struct{ pool *pgxpool.Pool }

func NewCatalogRepo(pool *pgxpool.Pool) *catalogRepo {
	return &catalogRepo{pool: pool}
}

func (r *catalogRepo) Save(ctx context.Context, tx repository.Tx, item *model.CatalogItem) error {
	const q = `
INSERT INTO catalog_items (id, kind, title, price, currency, active, starts_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (kind, id) DO UPDATE SET title=$3, price=$4, currency=$5, active=$6, starts_at=$7;`
	_, err := execSQL(ctx, r.pool, tx, q, item.ID, string(item.Kind), item.Title, item.Price.String(), item.Currency, item.Active, item.StartsAt)
	return mapExecErr(err)
}

// FindByTarget returns domain.ErrNotFound for the "other" target, which has no catalog row.
func (r *catalogRepo) FindByTarget(ctx context.Context, tx repository.Tx, target model.PurchaseTarget) (*model.CatalogItem, error) {
	if !target.GrantsEnrollment() {
		return nil, domain.ErrNotFound
	}
	const q = `SELECT id, kind, title, price::text, currency, active, starts_at FROM catalog_items WHERE kind=$1 AND id=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, string(target.Kind), target.ID)
	if err != nil {
		return nil, err
	}
	var (
		item        model.CatalogItem
		kind, price string
	)
	if err := row.Scan(&item.ID, &kind, &item.Title, &price, &item.Currency, &item.Active, &item.StartsAt); err != nil {
		return nil, mapScanErr(err)
	}
	item.Kind = model.TargetKind(kind)
	if item.Price, err = decimal.NewFromString(price); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return &item, nil
}
