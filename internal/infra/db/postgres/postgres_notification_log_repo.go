package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/repository"
)

var _ repository.NotificationLogRepository = (*notificationLogRepo)(nil)

type notificationLogRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationLogRepo(pool *pgxpool.Pool) repository.NotificationLogRepository {
	return &notificationLogRepo{pool: pool}
}

// Save is idempotent on (payment_id, kind).
func (r *notificationLogRepo) Save(ctx context.Context, tx repository.Tx, paymentID, userID string, kind model.NotificationKind) error {
	const q = `
INSERT INTO payment_notifications (id, payment_id, user_id, kind)
VALUES ($1, $2, $3, $4)
ON CONFLICT (payment_id, kind) DO NOTHING`
	_, err := execSQL(ctx, r.pool, tx, q, uuid.NewString(), paymentID, userID, string(kind))
	return mapExecErr(err)
}

func (r *notificationLogRepo) Exists(ctx context.Context, tx repository.Tx, paymentID string, kind model.NotificationKind) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM payment_notifications WHERE payment_id = $1 AND kind = $2)`
	row, err := pickRow(ctx, r.pool, tx, q, paymentID, string(kind))
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}
