package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/repository"
)

var _ repository.EnrollmentRepository = (*enrollmentRepo)(nil)

type enrollmentRepo struct{ pool *pgxpool.Pool }

func NewEnrollmentRepo(pool *pgxpool.Pool) *enrollmentRepo {
	return &enrollmentRepo{pool: pool}
}

// Create relies on the (user_id, target_kind, target_id) unique key; a
// duplicate is not an error, it just reports created=false.
func (r *enrollmentRepo) Create(ctx context.Context, tx repository.Tx, e *model.Enrollment) (bool, error) {
	if !e.Target.GrantsEnrollment() {
		return false, domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO enrollments (id, user_id, target_kind, target_id, payment_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (user_id, target_kind, target_id) DO NOTHING;`
	cmd, err := execSQL(ctx, r.pool, tx, q, e.ID, e.UserID, string(e.Target.Kind), e.Target.ID, e.PaymentID, e.CreatedAt)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *enrollmentRepo) FindByUserAndTarget(ctx context.Context, tx repository.Tx, userID string, target model.PurchaseTarget) (*model.Enrollment, error) {
	const q = `
SELECT id, user_id, target_kind, target_id, payment_id, created_at
  FROM enrollments WHERE user_id=$1 AND target_kind=$2 AND target_id=$3;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, string(target.Kind), target.ID)
	if err != nil {
		return nil, err
	}
	var (
		e    model.Enrollment
		kind string
	)
	if err := row.Scan(&e.ID, &e.UserID, &kind, &e.Target.ID, &e.PaymentID, &e.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	e.Target.Kind = model.TargetKind(kind)
	return &e, nil
}
