package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

// FieldCipher encrypts PII columns at rest.
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type paymentRepo struct {
	pool   *pgxpool.Pool
	cipher FieldCipher // nil stores payer phone as-is
}

func NewPaymentRepo(pool *pgxpool.Pool, cipher FieldCipher) *paymentRepo {
	return &paymentRepo{pool: pool, cipher: cipher}
}

const paymentColumns = `id, order_id, user_id, course_id, workshop_id, book_id, purpose,
  amount::text, currency, channel, gateway_payment_id, gateway_trx_id, redirect_url,
  status, failure_reason, verified, coupon_id, coupon_code, discount_amount::text,
  payer_name, payer_email, payer_phone, created_at, updated_at, paid_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, order_id, user_id, course_id, workshop_id, book_id, purpose,
  amount, currency, channel, gateway_payment_id, gateway_trx_id, redirect_url,
  status, failure_reason, verified, coupon_id, coupon_code, discount_amount,
  payer_name, payer_email, payer_phone, created_at, updated_at, paid_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25
);`

	phone, err := r.seal(p.PayerPhone)
	if err != nil {
		return err
	}
	course, workshop, book, purpose := p.Target.Columns()
	_, err = execSQL(ctx, r.pool, tx, q,
		p.ID, p.OrderID, p.UserID, course, workshop, book, purpose,
		p.Amount.String(), p.Currency, string(p.Channel), p.GatewayPaymentID, p.GatewayTrxID, p.RedirectURL,
		string(p.Status), p.FailureReason, p.Verified, p.CouponID, p.CouponCode, p.DiscountAmount.String(),
		p.PayerName, p.PayerEmail, phone, p.CreatedAt, p.UpdatedAt, p.PaidAt,
	)
	return mapExecErr(err)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	return r.findOne(ctx, tx, "id", id)
}

func (r *paymentRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Payment, error) {
	return r.findOne(ctx, tx, "order_id", orderID)
}

func (r *paymentRepo) FindByGatewayPaymentID(ctx context.Context, tx repository.Tx, gatewayPaymentID string) (*model.Payment, error) {
	return r.findOne(ctx, tx, "gateway_payment_id", gatewayPaymentID)
}

func (r *paymentRepo) FindByTrxID(ctx context.Context, tx repository.Tx, trxID string) (*model.Payment, error) {
	return r.findOne(ctx, tx, "gateway_trx_id", trxID)
}

// findOne locks the row when running inside a transaction. column is always
// one of the fixed names above, never caller input.
func (r *paymentRepo) findOne(ctx context.Context, tx repository.Tx, column, value string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + column + `=$1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, value)
	if err != nil {
		return nil, err
	}
	return r.scan(row)
}

// AttachGateway only fills an empty gateway id, or rewrites the identical one.
func (r *paymentRepo) AttachGateway(ctx context.Context, tx repository.Tx, id, gatewayPaymentID, redirectURL string) error {
	const q = `
UPDATE payments
   SET gateway_payment_id = $2,
       redirect_url = $3,
       updated_at = NOW()
 WHERE id = $1
   AND (gateway_payment_id IS NULL OR gateway_payment_id = $2);`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, gatewayPaymentID, redirectURL)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, tx, id); err != nil {
			return err
		}
		return domain.ErrImmutableField
	}
	return nil
}

// TransitionStatus updates the row only while its status equals from.
func (r *paymentRepo) TransitionStatus(
	ctx context.Context, tx repository.Tx, id string, from, to model.PaymentStatus, change repository.StatusChange,
) (bool, error) {
	if !model.CanTransition(from, to) {
		return false, domain.ErrInvalidTransition
	}
	const q = `
UPDATE payments
   SET status = $3,
       gateway_trx_id = COALESCE($4, gateway_trx_id),
       paid_at = COALESCE($5, paid_at),
       failure_reason = COALESCE($6, failure_reason),
       verified = verified OR $7,
       updated_at = NOW()
 WHERE id = $1
   AND status = $2;`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(from), string(to),
		change.TrxID, change.PaidAt, change.FailureReason, change.Verified)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *paymentRepo) CountCouponUses(ctx context.Context, tx repository.Tx, couponID, userID string) (int, error) {
	const q = `SELECT COUNT(*) FROM payments WHERE coupon_id=$1 AND user_id=$2 AND status IN ('successful','refunded');`
	row, err := pickRow(ctx, r.pool, tx, q, couponID, userID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *paymentRepo) scan(row pgx.Row) (*model.Payment, error) {
	var (
		p                      model.Payment
		course, workshop, book *string
		purpose                string
		amount, discount       string
		channel, status        string
		phone                  string
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.UserID, &course, &workshop, &book, &purpose,
		&amount, &p.Currency, &channel, &p.GatewayPaymentID, &p.GatewayTrxID, &p.RedirectURL,
		&status, &p.FailureReason, &p.Verified, &p.CouponID, &p.CouponCode, &discount,
		&p.PayerName, &p.PayerEmail, &phone, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt,
	)
	if err != nil {
		return nil, mapScanErr(err)
	}

	target, err := model.TargetFromColumns(course, workshop, book, purpose)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	p.Target = target
	p.Channel = model.PaymentChannel(channel)
	p.Status = model.PaymentStatus(status)
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if p.DiscountAmount, err = decimal.NewFromString(discount); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if p.PayerPhone, err = r.open(phone); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) seal(s string) (string, error) {
	if r.cipher == nil || s == "" {
		return s, nil
	}
	out, err := r.cipher.Encrypt(s)
	if err != nil {
		return "", errors.Join(domain.ErrOperationFailed, err)
	}
	return out, nil
}

func (r *paymentRepo) open(s string) (string, error) {
	if r.cipher == nil || s == "" {
		return s, nil
	}
	out, err := r.cipher.Decrypt(s)
	if err != nil {
		return "", errors.Join(domain.ErrReadDatabaseRow, err)
	}
	return out, nil
}
