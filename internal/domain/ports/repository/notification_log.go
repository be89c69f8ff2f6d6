package repository

import (
	"context"

	"edu-checkout/internal/domain/model"
)

// -----------------------------
// Notifications Log
// -----------------------------

type NotificationLogRepository interface {
	// Save records that a notification was delivered for a payment.
	Save(ctx context.Context, tx Tx, paymentID, userID string, kind model.NotificationKind) error
	// Exists checks if a specific notification has already been delivered.
	Exists(ctx context.Context, tx Tx, paymentID string, kind model.NotificationKind) (bool, error)
}
