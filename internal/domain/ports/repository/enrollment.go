package repository

import (
	"context"

	"edu-checkout/internal/domain/model"
)

// -----------------------------
// Enrollments
// -----------------------------

type EnrollmentRepository interface {
	// Create inserts the enrollment unless one already exists for the same
	// (user, target); created reports whether a new row was written.
	Create(ctx context.Context, tx Tx, e *model.Enrollment) (created bool, err error)
	FindByUserAndTarget(ctx context.Context, tx Tx, userID string, target model.PurchaseTarget) (*model.Enrollment, error)
}
