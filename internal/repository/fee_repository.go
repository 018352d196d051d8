package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-enroll-api/internal/models"
)

// FeeRepository persists fee records.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs a FeeRepository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// Create inserts the fee for an enrollment. A second fee for the same enrollment yields ErrDuplicate.
func (r *FeeRepository) Create(ctx context.Context, tx *sqlx.Tx, fee *models.Fee) error {
	if fee.ID == "" {
		fee.ID = uuid.NewString()
	}
	if fee.CreatedAt.IsZero() {
		fee.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO fees (id, enrollment_id, amount, due_date, payment_method, created_at)
        VALUES (:id, :enrollment_id, :amount, :due_date, :payment_method, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, runner(r.db, tx), query, fee); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create fee: %w", err)
	}
	return nil
}

// FindByEnrollment returns the fee recorded for an enrollment.
func (r *FeeRepository) FindByEnrollment(ctx context.Context, tx *sqlx.Tx, enrollmentID string) (*models.Fee, error) {
	const query = `SELECT id, enrollment_id, amount, due_date, payment_method, created_at FROM fees WHERE enrollment_id = $1`
	var fee models.Fee
	if err := sqlx.GetContext(ctx, runner(r.db, tx), &fee, query, enrollmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find fee: %w", err)
	}
	return &fee, nil
}
