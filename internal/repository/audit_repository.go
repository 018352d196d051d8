package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-enroll-api/internal/models"
)

// AuditRepository appends audit trail records.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create stores an audit log, inside tx when given.
func (r *AuditRepository) Create(ctx context.Context, tx *sqlx.Tx, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, person_id, action, resource, resource_id, old_values, new_values, created_at)
        VALUES (:id, :person_id, :action, :resource, :resource_id, :old_values, :new_values, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, runner(r.db, tx), query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
