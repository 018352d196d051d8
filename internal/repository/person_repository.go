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

const personColumns = `id, email, password_hash, full_name, role, created_at, updated_at`

// PersonRepository is the identity store.
type PersonRepository struct {
	db *sqlx.DB
}

// NewPersonRepository creates a new instance of PersonRepository.
func NewPersonRepository(db *sqlx.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

// FindByID returns a person by identifier.
func (r *PersonRepository) FindByID(ctx context.Context, id string) (*models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons WHERE id = $1 LIMIT 1`
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find person by id: %w", err)
	}
	return &person, nil
}

// FindByEmail returns a person by email address.
func (r *PersonRepository) FindByEmail(ctx context.Context, email string) (*models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons WHERE email = $1 LIMIT 1`
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find person by email: %w", err)
	}
	return &person, nil
}

// Create inserts a person. A taken email yields ErrDuplicate.
func (r *PersonRepository) Create(ctx context.Context, person *models.Person) error {
	if person.ID == "" {
		person.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if person.CreatedAt.IsZero() {
		person.CreatedAt = now
	}
	person.UpdatedAt = now
	if person.Role == "" {
		person.Role = models.RoleUser
	}
	const query = `INSERT INTO persons (id, email, password_hash, full_name, role, created_at, updated_at)
        VALUES (:id, :email, :password_hash, :full_name, :role, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, person); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create person: %w", err)
	}
	return nil
}

// FindRole reads the current role, optionally inside a transaction.
func (r *PersonRepository) FindRole(ctx context.Context, tx *sqlx.Tx, id string) (models.Role, error) {
	const query = `SELECT role FROM persons WHERE id = $1`
	var role models.Role
	if err := sqlx.GetContext(ctx, runner(r.db, tx), &role, query, id); err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("find person role: %w", err)
	}
	return role, nil
}

// LockRole reads the current role and holds the person row until tx ends, so a concurrent
// role transition waits for the caller's unit of work.
func (r *PersonRepository) LockRole(ctx context.Context, tx *sqlx.Tx, id string) (models.Role, error) {
	const query = `SELECT role FROM persons WHERE id = $1 FOR UPDATE`
	var role models.Role
	if err := sqlx.GetContext(ctx, runner(r.db, tx), &role, query, id); err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("lock person role: %w", err)
	}
	return role, nil
}

// TransitionRole moves a person from one role to another only if the current role matches from.
// It reports whether a row changed.
func (r *PersonRepository) TransitionRole(ctx context.Context, tx *sqlx.Tx, id string, from, to models.Role) (bool, error) {
	const query = `UPDATE persons SET role = $3, updated_at = $4 WHERE id = $1 AND role = $2`
	res, err := runner(r.db, tx).ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("transition person role: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition person role rows: %w", err)
	}
	return affected == 1, nil
}

// UpdateRole overwrites the role. Used by administrative edits only.
func (r *PersonRepository) UpdateRole(ctx context.Context, id string, role models.Role) error {
	const query = `UPDATE persons SET role = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, role, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update person role: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update person role rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
