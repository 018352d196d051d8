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

// StudentRepository is the student record store.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByPerson returns the student record owned by a person.
func (r *StudentRepository) FindByPerson(ctx context.Context, tx *sqlx.Tx, personID string) (*models.Student, error) {
	const query = `SELECT id, person_id, course_label, created_at, updated_at FROM students WHERE person_id = $1`
	var student models.Student
	if err := sqlx.GetContext(ctx, runner(r.db, tx), &student, query, personID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by person: %w", err)
	}
	return &student, nil
}

// Create inserts a student record. It reports false when the person already has one,
// which happens when two enrollment requests race.
func (r *StudentRepository) Create(ctx context.Context, tx *sqlx.Tx, student *models.Student) (bool, error) {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, person_id, course_label, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5) ON CONFLICT (person_id) DO NOTHING`
	res, err := runner(r.db, tx).ExecContext(ctx, query, student.ID, student.PersonID, student.CourseLabel, student.CreatedAt, student.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("create student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create student rows: %w", err)
	}
	return affected == 1, nil
}

// UpdateCourseLabel sets the course label shown on the student record.
func (r *StudentRepository) UpdateCourseLabel(ctx context.Context, tx *sqlx.Tx, id, label string) error {
	const query = `UPDATE students SET course_label = $2, updated_at = $3 WHERE id = $1`
	res, err := runner(r.db, tx).ExecContext(ctx, query, id, label, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update student course label: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student course label rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
