package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-enroll-api/internal/models"
)

const enrollmentColumns = `id, student_id, course_id, semester, status, enrollment_date, drop_date, payment_status`

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.course_id, e.semester, e.status, e.enrollment_date, e.drop_date, e.payment_status,
        c.name AS course_name, c.fee AS course_fee, p.id AS person_id, p.full_name AS person_name,
        f.amount AS fee_amount, f.due_date AS fee_due_date`

const enrollmentDetailFrom = `FROM enrollments e
JOIN courses c ON c.id = e.course_id
JOIN students s ON s.id = e.student_id
JOIN persons p ON p.id = s.person_id
LEFT JOIN fees f ON f.enrollment_id = e.id`

// EnrollmentRepository is the enrollment ledger store.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrollmentDate.IsZero() {
		enrollment.EnrollmentDate = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPendingPayment
	}
	const query = `INSERT INTO enrollments (id, student_id, course_id, semester, status, enrollment_date, drop_date, payment_status)
        VALUES (:id, :student_id, :course_id, :semester, :status, :enrollment_date, :drop_date, :payment_status)`
	if _, err := sqlx.NamedExecContext(ctx, runner(r.db, tx), query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// LockByID reads an enrollment holding a row lock until the transaction ends.
func (r *EnrollmentRepository) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1 FOR UPDATE`
	var enrollment models.Enrollment
	if err := tx.GetContext(ctx, &enrollment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock enrollment: %w", err)
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with course, person and fee info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + "\n" + enrollmentDetailFrom + "\nWHERE e.id = $1"
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment detail: %w", err)
	}
	return &detail, nil
}

// MarkPaid flips payment_status false→true and activates a pending enrollment.
// It reports false when the row was not pending and unpaid, so the caller can treat the
// payment as already processed.
func (r *EnrollmentRepository) MarkPaid(ctx context.Context, tx *sqlx.Tx, id string) (bool, error) {
	const query = `UPDATE enrollments SET payment_status = TRUE, status = $2, updated_at = $3
        WHERE id = $1 AND payment_status = FALSE AND status = $4`
	res, err := runner(r.db, tx).ExecContext(ctx, query, id, models.EnrollmentStatusActive, time.Now().UTC(), models.EnrollmentStatusPendingPayment)
	if err != nil {
		return false, fmt.Errorf("mark enrollment paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark enrollment paid rows: %w", err)
	}
	return affected == 1, nil
}

// MarkDropped moves an enrollment to DROPPED. The drop date is written only on the first
// transition; it reports false when the enrollment was already dropped.
func (r *EnrollmentRepository) MarkDropped(ctx context.Context, tx *sqlx.Tx, id string, dropDate time.Time) (bool, error) {
	const query = `UPDATE enrollments SET status = $2, drop_date = COALESCE(drop_date, $3), updated_at = $3
        WHERE id = $1 AND status <> $2`
	res, err := runner(r.db, tx).ExecContext(ctx, query, id, models.EnrollmentStatusDropped, dropDate)
	if err != nil {
		return false, fmt.Errorf("drop enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("drop enrollment rows: %w", err)
	}
	return affected == 1, nil
}

// ListByStudent returns every enrollment owned by a student record, newest first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + "\n" + enrollmentDetailFrom + "\nWHERE e.student_id = $1 ORDER BY e.enrollment_date DESC"
	enrollments := []models.EnrollmentDetail{}
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("e.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrollment_date": "e.enrollment_date",
		"person_name":     "p.full_name",
		"course_id":       "e.course_id",
		"semester":        "e.semester",
	}
	orderBy, ok := allowedSorts[filter.SortBy]
	if !ok {
		orderBy = "e.enrollment_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("%s\n%s%s ORDER BY %s %s LIMIT %d OFFSET %d", enrollmentDetailSelect, enrollmentDetailFrom, clause, orderBy, order, size, offset)

	enrollments := []models.EnrollmentDetail{}
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM enrollments e%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// Delete physically removes an enrollment. Its fee cascades.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete enrollment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
