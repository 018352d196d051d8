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

const examColumns = `id, course_id, exam_type, exam_date, location, duration_minutes, max_marks, created_at, updated_at`

// ExamRepository persists exams and their submissions.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs an ExamRepository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

// Create inserts an exam, assigning its id and timestamps.
func (r *ExamRepository) Create(ctx context.Context, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	exam.CreatedAt, exam.UpdatedAt = now, now
	const query = `INSERT INTO exams (` + examColumns + `)
        VALUES (:id, :course_id, :exam_type, :exam_date, :location, :duration_minutes, :max_marks, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

// FindByID returns an exam or sql.ErrNoRows.
func (r *ExamRepository) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	const query = `SELECT ` + examColumns + ` FROM exams WHERE id = $1`
	var exam models.Exam
	if err := r.db.GetContext(ctx, &exam, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find exam: %w", err)
	}
	return &exam, nil
}

// ListByCourse returns a course's exams, earliest first.
func (r *ExamRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Exam, error) {
	const query = `SELECT ` + examColumns + ` FROM exams WHERE course_id = $1 ORDER BY exam_date ASC, id ASC`
	exams := []models.Exam{}
	if err := r.db.SelectContext(ctx, &exams, query, courseID); err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	return exams, nil
}

// Update rewrites the editable fields. The course never changes.
func (r *ExamRepository) Update(ctx context.Context, exam *models.Exam) error {
	exam.UpdatedAt = time.Now().UTC()
	const query = `UPDATE exams SET exam_type = :exam_type, exam_date = :exam_date, location = :location,
        duration_minutes = :duration_minutes, max_marks = :max_marks, updated_at = :updated_at
        WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, exam)
	if err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	return expectOneRow(res, "update exam")
}

// Delete removes an exam together with its submissions.
func (r *ExamRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	return expectOneRow(res, "delete exam")
}

// HasActiveEnrollment reports whether the student holds an ACTIVE enrollment in the course.
func (r *ExamRepository) HasActiveEnrollment(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status = $3)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, studentID, courseID, models.EnrollmentStatusActive); err != nil {
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return ok, nil
}

// CreateSubmission records a hand-in. A second one by the same student yields ErrDuplicate.
func (r *ExamRepository) CreateSubmission(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO submissions (id, exam_id, student_id, reference, submitted_at)
        VALUES (:id, :exam_id, :student_id, :reference, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// ListSubmissions returns an exam's hand-ins with the submitting student's name.
func (r *ExamRepository) ListSubmissions(ctx context.Context, examID string) ([]models.Submission, error) {
	const query = `SELECT sb.id, sb.exam_id, sb.student_id, p.full_name AS student_name, sb.reference, sb.submitted_at
        FROM submissions sb
        JOIN students s ON s.id = sb.student_id
        JOIN persons p ON p.id = s.person_id
        WHERE sb.exam_id = $1
        ORDER BY sb.submitted_at ASC`
	submissions := []models.Submission{}
	if err := r.db.SelectContext(ctx, &submissions, query, examID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

func expectOneRow(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
