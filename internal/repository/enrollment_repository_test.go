package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-enroll-api/internal/models"
)

var enrollmentRowColumns = []string{"id", "student_id", "course_id", "semester", "status", "enrollment_date", "drop_date", "payment_status"}

func TestEnrollmentRepositoryCreateDefaults(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "C101", "Fall2025", models.EnrollmentStatusPendingPayment, sqlmock.AnyArg(), nil, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{StudentID: "stu-1", CourseID: "C101", Semester: "Fall2025"}
	require.NoError(t, repo.Create(context.Background(), nil, enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.False(t, enrollment.EnrollmentDate.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryLockByID(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).
			AddRow("enr-1", "stu-1", "C101", "Fall2025", models.EnrollmentStatusPendingPayment, time.Now(), nil, false))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	tx, err := db.Beginx()
	require.NoError(t, err)
	enrollment, err := repo.LockByID(context.Background(), tx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPendingPayment, enrollment.Status)

	_, err = repo.LockByID(context.Background(), tx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryMarkPaidIsConditional(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewEnrollmentRepository(db)

	query := regexp.QuoteMeta("UPDATE enrollments SET payment_status = TRUE") + ".*" + regexp.QuoteMeta("payment_status = FALSE AND status = $4")
	mock.ExpectExec(query).
		WithArgs("enr-1", models.EnrollmentStatusActive, sqlmock.AnyArg(), models.EnrollmentStatusPendingPayment).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs("enr-1", models.EnrollmentStatusActive, sqlmock.AnyArg(), models.EnrollmentStatusPendingPayment).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.MarkPaid(context.Background(), nil, "enr-1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkPaid(context.Background(), nil, "enr-1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryMarkDroppedKeepsFirstDate(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewEnrollmentRepository(db)
	dropAt := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("drop_date = COALESCE(drop_date, $3)")+".*"+regexp.QuoteMeta("status <> $2")).
		WithArgs("enr-1", models.EnrollmentStatusDropped, dropAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.MarkDropped(context.Background(), nil, "enr-1", dropAt)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryList(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewEnrollmentRepository(db)

	detailColumns := append(append([]string{}, enrollmentRowColumns...), "course_name", "course_fee", "person_id", "person_name", "fee_amount", "fee_due_date")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.course_id = $1 AND e.status = $2 ORDER BY e.enrollment_date DESC LIMIT 20 OFFSET 0")).
		WithArgs("C101", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows(detailColumns).
			AddRow("enr-1", "stu-1", "C101", "Fall2025", models.EnrollmentStatusActive, time.Now(), nil, true, "Databases", 500.0, "p-1", "Pat", 500.0, time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments e WHERE e.course_id = $1 AND e.status = $2")).
		WithArgs("C101", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.EnrollmentFilter{CourseID: "C101", Status: models.EnrollmentStatusActive, SortBy: "nope"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Databases", items[0].CourseName)
	require.NotNil(t, items[0].FeeAmount)
	assert.Equal(t, 500.0, *items[0].FeeAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDeleteMissing(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
