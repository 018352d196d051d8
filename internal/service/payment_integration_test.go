package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	"github.com/noah-isme/uni-enroll-api/internal/repository"
	"github.com/noah-isme/uni-enroll-api/pkg/database"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
)

func newSQLPaymentService(t *testing.T) (*PaymentService, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	db := sqlx.NewDb(raw, "sqlmock")

	persons := repository.NewPersonRepository(db)
	svc := NewPaymentService(
		repository.NewEnrollmentRepository(db),
		repository.NewFeeRepository(db),
		repository.NewStudentRepository(db),
		repository.NewCourseRepository(db),
		NewRolePromotionGate(persons, nil, zap.NewNop()),
		repository.NewAuditRepository(db),
		database.NewTxManager(db),
		nil,
		PaymentConfig{FeeDueWindow: 7 * 24 * time.Hour},
		nil,
		zap.NewNop(),
	)
	return svc, mock
}

func expectPaymentPrelude(mock sqlmock.Sqlmock) {
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "course_id", "semester", "status", "enrollment_date", "drop_date", "payment_status"}).
			AddRow("enr-1", "stu-1", "C101", "Fall2025", "PENDING_PAYMENT", now, nil, false))
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE person_id = $1")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "person_id", "course_label", "created_at", "updated_at"}).
			AddRow("stu-1", "p1", nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1")).
		WithArgs("C101").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "department_id", "description", "fee", "created_at"}).
			AddRow("C101", "Databases", "CS", nil, 500.0, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET payment_status = TRUE")).
		WithArgs("enr-1", models.EnrollmentStatusActive, sqlmock.AnyArg(), models.EnrollmentStatusPendingPayment).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestCompletePaymentCommitsEveryWriteInOneTransaction(t *testing.T) {
	svc, mock := newSQLPaymentService(t)

	expectPaymentPrelude(mock)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fees")).
		WithArgs(sqlmock.AnyArg(), "enr-1", 500.0, sqlmock.AnyArg(), models.PaymentMethodCreditCard, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE persons SET role = $3")).
		WithArgs("p1", models.RoleUser, models.RoleStudent, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET course_label = $2")).
		WithArgs("stu-1", "Databases", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := svc.CompletePayment(context.Background(), userActor("p1"), "enr-1", creditCard)
	require.NoError(t, err)
	assert.False(t, result.AlreadyPaid)
	assert.True(t, result.Promoted)
	assert.Equal(t, 500.0, result.Fee.Amount)
	assert.Equal(t, models.EnrollmentStatusActive, result.Enrollment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletePaymentRollsBackWhenFeeInsertFails(t *testing.T) {
	svc, mock := newSQLPaymentService(t)

	expectPaymentPrelude(mock)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fees")).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := svc.CompletePayment(context.Background(), userActor("p1"), "enr-1", creditCard)
	assertCode(t, err, appErrors.ErrPersistence.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletePaymentMissingCourseRollsBack(t *testing.T) {
	svc, mock := newSQLPaymentService(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "course_id", "semester", "status", "enrollment_date", "drop_date", "payment_status"}).
			AddRow("enr-1", "stu-1", "C101", "Fall2025", "PENDING_PAYMENT", now, nil, false))
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE person_id = $1")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "person_id", "course_label", "created_at", "updated_at"}).
			AddRow("stu-1", "p1", nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1")).
		WithArgs("C101").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := svc.CompletePayment(context.Background(), userActor("p1"), "enr-1", creditCard)
	assertCode(t, err, appErrors.ErrCourseNotFound.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletePaymentAlreadyPaidWritesNothing(t *testing.T) {
	svc, mock := newSQLPaymentService(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "course_id", "semester", "status", "enrollment_date", "drop_date", "payment_status"}).
			AddRow("enr-1", "stu-1", "C101", "Fall2025", "ACTIVE", now, nil, true))
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE person_id = $1")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "person_id", "course_label", "created_at", "updated_at"}).
			AddRow("stu-1", "p1", "Databases", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM fees WHERE enrollment_id = $1")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "enrollment_id", "amount", "due_date", "payment_method", "created_at"}).
			AddRow("fee-1", "enr-1", 500.0, now.Add(7*24*time.Hour), "Credit Card", now))
	mock.ExpectCommit()

	result, err := svc.CompletePayment(context.Background(), models.Actor{PersonID: "p1", Role: models.RoleStudent}, "enr-1", creditCard)
	require.NoError(t, err)
	assert.True(t, result.AlreadyPaid)
	assert.Equal(t, "fee-1", result.Fee.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
