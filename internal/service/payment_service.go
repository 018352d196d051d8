package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
	"github.com/noah-isme/uni-enroll-api/pkg/export"
)

type paymentEnrollmentRepository interface {
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error)
	MarkPaid(ctx context.Context, tx *sqlx.Tx, id string) (bool, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type feeRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, fee *models.Fee) error
	FindByEnrollment(ctx context.Context, tx *sqlx.Tx, enrollmentID string) (*models.Fee, error)
}

type studentPromoter interface {
	PromoteToStudent(ctx context.Context, tx *sqlx.Tx, personID string) (bool, error)
}

// CompletePaymentRequest carries the chosen payment method.
type CompletePaymentRequest struct {
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required"`
}

// PaymentResult is the outcome of a payment. AlreadyPaid marks a repeated submission that
// changed nothing; Fee is then the one recorded by the first payment.
type PaymentResult struct {
	Fee         *models.Fee        `json:"fee"`
	Enrollment  *models.Enrollment `json:"enrollment"`
	AlreadyPaid bool               `json:"already_paid"`
	Promoted    bool               `json:"promoted"`
}

// PaymentConfig tunes fee creation.
type PaymentConfig struct {
	FeeDueWindow time.Duration
}

// PaymentService settles the fee of a pending enrollment.
type PaymentService struct {
	enrollments paymentEnrollmentRepository
	fees        feeRepository
	students    studentRepository
	courses     courseReader
	gate        studentPromoter
	audits      auditWriter
	tx          unitOfWork
	pdf         pdfRenderer
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         PaymentConfig
	now         func() time.Time
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(
	enrollments paymentEnrollmentRepository,
	fees feeRepository,
	students studentRepository,
	courses courseReader,
	gate studentPromoter,
	audits auditWriter,
	tx unitOfWork,
	metrics *MetricsService,
	cfg PaymentConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FeeDueWindow <= 0 {
		cfg.FeeDueWindow = 7 * 24 * time.Hour
	}
	return &PaymentService{
		enrollments: enrollments,
		fees:        fees,
		students:    students,
		courses:     courses,
		gate:        gate,
		audits:      audits,
		tx:          tx,
		pdf:         export.NewPDFExporter(),
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CompletePayment records the fee, activates the enrollment and promotes the payer in one
// transaction. Concurrent submissions for the same enrollment produce exactly one fee; the
// losers get AlreadyPaid.
func (s *PaymentService) CompletePayment(ctx context.Context, actor models.Actor, enrollmentID string, req CompletePaymentRequest) (result *PaymentResult, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if !req.PaymentMethod.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported payment method %q", req.PaymentMethod))
	}

	start := time.Now()
	ctx, span := tracer.Start(ctx, "payment.complete")
	span.SetAttributes(
		attribute.String("enrollment.id", enrollmentID),
		attribute.String("person.id", actor.PersonID),
		attribute.String("payment.method", string(req.PaymentMethod)),
	)
	defer func() {
		if result != nil {
			span.SetAttributes(attribute.Bool("payment.already_paid", result.AlreadyPaid))
		}
		endSpan(span, err)
		s.metrics.PaymentCompleted(paymentOutcome(result, err), time.Since(start))
	}()

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := s.pay(ctx, tx, actor, enrollmentID, req.PaymentMethod)
		result = res
		return err
	})
	if err != nil {
		result = nil
		return nil, txFailure(err, "payment could not be recorded")
	}

	if result.AlreadyPaid {
		s.logger.Info("payment already processed", zap.String("enrollment_id", enrollmentID), zap.String("person_id", actor.PersonID))
	} else {
		s.logger.Info("payment completed",
			zap.String("enrollment_id", enrollmentID),
			zap.String("person_id", actor.PersonID),
			zap.String("fee_id", result.Fee.ID),
			zap.Float64("amount", result.Fee.Amount),
			zap.Bool("promoted", result.Promoted),
		)
	}
	return result, nil
}

func (s *PaymentService) pay(ctx context.Context, tx *sqlx.Tx, actor models.Actor, enrollmentID string, method models.PaymentMethod) (*PaymentResult, error) {
	enrollment, err := s.enrollments.LockByID(ctx, tx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrEnrollmentNotFound, "enrollment not found")
		}
		return nil, err
	}

	student, err := s.students.FindByPerson(ctx, tx, actor.PersonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
		}
		return nil, err
	}
	if student.ID != enrollment.StudentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}

	if enrollment.PaymentStatus {
		return s.alreadyPaid(ctx, tx, enrollment)
	}
	if enrollment.Dropped() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "dropped enrollments cannot be paid")
	}

	course, err := s.courses.FindByID(ctx, tx, enrollment.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrCourseNotFound, fmt.Sprintf("course %s not found", enrollment.CourseID))
		}
		return nil, err
	}

	changed, err := s.enrollments.MarkPaid(ctx, tx, enrollment.ID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return s.alreadyPaid(ctx, tx, enrollment)
	}
	enrollment.PaymentStatus = true
	enrollment.Status = models.EnrollmentStatusActive

	now := s.now()
	fee := &models.Fee{
		EnrollmentID:  enrollment.ID,
		Amount:        course.Fee,
		DueDate:       now.Add(s.cfg.FeeDueWindow),
		PaymentMethod: method,
		CreatedAt:     now,
	}
	if err := s.fees.Create(ctx, tx, fee); err != nil {
		return nil, err
	}

	promoted, err := s.gate.PromoteToStudent(ctx, tx, actor.PersonID)
	if err != nil {
		return nil, err
	}

	if err := s.students.UpdateCourseLabel(ctx, tx, student.ID, course.Name); err != nil {
		return nil, err
	}

	if err := s.auditTx(ctx, tx, actor.PersonID, models.AuditActionPaymentComplete, "enrollment", enrollment.ID, fee); err != nil {
		return nil, err
	}
	if promoted {
		change := map[string]models.Role{"from": models.RoleUser, "to": models.RoleStudent}
		if err := s.auditTx(ctx, tx, actor.PersonID, models.AuditActionRolePromotion, "person", actor.PersonID, change); err != nil {
			return nil, err
		}
	}

	return &PaymentResult{Fee: fee, Enrollment: enrollment, Promoted: promoted}, nil
}

func (s *PaymentService) alreadyPaid(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) (*PaymentResult, error) {
	fee, err := s.fees.FindByEnrollment(ctx, tx, enrollment.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return &PaymentResult{Fee: fee, Enrollment: enrollment, AlreadyPaid: true}, nil
}

func (s *PaymentService) auditTx(ctx context.Context, tx *sqlx.Tx, personID, action, resource, resourceID string, value interface{}) error {
	if s.audits == nil {
		return nil
	}
	entry, err := newAuditLog(personID, action, resource, resourceID, nil, value)
	if err != nil {
		return err
	}
	return s.audits.Create(ctx, tx, entry)
}

// Receipt renders a PDF receipt for a paid enrollment, visible to its owner or an admin.
func (s *PaymentService) Receipt(ctx context.Context, actor models.Actor, enrollmentID string) (*ExportFile, error) {
	detail, err := s.enrollments.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrEnrollmentNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if !actor.IsAdmin() && detail.PersonID != actor.PersonID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}

	fee, err := s.fees.FindByEnrollment(ctx, nil, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment has not been paid")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee")
	}

	body, err := s.pdf.RenderDocument(export.Document{
		Title:    "Payment receipt",
		Subtitle: fmt.Sprintf("%s %s", detail.CourseID, detail.Semester),
		Fields: []export.Field{
			{Label: "Receipt", Value: fee.ID},
			{Label: "Student", Value: detail.PersonName},
			{Label: "Course", Value: fmt.Sprintf("%s (%s)", detail.CourseName, detail.CourseID)},
			{Label: "Semester", Value: detail.Semester},
			{Label: "Amount", Value: fmt.Sprintf("%.2f", fee.Amount)},
			{Label: "Payment method", Value: string(fee.PaymentMethod)},
			{Label: "Paid at", Value: fee.CreatedAt.Format(time.RFC1123)},
			{Label: "Due date", Value: fee.DueDate.Format("2006-01-02")},
			{Label: "Enrollment status", Value: string(detail.Status)},
		},
		Footer: "This receipt confirms the enrollment fee was recorded.",
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("receipt-%s.pdf", enrollmentID),
		ContentType: "application/pdf",
		Body:        body,
	}, nil
}

func paymentOutcome(result *PaymentResult, err error) string {
	switch {
	case err == nil && result != nil && result.AlreadyPaid:
		return PaymentOutcomeAlreadyPaid
	case err == nil:
		return PaymentOutcomePaid
	case errors.Is(err, appErrors.ErrPersistence):
		return PaymentOutcomeFailed
	default:
		return PaymentOutcomeRejected
	}
}
