package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
	"github.com/noah-isme/uni-enroll-api/pkg/export"
)

type enrollmentRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	MarkDropped(ctx context.Context, tx *sqlx.Tx, id string, dropDate time.Time) (bool, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	Delete(ctx context.Context, id string) error
}

type studentRepository interface {
	FindByPerson(ctx context.Context, tx *sqlx.Tx, personID string) (*models.Student, error)
	Create(ctx context.Context, tx *sqlx.Tx, student *models.Student) (bool, error)
	UpdateCourseLabel(ctx context.Context, tx *sqlx.Tx, id, label string) error
}

type courseReader interface {
	FindByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Course, error)
}

type personReader interface {
	FindByID(ctx context.Context, id string) (*models.Person, error)
	LockRole(ctx context.Context, tx *sqlx.Tx, id string) (models.Role, error)
}

type auditWriter interface {
	Create(ctx context.Context, tx *sqlx.Tx, log *models.AuditLog) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	RenderDocument(doc export.Document) ([]byte, error)
}

// RequestEnrollmentRequest is the payload for a new enrollment.
type RequestEnrollmentRequest struct {
	CourseID string `json:"course_id" validate:"required,max=20"`
	Semester string `json:"semester" validate:"required,max=20"`
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// EnrollmentService owns the enrollment ledger: request, drop and the read side.
type EnrollmentService struct {
	enrollments enrollmentRepository
	students    studentRepository
	courses     courseReader
	persons     personReader
	audits      auditWriter
	tx          unitOfWork
	csv         csvRenderer
	pdf         pdfRenderer
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(
	enrollments enrollmentRepository,
	students studentRepository,
	courses courseReader,
	persons personReader,
	audits auditWriter,
	tx unitOfWork,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		students:    students,
		courses:     courses,
		persons:     persons,
		audits:      audits,
		tx:          tx,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RequestEnrollment creates a PENDING_PAYMENT enrollment for a caller still holding the USER role.
// The caller's student record is created on first use.
func (s *EnrollmentService) RequestEnrollment(ctx context.Context, actor models.Actor, req RequestEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if actor.Role != models.RoleUser {
		return nil, appErrors.Clone(appErrors.ErrAlreadyRoleAssigned, "only USER accounts can request enrollment")
	}

	person, err := s.persons.FindByID(ctx, actor.PersonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	if person.Role != models.RoleUser {
		return nil, appErrors.Clone(appErrors.ErrAlreadyRoleAssigned, "only USER accounts can request enrollment")
	}

	if _, err := s.courses.FindByID(ctx, nil, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrCourseNotFound, fmt.Sprintf("course %s not found", req.CourseID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	var enrollment *models.Enrollment
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		// Re-read under lock: a payment committing since the check above may have promoted the caller.
		role, err := s.persons.LockRole(ctx, tx, actor.PersonID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "person not found")
			}
			return err
		}
		if role != models.RoleUser {
			return appErrors.Clone(appErrors.ErrAlreadyRoleAssigned, "only USER accounts can request enrollment")
		}

		student, err := s.ensureStudent(ctx, tx, actor.PersonID)
		if err != nil {
			return err
		}
		enrollment = &models.Enrollment{
			StudentID:      student.ID,
			CourseID:       req.CourseID,
			Semester:       req.Semester,
			Status:         models.EnrollmentStatusPendingPayment,
			EnrollmentDate: s.now(),
			PaymentStatus:  false,
		}
		return s.enrollments.Create(ctx, tx, enrollment)
	})
	if err != nil {
		return nil, txFailure(err, "failed to record enrollment")
	}

	s.metrics.EnrollmentRequested()
	s.logger.Info("enrollment requested",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("person_id", actor.PersonID),
		zap.String("course_id", req.CourseID),
		zap.String("semester", req.Semester),
	)
	s.audit(ctx, actor.PersonID, models.AuditActionEnrollmentRequest, enrollment.ID, nil, enrollment)
	return enrollment, nil
}

// ensureStudent returns the person's student record, creating it when missing.
// A concurrent request may win the insert, in which case its row is read back.
func (s *EnrollmentService) ensureStudent(ctx context.Context, tx *sqlx.Tx, personID string) (*models.Student, error) {
	student, err := s.students.FindByPerson(ctx, tx, personID)
	if err == nil {
		return student, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	student = &models.Student{PersonID: personID}
	inserted, err := s.students.Create(ctx, tx, student)
	if err != nil {
		return nil, err
	}
	if inserted {
		return student, nil
	}
	return s.students.FindByPerson(ctx, tx, personID)
}

// DropEnrollment moves the caller's enrollment to DROPPED. Dropping twice is a no-op and
// keeps the first drop date.
func (s *EnrollmentService) DropEnrollment(ctx context.Context, actor models.Actor, enrollmentID string) (result *models.Enrollment, err error) {
	ctx, span := tracer.Start(ctx, "enrollment.drop")
	span.SetAttributes(attribute.String("enrollment.id", enrollmentID), attribute.String("person.id", actor.PersonID))
	defer func() { endSpan(span, err) }()

	dropped := false
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		enrollment, err := s.enrollments.LockByID(ctx, tx, enrollmentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrEnrollmentNotFound, "enrollment not found")
			}
			return err
		}
		if err := s.checkOwnership(ctx, tx, actor, enrollment); err != nil {
			return err
		}
		if enrollment.Dropped() {
			result = enrollment
			return nil
		}

		dropAt := s.now()
		changed, err := s.enrollments.MarkDropped(ctx, tx, enrollment.ID, dropAt)
		if err != nil {
			return err
		}
		if !changed {
			result, err = s.enrollments.LockByID(ctx, tx, enrollment.ID)
			return err
		}
		enrollment.Status = models.EnrollmentStatusDropped
		enrollment.DropDate = &dropAt
		result = enrollment
		dropped = true
		return nil
	})
	if err != nil {
		return nil, txFailure(err, "failed to drop enrollment")
	}

	if dropped {
		s.metrics.EnrollmentDropped()
		s.logger.Info("enrollment dropped", zap.String("enrollment_id", enrollmentID), zap.String("person_id", actor.PersonID))
		s.audit(ctx, actor.PersonID, models.AuditActionEnrollmentDrop, enrollmentID, nil, result)
	}
	return result, nil
}

// checkOwnership verifies the enrollment belongs to the actor's student record.
func (s *EnrollmentService) checkOwnership(ctx context.Context, tx *sqlx.Tx, actor models.Actor, enrollment *models.Enrollment) error {
	student, err := s.students.FindByPerson(ctx, tx, actor.PersonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
		}
		return err
	}
	if student.ID != enrollment.StudentID {
		return appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}
	return nil
}

// ListForActor returns the caller's enrollments. A person without a student record has none.
func (s *EnrollmentService) ListForActor(ctx context.Context, actor models.Actor) ([]models.EnrollmentDetail, error) {
	student, err := s.students.FindByPerson(ctx, nil, actor.PersonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.EnrollmentDetail{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student record")
	}
	enrollments, err := s.enrollments.ListByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single enrollment visible to its owner or an admin.
func (s *EnrollmentService) Get(ctx context.Context, actor models.Actor, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.enrollments.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrEnrollmentNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if !actor.IsAdmin() && detail.PersonID != actor.PersonID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}
	return detail, nil
}

// Delete physically removes an enrollment and its fee.
func (s *EnrollmentService) Delete(ctx context.Context, actor models.Actor, id string) error {
	existing, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrEnrollmentNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.enrollments.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrEnrollmentNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	s.logger.Info("enrollment deleted", zap.String("enrollment_id", id), zap.String("actor_id", actor.PersonID))
	s.audit(ctx, actor.PersonID, models.AuditActionEnrollmentDelete, id, existing, nil)
	return nil
}

// Export renders the filtered listing as csv or pdf. Pagination in the filter is honoured.
func (s *EnrollmentService) Export(ctx context.Context, filter models.EnrollmentFilter, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "pdf" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	enrollments, _, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	dataset := enrollmentDataset(enrollments)
	stamp := s.now().Format("20060102-150405")

	var body []byte
	file := &ExportFile{Filename: fmt.Sprintf("enrollments-%s.%s", stamp, format)}
	if format == "csv" {
		body, err = s.csv.Render(dataset)
		file.ContentType = "text/csv"
	} else {
		body, err = s.pdf.Render(dataset, "Enrollments")
		file.ContentType = "application/pdf"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	file.Body = body
	return file, nil
}

func enrollmentDataset(rows []models.EnrollmentDetail) export.Dataset {
	data := export.Dataset{
		Headers: []string{"enrollment_id", "student", "course_id", "course", "semester", "status", "paid", "enrolled_at", "dropped_at"},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, e := range rows {
		dropped := ""
		if e.DropDate != nil {
			dropped = e.DropDate.Format(time.RFC3339)
		}
		data.Rows = append(data.Rows, map[string]string{
			"enrollment_id": e.ID,
			"student":       e.PersonName,
			"course_id":     e.CourseID,
			"course":        e.CourseName,
			"semester":      e.Semester,
			"status":        string(e.Status),
			"paid":          fmt.Sprintf("%t", e.PaymentStatus),
			"enrolled_at":   e.EnrollmentDate.Format(time.RFC3339),
			"dropped_at":    dropped,
		})
	}
	return data
}

// audit records a trail entry outside any transaction. Failures are logged, not returned.
func (s *EnrollmentService) audit(ctx context.Context, personID, action, resourceID string, oldValue, newValue interface{}) {
	if s.audits == nil {
		return
	}
	entry, err := newAuditLog(personID, action, "enrollment", resourceID, oldValue, newValue)
	if err == nil {
		err = s.audits.Create(ctx, nil, entry)
	}
	if err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func newAuditLog(personID, action, resource, resourceID string, oldValue, newValue interface{}) (*models.AuditLog, error) {
	entry := &models.AuditLog{Action: action, Resource: resource}
	if personID != "" {
		entry.PersonID = &personID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if oldValue != nil {
		raw, err := json.Marshal(oldValue)
		if err != nil {
			return nil, err
		}
		entry.OldValues = raw
	}
	if newValue != nil {
		raw, err := json.Marshal(newValue)
		if err != nil {
			return nil, err
		}
		entry.NewValues = raw
	}
	return entry, nil
}
