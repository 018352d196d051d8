package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	"github.com/noah-isme/uni-enroll-api/internal/repository"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
)

type examRepository interface {
	Create(ctx context.Context, exam *models.Exam) error
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Exam, error)
	Update(ctx context.Context, exam *models.Exam) error
	Delete(ctx context.Context, id string) error
	HasActiveEnrollment(ctx context.Context, studentID, courseID string) (bool, error)
	CreateSubmission(ctx context.Context, submission *models.Submission) error
	ListSubmissions(ctx context.Context, examID string) ([]models.Submission, error)
}

type studentFinder interface {
	FindByPerson(ctx context.Context, tx *sqlx.Tx, personID string) (*models.Student, error)
}

// ExamRequest creates or replaces an exam. Location and duration apply to written exams only.
type ExamRequest struct {
	ExamType        models.ExamType `json:"exam_type" validate:"required,oneof=Written Assignment"`
	Date            time.Time       `json:"date" validate:"required"`
	Location        string          `json:"location" validate:"max=255"`
	DurationMinutes int             `json:"duration_minutes" validate:"gte=0,lte=1440"`
	MaxMarks        float64         `json:"max_marks" validate:"gt=0,lte=1000"`
}

// SubmitRequest hands in work for an exam.
type SubmitRequest struct {
	Reference string `json:"reference" validate:"required,max=1024"`
}

// ExamService lets professors manage a course's exams and assignments and lets enrolled
// students hand in work.
type ExamService struct {
	exams     examRepository
	courses   courseReader
	students  studentFinder
	audits    auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExamService constructs ExamService.
func NewExamService(exams examRepository, courses courseReader, students studentFinder, audits auditWriter, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamService{exams: exams, courses: courses, students: students, audits: audits, validator: validate, logger: logger}
}

// ListByCourse returns the exams scheduled for a course.
func (s *ExamService) ListByCourse(ctx context.Context, courseID string) ([]models.Exam, error) {
	if err := s.requireCourse(ctx, courseID); err != nil {
		return nil, err
	}
	exams, err := s.exams.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}
	return exams, nil
}

// Create schedules an exam for a course.
func (s *ExamService) Create(ctx context.Context, actor models.Actor, courseID string, req ExamRequest) (*models.Exam, error) {
	if actor.Role != models.RoleProfessor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "professor role required")
	}
	exam := &models.Exam{CourseID: courseID}
	if err := s.apply(exam, req); err != nil {
		return nil, err
	}
	if err := s.requireCourse(ctx, courseID); err != nil {
		return nil, err
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam")
	}

	s.logger.Info("exam created",
		zap.String("exam_id", exam.ID),
		zap.String("course_id", courseID),
		zap.String("exam_type", string(exam.ExamType)),
		zap.String("actor_id", actor.PersonID),
	)
	s.audit(ctx, actor.PersonID, models.AuditActionExamCreate, exam.ID, nil, exam)
	return exam, nil
}

// Update replaces an exam's schedule and marking details.
func (s *ExamService) Update(ctx context.Context, actor models.Actor, examID string, req ExamRequest) (*models.Exam, error) {
	if actor.Role != models.RoleProfessor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "professor role required")
	}
	exam, err := s.find(ctx, examID)
	if err != nil {
		return nil, err
	}
	before := *exam
	if err := s.apply(exam, req); err != nil {
		return nil, err
	}
	if err := s.exams.Update(ctx, exam); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrExamNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update exam")
	}

	s.logger.Info("exam updated", zap.String("exam_id", examID), zap.String("actor_id", actor.PersonID))
	s.audit(ctx, actor.PersonID, models.AuditActionExamUpdate, examID, before, exam)
	return exam, nil
}

// Delete removes an exam and its submissions.
func (s *ExamService) Delete(ctx context.Context, actor models.Actor, examID string) error {
	if actor.Role != models.RoleProfessor {
		return appErrors.Clone(appErrors.ErrForbidden, "professor role required")
	}
	if err := s.exams.Delete(ctx, examID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrExamNotFound, "exam not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete exam")
	}
	s.logger.Info("exam deleted", zap.String("exam_id", examID), zap.String("actor_id", actor.PersonID))
	s.audit(ctx, actor.PersonID, models.AuditActionExamDelete, examID, nil, nil)
	return nil
}

// Submissions lists the work handed in for an exam.
func (s *ExamService) Submissions(ctx context.Context, examID string) ([]models.Submission, error) {
	if _, err := s.find(ctx, examID); err != nil {
		return nil, err
	}
	submissions, err := s.exams.ListSubmissions(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// Submit hands in work for an exam. Only students with an ACTIVE enrollment in the exam's
// course may submit, once per exam.
func (s *ExamService) Submit(ctx context.Context, actor models.Actor, examID string, req SubmitRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	exam, err := s.find(ctx, examID)
	if err != nil {
		return nil, err
	}

	student, err := s.students.FindByPerson(ctx, nil, actor.PersonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only enrolled students can submit")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	active, err := s.exams.HasActiveEnrollment(ctx, student.ID, exam.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !active {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "an active enrollment in the course is required")
	}

	submission := &models.Submission{ExamID: examID, StudentID: student.ID, Reference: strings.TrimSpace(req.Reference)}
	if err := s.exams.CreateSubmission(ctx, submission); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "work already submitted for this exam")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record submission")
	}
	s.audit(ctx, actor.PersonID, models.AuditActionExamSubmit, submission.ID, nil, submission)
	return submission, nil
}

// apply validates req and copies it onto exam. Assignments get location N/A and no duration;
// written exams need both.
func (s *ExamService) apply(exam *models.Exam, req ExamRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}
	location := strings.TrimSpace(req.Location)
	duration := req.DurationMinutes
	switch req.ExamType {
	case models.ExamTypeAssignment:
		location, duration = models.AssignmentLocation, 0
	case models.ExamTypeWritten:
		if location == "" || duration <= 0 {
			return appErrors.Clone(appErrors.ErrValidation, "written exams need a location and a duration")
		}
	}
	exam.ExamType = req.ExamType
	exam.Date = req.Date.UTC()
	exam.Location = location
	exam.DurationMinutes = duration
	exam.MaxMarks = req.MaxMarks
	return nil
}

func (s *ExamService) requireCourse(ctx context.Context, courseID string) error {
	if _, err := s.courses.FindByID(ctx, nil, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrCourseNotFound, fmt.Sprintf("course %s not found", courseID))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return nil
}

func (s *ExamService) find(ctx context.Context, examID string) (*models.Exam, error) {
	exam, err := s.exams.FindByID(ctx, examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrExamNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return exam, nil
}

func (s *ExamService) audit(ctx context.Context, personID, action, resourceID string, oldValue, newValue interface{}) {
	if s.audits == nil {
		return
	}
	entry, err := newAuditLog(personID, action, "exam", resourceID, oldValue, newValue)
	if err == nil {
		err = s.audits.Create(ctx, nil, entry)
	}
	if err != nil {
		s.logger.Warn("failed to record exam audit log", zap.String("action", action), zap.Error(err))
	}
}
