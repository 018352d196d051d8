package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	"github.com/noah-isme/uni-enroll-api/internal/service"
	"github.com/noah-isme/uni-enroll-api/pkg/response"
)

type examService interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Exam, error)
	Create(ctx context.Context, actor models.Actor, courseID string, req service.ExamRequest) (*models.Exam, error)
	Update(ctx context.Context, actor models.Actor, examID string, req service.ExamRequest) (*models.Exam, error)
	Delete(ctx context.Context, actor models.Actor, examID string) error
	Submissions(ctx context.Context, examID string) ([]models.Submission, error)
	Submit(ctx context.Context, actor models.Actor, examID string, req service.SubmitRequest) (*models.Submission, error)
}

// ExamHandler exposes exam and assignment management.
type ExamHandler struct {
	exams examService
}

// NewExamHandler constructs ExamHandler.
func NewExamHandler(exams examService) *ExamHandler {
	return &ExamHandler{exams: exams}
}

// ListByCourse godoc
// @Summary List a course's exams
// @Tags Exams
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /professor/courses/{id}/exams [get]
func (h *ExamHandler) ListByCourse(c *gin.Context) {
	exams, err := h.exams.ListByCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exams, nil)
}

// Create godoc
// @Summary Create an exam or assignment
// @Tags Exams
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body service.ExamRequest true "Exam"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /professor/courses/{id}/exams [post]
func (h *ExamHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.ExamRequest
	if !bindJSON(c, &req) {
		return
	}
	exam, err := h.exams.Create(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exam)
}

// Update godoc
// @Summary Edit an exam
// @Tags Exams
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Exam ID"
// @Param payload body service.ExamRequest true "Exam"
// @Success 200 {object} response.Envelope
// @Router /professor/exams/{id} [put]
func (h *ExamHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.ExamRequest
	if !bindJSON(c, &req) {
		return
	}
	exam, err := h.exams.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// Delete godoc
// @Summary Delete an exam
// @Tags Exams
// @Security BearerAuth
// @Param id path string true "Exam ID"
// @Success 204
// @Router /professor/exams/{id} [delete]
func (h *ExamHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.exams.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Submissions godoc
// @Summary List work handed in for an exam
// @Tags Exams
// @Produce json
// @Security BearerAuth
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /professor/exams/{id}/submissions [get]
func (h *ExamHandler) Submissions(c *gin.Context) {
	submissions, err := h.exams.Submissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, nil)
}

// Submit godoc
// @Summary Hand in work for an exam
// @Tags Exams
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Exam ID"
// @Param payload body service.SubmitRequest true "Submission"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exams/{id}/submissions [post]
func (h *ExamHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.SubmitRequest
	if !bindJSON(c, &req) {
		return
	}
	submission, err := h.exams.Submit(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}
