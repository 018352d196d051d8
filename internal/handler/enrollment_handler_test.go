package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	"github.com/noah-isme/uni-enroll-api/internal/service"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
)

type enrollmentServiceMock struct {
	requestResp *models.Enrollment
	requestErr  error
	dropResp    *models.Enrollment
	dropErr     error
	exportResp  *service.ExportFile
	lastActor   models.Actor
	lastReq     service.RequestEnrollmentRequest
	lastFilter  models.EnrollmentFilter
	lastFormat  string
	deletedID   string
}

func (m *enrollmentServiceMock) RequestEnrollment(ctx context.Context, actor models.Actor, req service.RequestEnrollmentRequest) (*models.Enrollment, error) {
	m.lastActor = actor
	m.lastReq = req
	return m.requestResp, m.requestErr
}

func (m *enrollmentServiceMock) DropEnrollment(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error) {
	m.lastActor = actor
	return m.dropResp, m.dropErr
}

func (m *enrollmentServiceMock) ListForActor(ctx context.Context, actor models.Actor) ([]models.EnrollmentDetail, error) {
	m.lastActor = actor
	return []models.EnrollmentDetail{}, nil
}

func (m *enrollmentServiceMock) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	m.lastFilter = filter
	return []models.EnrollmentDetail{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (m *enrollmentServiceMock) Get(ctx context.Context, actor models.Actor, id string) (*models.EnrollmentDetail, error) {
	return nil, appErrors.Clone(appErrors.ErrEnrollmentNotFound, "enrollment not found")
}

func (m *enrollmentServiceMock) Delete(ctx context.Context, actor models.Actor, id string) error {
	m.deletedID = id
	return nil
}

func (m *enrollmentServiceMock) Export(ctx context.Context, filter models.EnrollmentFilter, format string) (*service.ExportFile, error) {
	m.lastFilter = filter
	m.lastFormat = format
	return m.exportResp, nil
}

func TestEnrollmentHandlerRequest(t *testing.T) {
	mockSvc := &enrollmentServiceMock{requestResp: &models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusPendingPayment}}
	h := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/enrollments", `{"course_id":"C101","semester":"Fall2025"}`, userClaims("p1"))
	h.Request(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "p1", mockSvc.lastActor.PersonID)
	assert.Equal(t, models.RoleUser, mockSvc.lastActor.Role)
	assert.Equal(t, "C101", mockSvc.lastReq.CourseID)
	assert.Contains(t, w.Body.String(), "PENDING_PAYMENT")
}

func TestEnrollmentHandlerRequestErrors(t *testing.T) {
	mockSvc := &enrollmentServiceMock{requestErr: appErrors.Clone(appErrors.ErrAlreadyRoleAssigned, "only USER accounts can request enrollment")}
	h := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/enrollments", `{"course_id":"C101","semester":"Fall2025"}`, userClaims("p1"))
	h.Request(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "ALREADY_ROLE_ASSIGNED", decodeEnvelope(t, w).Error.Code)

	c, w = newTestContext(http.MethodPost, "/enrollments", `{"course_id":`, userClaims("p1"))
	h.Request(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newTestContext(http.MethodPost, "/enrollments", `{}`, nil)
	h.Request(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEnrollmentHandlerDrop(t *testing.T) {
	mockSvc := &enrollmentServiceMock{dropResp: &models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusDropped}}
	h := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/enrollments/enr-1/drop", "", userClaims("p1"))
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}
	h.Drop(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "DROPPED")
}

func TestEnrollmentHandlerGetNotFound(t *testing.T) {
	h := NewEnrollmentHandler(&enrollmentServiceMock{})
	c, w := newTestContext(http.MethodGet, "/enrollments/x", "", userClaims("p1"))
	c.Params = gin.Params{{Key: "id", Value: "x"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ENROLLMENT_NOT_FOUND", decodeEnvelope(t, w).Error.Code)
}

func TestEnrollmentHandlerListParsesFilter(t *testing.T) {
	mockSvc := &enrollmentServiceMock{}
	h := NewEnrollmentHandler(mockSvc)
	admin := &models.JWTClaims{PersonID: "admin", Role: models.RoleAdmin}

	c, w := newTestContext(http.MethodGet, "/admin/enrollments?courseId=C101&status=active&page=2&limit=5", "", admin)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "C101", mockSvc.lastFilter.CourseID)
	assert.Equal(t, models.EnrollmentStatusActive, mockSvc.lastFilter.Status)
	assert.Equal(t, 2, mockSvc.lastFilter.Page)
	assert.Equal(t, 5, mockSvc.lastFilter.PageSize)
}

func TestEnrollmentHandlerExportAndDelete(t *testing.T) {
	mockSvc := &enrollmentServiceMock{exportResp: &service.ExportFile{Filename: "enrollments.csv", ContentType: "text/csv", Body: []byte("a,b\n")}}
	h := NewEnrollmentHandler(mockSvc)
	admin := &models.JWTClaims{PersonID: "admin", Role: models.RoleAdmin}

	c, w := newTestContext(http.MethodGet, "/admin/enrollments/export?format=csv", "", admin)
	h.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", mockSvc.lastFormat)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "enrollments.csv")
	assert.Equal(t, "a,b\n", w.Body.String())

	c, w = newTestContext(http.MethodDelete, "/admin/enrollments/enr-9", "", admin)
	c.Params = gin.Params{{Key: "id", Value: "enr-9"}}
	h.Delete(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "enr-9", mockSvc.deletedID)
}
