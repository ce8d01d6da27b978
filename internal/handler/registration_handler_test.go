package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseloop/registration-api/internal/middleware"
	"github.com/courseloop/registration-api/internal/models"
	"github.com/courseloop/registration-api/internal/service"
	appErrors "github.com/courseloop/registration-api/pkg/errors"
)

type registrationServiceMock struct {
	listResp   []models.RegistrationDetail
	listPage   *models.Pagination
	createResp *models.RegistrationDetail
	createErr  error
	exportResp *service.ExportResult
	exportErr  error
	lastFilter models.RegistrationFilter
	lastFormat service.ExportFormat
	lastActor  *models.JWTClaims
}

func (m *registrationServiceMock) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error) {
	m.lastFilter = filter
	return m.listResp, m.listPage, nil
}

func (m *registrationServiceMock) Get(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
}

func (m *registrationServiceMock) Create(ctx context.Context, actor *models.JWTClaims, req service.CreateRegistrationRequest) (*models.RegistrationDetail, error) {
	m.lastActor = actor
	return m.createResp, m.createErr
}

func (m *registrationServiceMock) Update(ctx context.Context, actor *models.JWTClaims, id string, req service.UpdateRegistrationRequest) (*models.RegistrationDetail, error) {
	return nil, nil
}

func (m *registrationServiceMock) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	return nil
}

func (m *registrationServiceMock) Export(ctx context.Context, filter models.RegistrationFilter, format service.ExportFormat) (*service.ExportResult, error) {
	m.lastFilter = filter
	m.lastFormat = format
	return m.exportResp, m.exportErr
}

func staffContext(w *httptest.ResponseRecorder) *gin.Context {
	c, _ := gin.CreateTestContext(w)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})
	return c
}

func TestRegistrationHandlerListFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &registrationServiceMock{
		listPage: &models.Pagination{Page: 1, PageSize: 20},
	}
	h := NewRegistrationHandler(mockSvc)

	w := httptest.NewRecorder()
	c := staffContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/registrations?courseId=course-1&status=confirmed", nil)
	c.Request = req

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "course-1", mockSvc.lastFilter.CourseID)
	assert.Equal(t, models.RegistrationStatusConfirmed, mockSvc.lastFilter.Status)
}

func TestRegistrationHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &registrationServiceMock{
		createResp: &models.RegistrationDetail{Registration: models.Registration{ID: "reg-1"}},
	}
	h := NewRegistrationHandler(mockSvc)

	payload, _ := json.Marshal(service.CreateRegistrationRequest{
		StudentID: "student-1",
		CourseID:  "course-1",
		Status:    models.RegistrationStatusPending,
	})
	w := httptest.NewRecorder()
	c := staffContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/registrations", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, mockSvc.lastActor)
	assert.Equal(t, "staff-1", mockSvc.lastActor.UserID)
}

func TestRegistrationHandlerCreateDuplicate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &registrationServiceMock{createErr: appErrors.ErrAlreadyEnrolled}
	h := NewRegistrationHandler(mockSvc)

	payload, _ := json.Marshal(service.CreateRegistrationRequest{
		StudentID: "student-1",
		CourseID:  "course-1",
		Status:    models.RegistrationStatusPending,
	})
	w := httptest.NewRecorder()
	c := staffContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/registrations", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	h.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestRegistrationHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &registrationServiceMock{
		exportResp: &service.ExportResult{
			Content:     []byte("Student,Email\n"),
			ContentType: "text/csv",
			Filename:    "registrations.csv",
		},
	}
	h := NewRegistrationHandler(mockSvc)

	w := httptest.NewRecorder()
	c := staffContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/registrations/export?format=csv&courseId=course-1", nil)
	c.Request = req

	h.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportCSV, mockSvc.lastFormat)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "registrations.csv")
	assert.Contains(t, w.Body.String(), "Student,Email")
}
