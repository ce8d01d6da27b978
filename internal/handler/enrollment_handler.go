package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/courseloop/registration-api/internal/models"
	"github.com/courseloop/registration-api/internal/service"
	appErrors "github.com/courseloop/registration-api/pkg/errors"
	"github.com/courseloop/registration-api/pkg/response"
)

type enrollmentService interface {
	Status(ctx context.Context, userID string) (*models.EnrollmentStatus, error)
	SubmitProfile(ctx context.Context, userID string, req service.ProfileRequest) (*models.Student, error)
	OpenCourses(ctx context.Context, userID string) ([]models.CourseAvailability, error)
	SelectCourse(ctx context.Context, userID string, req service.SelectCourseRequest) (*models.CourseSelection, error)
	Confirm(ctx context.Context, userID string) (*models.ConfirmationReceipt, error)
	Restart(ctx context.Context, userID string) error
	MyRegistrations(ctx context.Context, userID string) ([]models.RegistrationDetail, error)
}

// EnrollmentHandler exposes the student enrollment workflow.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler creates a new handler.
func NewEnrollmentHandler(svc enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// Status godoc
// @Summary Enrollment status
// @Description Returns the caller's position in the enrollment workflow
// @Tags Enrollment
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /enroll/status [get]
func (h *EnrollmentHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	status, err := h.service.Status(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, status, nil)
}

// SubmitProfile godoc
// @Summary Submit student profile
// @Description Create or replace the caller's student profile
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param payload body service.ProfileRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /enroll/profile [post]
func (h *EnrollmentHandler) SubmitProfile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid profile payload"))
		return
	}

	student, err := h.service.SubmitProfile(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, student, nil)
}

// OpenCourses godoc
// @Summary Courses open to the caller
// @Description Lists active courses with free capacity the caller is not yet registered for
// @Tags Enrollment
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enroll/courses [get]
func (h *EnrollmentHandler) OpenCourses(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	courses, err := h.service.OpenCourses(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, courses, nil)
}

// SelectCourse godoc
// @Summary Select a course
// @Description Stores a pending course selection for the caller
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param payload body service.SelectCourseRequest true "Selection payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enroll/select [post]
func (h *EnrollmentHandler) SelectCourse(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SelectCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid selection payload"))
		return
	}

	selection, err := h.service.SelectCourse(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, selection, nil)
}

// Confirm godoc
// @Summary Confirm enrollment
// @Description Turns the pending selection into a confirmed registration
// @Tags Enrollment
// @Produce json
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enroll/confirm [post]
func (h *EnrollmentHandler) Confirm(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	receipt, err := h.service.Confirm(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, receipt)
}

// Restart godoc
// @Summary Discard pending selection
// @Description Clears the caller's pending selection so a new course can be chosen
// @Tags Enrollment
// @Produce json
// @Success 204 {object} response.Envelope
// @Router /enroll/select [delete]
func (h *EnrollmentHandler) Restart(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Restart(c.Request.Context(), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// MyRegistrations godoc
// @Summary List own registrations
// @Description Lists the caller's registrations across all courses
// @Tags Enrollment
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /me/registrations [get]
func (h *EnrollmentHandler) MyRegistrations(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	registrations, err := h.service.MyRegistrations(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, registrations, nil)
}
