package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/courseloop/registration-api/internal/models"
	appErrors "github.com/courseloop/registration-api/pkg/errors"
	"github.com/courseloop/registration-api/pkg/export"
)

type registrationRepository interface {
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error)
	ListAll(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, error)
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error)
	Exists(ctx context.Context, studentID, courseID, excludeID string) (bool, error)
	Create(ctx context.Context, registration *models.Registration) error
	Update(ctx context.Context, registration *models.Registration) error
	Delete(ctx context.Context, id string) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type capacityReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	CountConfirmed(ctx context.Context, courseID string) (int, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateRegistrationRequest describes the staff payload for creating a
// registration directly.
type CreateRegistrationRequest struct {
	StudentID   string                    `json:"student_id" validate:"required"`
	CourseID    string                    `json:"course_id" validate:"required"`
	Status      models.RegistrationStatus `json:"status" validate:"required"`
	PaymentDone bool                      `json:"payment_done"`
	Notes       *string                   `json:"notes,omitempty"`
}

// UpdateRegistrationRequest describes the staff payload for editing a
// registration.
type UpdateRegistrationRequest struct {
	StudentID   string                    `json:"student_id" validate:"required"`
	CourseID    string                    `json:"course_id" validate:"required"`
	Status      models.RegistrationStatus `json:"status" validate:"required"`
	PaymentDone bool                      `json:"payment_done"`
	Notes       *string                   `json:"notes,omitempty"`
}

// ExportFormat selects the rendering for registration exports.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ExportResult bundles rendered export bytes with response metadata.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// RegistrationService owns the administrative registration surface: direct
// creation and edits with the duplicate and capacity cross-checks, plus
// exports.
type RegistrationService struct {
	repo      registrationRepository
	students  studentReader
	courses   capacityReader
	audits    auditWriter
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRegistrationService constructs RegistrationService.
func NewRegistrationService(repo registrationRepository, students studentReader, courses capacityReader, audits auditWriter, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		repo:      repo,
		students:  students,
		courses:   courses,
		audits:    audits,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
	}
}

// List returns registrations with pagination metadata.
func (s *RegistrationService) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error) {
	registrations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return registrations, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one registration with context.
func (s *RegistrationService) Get(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	return detail, nil
}

// Create inserts a registration on behalf of staff, applying the same
// duplicate and capacity rules as the student workflow.
func (s *RegistrationService) Create(ctx context.Context, actor *models.JWTClaims, req CreateRegistrationRequest) (*models.RegistrationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	if !models.ValidRegistrationStatus(req.Status) {
		return nil, appErrors.Validation(map[string]string{"status": "unknown registration status"})
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	duplicate, err := s.repo.Exists(ctx, req.StudentID, req.CourseID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check for duplicates")
	}
	if duplicate {
		return nil, appErrors.ErrAlreadyEnrolled
	}

	if req.Status == models.RegistrationStatusConfirmed {
		if err := s.checkCapacity(ctx, course, 0); err != nil {
			return nil, err
		}
	}

	registration := &models.Registration{
		StudentID:   req.StudentID,
		CourseID:    req.CourseID,
		Status:      req.Status,
		PaymentDone: req.PaymentDone,
		Notes:       req.Notes,
	}
	if err := s.repo.Create(ctx, registration); err != nil {
		if appErrors.Is(err, appErrors.ErrAlreadyEnrolled) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration")
	}

	s.recordAudit(ctx, actor, models.AuditActionRegistrationCreate, registration.ID, nil, registration)

	detail, err := s.repo.FindDetailByID(ctx, registration.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration detail")
	}
	return detail, nil
}

// Update edits a registration. Moving the pair onto an existing (student,
// course) combination is rejected, and a status change to confirmed is
// rejected when it would push the confirmed count above the course capacity.
// The edited record's own prior confirmed status does not count against it.
func (s *RegistrationService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateRegistrationRequest) (*models.RegistrationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	if !models.ValidRegistrationStatus(req.Status) {
		return nil, appErrors.Validation(map[string]string{"status": "unknown registration status"})
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}

	duplicate, err := s.repo.Exists(ctx, req.StudentID, req.CourseID, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check for duplicates")
	}
	if duplicate {
		return nil, appErrors.ErrAlreadyEnrolled
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if req.Status == models.RegistrationStatusConfirmed {
		// A record that was already confirmed on the same course holds one of
		// the counted seats, so it is excluded from the occupancy figure.
		occupied := 0
		if existing.Status == models.RegistrationStatusConfirmed && existing.CourseID == req.CourseID {
			occupied = -1
		}
		if err := s.checkCapacity(ctx, course, occupied); err != nil {
			return nil, err
		}
	}

	before := *existing
	existing.StudentID = req.StudentID
	existing.CourseID = req.CourseID
	existing.Status = req.Status
	existing.PaymentDone = req.PaymentDone
	existing.Notes = req.Notes

	if err := s.repo.Update(ctx, existing); err != nil {
		if appErrors.Is(err, appErrors.ErrAlreadyEnrolled) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update registration")
	}

	s.recordAudit(ctx, actor, models.AuditActionRegistrationUpdate, id, &before, existing)

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration detail")
	}
	return detail, nil
}

// Delete removes a registration.
func (s *RegistrationService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete registration")
	}
	s.recordAudit(ctx, actor, models.AuditActionRegistrationDelete, id, existing, nil)
	return nil
}

// Export renders the filtered registration list as CSV or PDF.
func (s *RegistrationService) Export(ctx context.Context, filter models.RegistrationFilter, format ExportFormat) (*ExportResult, error) {
	registrations, err := s.repo.ListAll(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registrations for export")
	}

	table := export.Table{
		Headers: []string{"Student", "Email", "Course", "Status", "Paid", "Registered At"},
	}
	for _, reg := range registrations {
		table.Rows = append(table.Rows, []string{
			reg.StudentName,
			reg.StudentEmail,
			reg.CourseName,
			string(reg.Status),
			strconv.FormatBool(reg.PaymentDone),
			reg.RegisteredAt.UTC().Format("2006-01-02 15:04"),
		})
	}

	switch format {
	case ExportCSV:
		content, err := s.csv.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportResult{Content: content, ContentType: "text/csv", Filename: "registrations.csv"}, nil
	case ExportPDF:
		content, err := s.pdf.Render(table, "Course Registrations")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportResult{Content: content, ContentType: "application/pdf", Filename: "registrations.pdf"}, nil
	}
	return nil, appErrors.Validation(map[string]string{"format": "unknown export format"})
}

// checkCapacity rejects a confirmation that would exceed the seat cap.
// adjustment compensates for seats already held by the record under edit.
func (s *RegistrationService) checkCapacity(ctx context.Context, course *models.Course, adjustment int) error {
	if course.Unlimited() {
		return nil
	}
	confirmed, err := s.courses.CountConfirmed(ctx, course.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count confirmed registrations")
	}
	if confirmed+adjustment >= course.MaxStudents {
		return appErrors.Clone(appErrors.ErrCourseFull, fmt.Sprintf("course %s is full (max %d students)", course.Name, course.MaxStudents))
	}
	return nil
}

func (s *RegistrationService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, before, after interface{}) {
	var userID *string
	if actor != nil {
		userID = &actor.UserID
	}
	var oldValues, newValues []byte
	if before != nil {
		oldValues, _ = json.Marshal(before)
	}
	if after != nil {
		newValues, _ = json.Marshal(after)
	}
	if err := s.audits.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "registrations",
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
	}); err != nil {
		s.logger.Warn("failed to record registration audit log", zap.Error(err))
	}
}
