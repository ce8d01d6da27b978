package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/courseloop/registration-api/internal/models"
	appErrors "github.com/courseloop/registration-api/pkg/errors"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindAvailability(ctx context.Context, id string) (*models.CourseAvailability, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseAvailability, int, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Deactivate(ctx context.Context, id string) error
}

// CreateCourseRequest describes the staff payload for a new course.
type CreateCourseRequest struct {
	Name        string                `json:"name" validate:"required,min=2,max=150"`
	Price       float64               `json:"price" validate:"required,gt=0"`
	Duration    string                `json:"duration" validate:"required,max=100"`
	Description string                `json:"description" validate:"required"`
	Category    models.CourseCategory `json:"category" validate:"required"`
	MaxStudents int                   `json:"max_students" validate:"gte=0"`
}

// UpdateCourseRequest describes the staff payload for editing a course.
type UpdateCourseRequest struct {
	Name        string                `json:"name" validate:"required,min=2,max=150"`
	Price       float64               `json:"price" validate:"required,gt=0"`
	Duration    string                `json:"duration" validate:"required,max=100"`
	Description string                `json:"description" validate:"required"`
	Category    models.CourseCategory `json:"category" validate:"required"`
	MaxStudents int                   `json:"max_students" validate:"gte=0"`
	Active      bool                  `json:"active"`
}

// CourseService owns the course catalog. Capacity figures are always derived
// from live registration data.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// List returns catalog entries with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseAvailability, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a course with its live availability.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseAvailability, error) {
	availability, err := s.repo.FindAvailability(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return availability, nil
}

// Create adds a course to the catalog.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if !models.ValidCategory(req.Category) {
		return nil, appErrors.Validation(map[string]string{"category": "unknown course category"})
	}

	course := &models.Course{
		Name:        req.Name,
		Price:       req.Price,
		Duration:    req.Duration,
		Description: req.Description,
		Category:    req.Category,
		MaxStudents: req.MaxStudents,
		Active:      true,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update edits course fields. Deactivating here removes the course from the
// selection lists without touching existing registrations.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if !models.ValidCategory(req.Category) {
		return nil, appErrors.Validation(map[string]string{"category": "unknown course category"})
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	course.Name = req.Name
	course.Price = req.Price
	course.Duration = req.Duration
	course.Description = req.Description
	course.Category = req.Category
	course.MaxStudents = req.MaxStudents
	course.Active = req.Active

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Deactivate marks a course inactive.
func (s *CourseService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate course")
	}
	return nil
}
