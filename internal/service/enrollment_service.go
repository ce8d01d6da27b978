package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/courseloop/registration-api/internal/models"
	appErrors "github.com/courseloop/registration-api/pkg/errors"
)

type profileManager interface {
	FindByUser(ctx context.Context, userID string) (*models.Student, error)
	UpsertForUser(ctx context.Context, userID string, req ProfileRequest) (*models.Student, error)
}

type availabilityReader interface {
	FindAvailability(ctx context.Context, id string) (*models.CourseAvailability, error)
	ListOpenForStudent(ctx context.Context, studentID string) ([]models.CourseAvailability, error)
}

type enrollmentRegistrationRepository interface {
	Exists(ctx context.Context, studentID, courseID, excludeID string) (bool, error)
	Confirm(ctx context.Context, studentID, courseID string) (*models.Registration, error)
	FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.RegistrationDetail, error)
}

type selectionStore interface {
	Get(ctx context.Context, userID string) (*models.CourseSelection, error)
	Set(ctx context.Context, userID string, selection models.CourseSelection) error
	Clear(ctx context.Context, userID string) error
}

type enrollmentObserver interface {
	ObserveEnrollmentOutcome(outcome string)
}

// SelectCourseRequest carries the selection step payload.
type SelectCourseRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

// EnrollmentService orchestrates the three-step registration workflow:
// profile, course selection, confirmation. The selection lives in the
// transient session store until confirmation commits a registration.
type EnrollmentService struct {
	profiles      profileManager
	courses       availabilityReader
	registrations enrollmentRegistrationRepository
	selections    selectionStore
	metrics       enrollmentObserver
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(profiles profileManager, courses availabilityReader, registrations enrollmentRegistrationRepository, selections selectionStore, metrics enrollmentObserver, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		profiles:      profiles,
		courses:       courses,
		registrations: registrations,
		selections:    selections,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
	}
}

// Status derives the workflow position for the identity.
func (s *EnrollmentService) Status(ctx context.Context, userID string) (*models.EnrollmentStatus, error) {
	student, err := s.profiles.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return &models.EnrollmentStatus{State: models.StateNeedsProfile}, nil
	}

	selection, err := s.selections.Get(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course selection")
	}
	if selection == nil {
		return &models.EnrollmentStatus{State: models.StateNoSelection, Student: student}, nil
	}

	availability, err := s.courses.FindAvailability(ctx, selection.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			// Selected course disappeared; restart the selection step.
			s.clearSelection(ctx, userID)
			return &models.EnrollmentStatus{State: models.StateNoSelection, Student: student}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load selected course")
	}

	return &models.EnrollmentStatus{
		State:          models.StateSelectionPending,
		Student:        student,
		Selection:      selection,
		SelectedCourse: availability,
	}, nil
}

// SubmitProfile handles the first step. On validation failure the caller
// re-renders the form with the collected field errors and the state is
// unchanged.
func (s *EnrollmentService) SubmitProfile(ctx context.Context, userID string, req ProfileRequest) (*models.Student, error) {
	return s.profiles.UpsertForUser(ctx, userID, req)
}

// OpenCourses lists the courses the student may choose in the selection step.
func (s *EnrollmentService) OpenCourses(ctx context.Context, userID string) ([]models.CourseAvailability, error) {
	student, err := s.requireStudent(ctx, userID)
	if err != nil {
		return nil, err
	}
	courses, err := s.courses.ListOpenForStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list open courses")
	}
	return courses, nil
}

// SelectCourse handles the second step: the choice is checked against the
// live catalog and parked in the session store, not persisted.
func (s *EnrollmentService) SelectCourse(ctx context.Context, userID string, req SelectCourseRequest) (*models.CourseSelection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid selection payload")
	}

	student, err := s.requireStudent(ctx, userID)
	if err != nil {
		return nil, err
	}

	availability, err := s.courses.FindAvailability(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrCourseUnavailable, "selected course does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !availability.Active {
		return nil, appErrors.Clone(appErrors.ErrCourseUnavailable, "this course is no longer available")
	}

	enrolled, err := s.registrations.Exists(ctx, student.ID, req.CourseID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing registration")
	}
	if enrolled {
		return nil, appErrors.ErrAlreadyEnrolled
	}

	if !availability.HasSlots() {
		return nil, appErrors.Clone(appErrors.ErrCourseUnavailable, "this course is full, please choose another course")
	}

	selection := models.CourseSelection{CourseID: req.CourseID, SelectedAt: time.Now().UTC()}
	if err := s.selections.Set(ctx, userID, selection); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store course selection")
	}
	return &selection, nil
}

// Confirm handles the final step. Availability and uniqueness are re-checked
// at commit time inside one transaction because another enrollee may have
// taken the last slot since selection. On CourseFull the stale selection is
// discarded so the caller routes back to the selection step.
func (s *EnrollmentService) Confirm(ctx context.Context, userID string) (*models.ConfirmationReceipt, error) {
	student, err := s.requireStudent(ctx, userID)
	if err != nil {
		return nil, err
	}

	selection, err := s.selections.Get(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course selection")
	}
	if selection == nil {
		return nil, appErrors.ErrNoSelection
	}

	registration, err := s.registrations.Confirm(ctx, student.ID, selection.CourseID)
	if err != nil {
		switch {
		case appErrors.Is(err, appErrors.ErrCourseFull):
			s.observe("course_full")
			s.clearSelection(ctx, userID)
			return nil, err
		case appErrors.Is(err, appErrors.ErrAlreadyEnrolled):
			s.observe("already_enrolled")
			s.clearSelection(ctx, userID)
			return nil, err
		case appErrors.Is(err, appErrors.ErrCourseUnavailable):
			s.observe("course_unavailable")
			s.clearSelection(ctx, userID)
			return nil, err
		}
		s.observe("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm registration")
	}

	// The registration is committed; a stale selection would only replay into
	// the duplicate check, so a failed clear is logged and left to the TTL.
	s.clearSelection(ctx, userID)
	s.observe("confirmed")

	detail, err := s.registrations.FindDetailByID(ctx, registration.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration detail")
	}

	availability, err := s.courses.FindAvailability(ctx, selection.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	return &models.ConfirmationReceipt{
		Registration: *detail,
		Course:       availability.Course,
		Student:      *student,
	}, nil
}

// Restart discards the pending selection, returning the workflow to the
// selection step.
func (s *EnrollmentService) Restart(ctx context.Context, userID string) error {
	if _, err := s.requireStudent(ctx, userID); err != nil {
		return err
	}
	if err := s.selections.Clear(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear course selection")
	}
	return nil
}

// MyRegistrations returns the registrations belonging to the identity.
func (s *EnrollmentService) MyRegistrations(ctx context.Context, userID string) ([]models.RegistrationDetail, error) {
	student, err := s.requireStudent(ctx, userID)
	if err != nil {
		return nil, err
	}
	registrations, err := s.registrations.ListByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return registrations, nil
}

func (s *EnrollmentService) requireStudent(ctx context.Context, userID string) (*models.Student, error) {
	student, err := s.profiles.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, appErrors.ErrMissingProfile
	}
	return student, nil
}

func (s *EnrollmentService) clearSelection(ctx context.Context, userID string) {
	if err := s.selections.Clear(ctx, userID); err != nil {
		s.logger.Warn("failed to clear course selection", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *EnrollmentService) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveEnrollmentOutcome(outcome)
	}
}
