package service

import (
	"context"
	"database/sql"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/courseloop/registration-api/internal/models"
	appErrors "github.com/courseloop/registration-api/pkg/errors"
)

const (
	minEligibleAge = 16
	maxEligibleAge = 100

	minPhoneDigits = 10
	maxPhoneDigits = 15
)

type studentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	EmailExists(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
}

// ProfileRequest carries the profile form fields. BirthDate uses the
// YYYY-MM-DD wire format.
type ProfileRequest struct {
	FullName  string  `json:"full_name" validate:"required"`
	Email     string  `json:"email" validate:"required"`
	Phone     string  `json:"phone" validate:"required"`
	BirthDate string  `json:"birth_date" validate:"required"`
	Address   *string `json:"address,omitempty"`
}

// StudentService owns student profiles and the eligibility rules applied to
// them. Validation failures are reported field by field so the form step can
// surface every problem at once.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger, now: time.Now}
}

// FindByUser resolves the profile linked to a login account; nil means the
// identity has not completed the profile step yet.
func (s *StudentService) FindByUser(ctx context.Context, userID string) (*models.Student, error) {
	student, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student profile")
	}
	return student, nil
}

// UpsertForUser validates the profile form and creates or updates the student
// record bound to the given identity.
func (s *StudentService) UpsertForUser(ctx context.Context, userID string, req ProfileRequest) (*models.Student, error) {
	existing, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student profile")
	}

	excludeID := ""
	if existing != nil {
		excludeID = existing.ID
	}

	name, phone, birthDate, fields, err := s.validateProfile(ctx, req, excludeID)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		return nil, appErrors.Validation(fields)
	}

	if existing != nil {
		existing.FullName = name
		existing.Email = req.Email
		existing.Phone = phone
		existing.BirthDate = birthDate
		existing.Address = req.Address
		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student profile")
		}
		return existing, nil
	}

	student := &models.Student{
		UserID:    &userID,
		FullName:  name,
		Email:     req.Email,
		Phone:     phone,
		BirthDate: birthDate,
		Address:   req.Address,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student profile")
	}
	return student, nil
}

// Get returns a student by ID for staff views.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// List returns students for staff views.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// validateProfile applies the eligibility rules, collecting every violation.
func (s *StudentService) validateProfile(ctx context.Context, req ProfileRequest, excludeID string) (name, phone string, birthDate time.Time, fields map[string]string, err error) {
	fields = make(map[string]string)

	name = strings.TrimSpace(req.FullName)
	switch {
	case len([]rune(name)) < 2:
		fields["full_name"] = "name must be at least 2 characters long"
	case !lettersAndSpacesOnly(name):
		fields["full_name"] = "name should only contain letters and spaces"
	}

	if vErr := s.validator.Var(req.Email, "required,email"); vErr != nil {
		fields["email"] = "enter a valid email address"
	} else {
		taken, exErr := s.repo.EmailExists(ctx, req.Email, excludeID)
		if exErr != nil {
			err = appErrors.Wrap(exErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
			return
		}
		if taken {
			fields["email"] = "a student with this email already exists"
		}
	}

	var phoneErr string
	phone, phoneErr = normalizePhone(req.Phone)
	if phoneErr != "" {
		fields["phone"] = phoneErr
	}

	var birthErr string
	birthDate, birthErr = s.validateBirthDate(req.BirthDate)
	if birthErr != "" {
		fields["birth_date"] = birthErr
	}

	return
}

func (s *StudentService) validateBirthDate(raw string) (time.Time, string) {
	birthDate, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, "enter a valid birth date (YYYY-MM-DD)"
	}

	today := s.now().UTC()
	if birthDate.After(today) {
		return time.Time{}, "birth date cannot be in the future"
	}

	age := ageAt(birthDate, today)
	if age < minEligibleAge {
		return time.Time{}, "you must be at least 16 years old to register"
	}
	if age > maxEligibleAge {
		return time.Time{}, "enter a valid birth date"
	}
	return birthDate, ""
}

// ageAt computes whole years, adjusted by whether the month/day has occurred
// yet in the reference year.
func ageAt(birth, at time.Time) int {
	years := at.Year() - birth.Year()
	if at.Month() < birth.Month() || (at.Month() == birth.Month() && at.Day() < birth.Day()) {
		years--
	}
	return years
}

func lettersAndSpacesOnly(name string) bool {
	for _, r := range name {
		if !unicode.IsLetter(r) && r != ' ' {
			return false
		}
	}
	return true
}

// normalizePhone strips formatting and validates the digit count. A single
// leading + is preserved.
func normalizePhone(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	digits := 0
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
			// formatting characters are dropped
		default:
			return "", "phone number may only contain digits and an optional leading +"
		}
	}
	if digits < minPhoneDigits {
		return "", "phone number must be at least 10 digits long"
	}
	if digits > maxPhoneDigits {
		return "", "phone number cannot exceed 15 digits"
	}
	return b.String(), ""
}
