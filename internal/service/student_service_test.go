package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/courseloop/registration-api/internal/models"
	appErrors "github.com/courseloop/registration-api/pkg/errors"
)

type mockStudentRepo struct {
	byUser     map[string]*models.Student
	emailTaken map[string]string
	created    *models.Student
	updated    *models.Student
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	for _, s := range m.byUser {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	return m.byUser[userID], nil
}

func (m *mockStudentRepo) EmailExists(ctx context.Context, email, excludeID string) (bool, error) {
	owner, ok := m.emailTaken[email]
	if !ok {
		return false, nil
	}
	return owner != excludeID, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	student.ID = "new-student"
	m.created = student
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.updated = student
	return nil
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	return nil, 0, nil
}

func newStudentServiceAt(repo *mockStudentRepo, today time.Time) *StudentService {
	svc := NewStudentService(repo, validator.New(), zap.NewNop())
	svc.now = func() time.Time { return today }
	return svc
}

func validProfile() ProfileRequest {
	return ProfileRequest{
		FullName:  "Jane Roe",
		Email:     "jane@example.com",
		Phone:     "+1 (234) 567-8901",
		BirthDate: "2000-03-15",
	}
}

func TestStudentServiceUpsertCreatesProfile(t *testing.T) {
	repo := &mockStudentRepo{byUser: map[string]*models.Student{}}
	svc := newStudentServiceAt(repo, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))

	student, err := svc.UpsertForUser(context.Background(), "user-1", validProfile())
	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, "Jane Roe", student.FullName)
	assert.Equal(t, "+12345678901", student.Phone)
	require.NotNil(t, student.UserID)
	assert.Equal(t, "user-1", *student.UserID)
}

func TestStudentServiceUpsertUpdatesExistingProfile(t *testing.T) {
	userID := "user-1"
	existing := &models.Student{ID: "student-1", UserID: &userID, FullName: "Old Name", Email: "jane@example.com"}
	repo := &mockStudentRepo{
		byUser:     map[string]*models.Student{userID: existing},
		emailTaken: map[string]string{"jane@example.com": "student-1"},
	}
	svc := newStudentServiceAt(repo, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))

	student, err := svc.UpsertForUser(context.Background(), userID, validProfile())
	require.NoError(t, err)
	require.NotNil(t, repo.updated)
	assert.Equal(t, "student-1", student.ID)
	assert.Equal(t, "Jane Roe", student.FullName)
}

func TestStudentServiceCollectsAllFieldErrors(t *testing.T) {
	repo := &mockStudentRepo{byUser: map[string]*models.Student{}}
	svc := newStudentServiceAt(repo, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.UpsertForUser(context.Background(), "user-1", ProfileRequest{
		FullName:  "J3nny!",
		Email:     "not-an-email",
		Phone:     "12ab",
		BirthDate: "yesterday",
	})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Fields, "full_name")
	assert.Contains(t, appErr.Fields, "email")
	assert.Contains(t, appErr.Fields, "phone")
	assert.Contains(t, appErr.Fields, "birth_date")
}

func TestStudentServiceEmailTakenByAnotherStudent(t *testing.T) {
	repo := &mockStudentRepo{
		byUser:     map[string]*models.Student{},
		emailTaken: map[string]string{"jane@example.com": "someone-else"},
	}
	svc := newStudentServiceAt(repo, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.UpsertForUser(context.Background(), "user-1", validProfile())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, "a student with this email already exists", appErr.Fields["email"])
}

func TestStudentServiceBirthDateBoundaries(t *testing.T) {
	today := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		birthDate string
		wantErr   bool
	}{
		{"sixteenth birthday today", "2010-06-01", false},
		{"one day short of sixteen", "2010-06-02", true},
		{"hundredth birthday", "1926-06-01", false},
		{"older than a hundred", "1925-06-01", true},
		{"future date", "2030-01-01", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockStudentRepo{byUser: map[string]*models.Student{}}
			svc := newStudentServiceAt(repo, today)

			req := validProfile()
			req.BirthDate = tc.birthDate
			_, err := svc.UpsertForUser(context.Background(), "user-1", req)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, appErrors.FromError(err).Fields, "birth_date")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"+1 (234) 567-8901", "+12345678901", false},
		{"0812345678", "0812345678", false},
		{"123456789", "", true},
		{"1234567890123456", "", true},
		{"12345abc90", "", true},
		{"12+34567890", "", true},
	}

	for _, tc := range cases {
		got, msg := normalizePhone(tc.raw)
		if tc.wantErr {
			assert.NotEmpty(t, msg, tc.raw)
		} else {
			assert.Empty(t, msg, tc.raw)
			assert.Equal(t, tc.want, got)
		}
	}
}

func TestAgeAt(t *testing.T) {
	birth := time.Date(2000, 6, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 25, ageAt(birth, time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 26, ageAt(birth, time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 26, ageAt(birth, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)))
}
