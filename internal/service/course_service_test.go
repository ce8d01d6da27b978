package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseloop/registration-api/internal/models"
	appErrors "github.com/courseloop/registration-api/pkg/errors"
)

type mockCourseRepo struct {
	courses       map[string]*models.Course
	list          []models.CourseAvailability
	created       *models.Course
	updated       *models.Course
	deactivatedID string
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if course, ok := m.courses[id]; ok {
		copied := *course
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) FindAvailability(ctx context.Context, id string) (*models.CourseAvailability, error) {
	if course, ok := m.courses[id]; ok {
		return &models.CourseAvailability{Course: *course, EnrolledCount: 1, AvailableSlots: course.MaxStudents - 1}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseAvailability, int, error) {
	return m.list, len(m.list), nil
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	course.ID = "course-new"
	m.created = course
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.updated = course
	return nil
}

func (m *mockCourseRepo) Deactivate(ctx context.Context, id string) error {
	m.deactivatedID = id
	return nil
}

func newCourseFixture() (*CourseService, *mockCourseRepo) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Name: "Go Basics", Price: 99.5, Duration: "8 weeks", Description: "Intro", Category: models.CategoryTech, MaxStudents: 10, Active: true},
	}}
	return NewCourseService(repo, nil, nil), repo
}

func TestCourseServiceCreate(t *testing.T) {
	svc, repo := newCourseFixture()

	course, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:        "Intro to Painting",
		Price:       45,
		Duration:    "6 weeks",
		Description: "Brush techniques",
		Category:    models.CategoryArts,
		MaxStudents: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, "course-new", course.ID)
	assert.True(t, course.Active)
	assert.Equal(t, models.CategoryArts, repo.created.Category)
}

func TestCourseServiceCreateUnknownCategory(t *testing.T) {
	svc, _ := newCourseFixture()

	_, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:        "Mystery",
		Price:       10,
		Duration:    "1 week",
		Description: "n/a",
		Category:    "cooking",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Fields, "category")
}

func TestCourseServiceCreateRejectsFreeCourse(t *testing.T) {
	svc, _ := newCourseFixture()

	_, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:        "Freebie",
		Price:       0,
		Duration:    "1 week",
		Description: "n/a",
		Category:    models.CategoryTech,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUpdate(t *testing.T) {
	svc, repo := newCourseFixture()

	course, err := svc.Update(context.Background(), "course-1", UpdateCourseRequest{
		Name:        "Go Basics Revised",
		Price:       120,
		Duration:    "10 weeks",
		Description: "Updated syllabus",
		Category:    models.CategoryTech,
		MaxStudents: 0,
		Active:      false,
	})
	require.NoError(t, err)
	assert.Equal(t, "Go Basics Revised", course.Name)
	assert.False(t, course.Active)
	assert.Equal(t, 0, repo.updated.MaxStudents)
}

func TestCourseServiceUpdateMissing(t *testing.T) {
	svc, _ := newCourseFixture()

	_, err := svc.Update(context.Background(), "missing", UpdateCourseRequest{
		Name:        "Go Basics",
		Price:       99,
		Duration:    "8 weeks",
		Description: "Intro",
		Category:    models.CategoryTech,
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestCourseServiceGet(t *testing.T) {
	svc, _ := newCourseFixture()

	availability, err := svc.Get(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, "Go Basics", availability.Name)
	assert.Equal(t, 9, availability.AvailableSlots)
}

func TestCourseServiceGetMissing(t *testing.T) {
	svc, _ := newCourseFixture()

	_, err := svc.Get(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestCourseServiceDeactivate(t *testing.T) {
	svc, repo := newCourseFixture()

	require.NoError(t, svc.Deactivate(context.Background(), "course-1"))
	assert.Equal(t, "course-1", repo.deactivatedID)
}

func TestCourseServiceListDefaultsPagination(t *testing.T) {
	svc, repo := newCourseFixture()
	repo.list = []models.CourseAvailability{
		{Course: models.Course{ID: "course-1", Name: "Go Basics"}},
	}

	courses, pagination, err := svc.List(context.Background(), models.CourseFilter{})
	require.NoError(t, err)
	assert.Len(t, courses, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}
