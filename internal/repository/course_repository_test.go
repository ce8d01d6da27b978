package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/courseloop/registration-api/internal/models"
)

func newCourseRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func availabilityRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "price", "duration", "description", "category", "max_students", "active", "created_at", "updated_at", "enrolled_count", "available_slots"})
}

func TestCourseRepositoryFindAvailability(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT c.id, c.name, c.price").
		WithArgs("course-1").
		WillReturnRows(availabilityRows().
			AddRow("course-1", "Go Basics", 150.0, "8 weeks", "Introductory Go", "tech", 10, true, now, now, 7, 3))

	availability, err := repo.FindAvailability(context.Background(), "course-1")
	require.NoError(t, err)
	require.Equal(t, 7, availability.EnrolledCount)
	require.Equal(t, 3, availability.AvailableSlots)
	require.True(t, availability.HasSlots())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryListOpenForStudent(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT c.id, c.name, c.price").
		WithArgs("student-1").
		WillReturnRows(availabilityRows().
			AddRow("course-1", "Go Basics", 150.0, "8 weeks", "Introductory Go", "tech", 10, true, now, now, 2, 8).
			AddRow("course-2", "Open Workshop", 50.0, "1 day", "Drop-in workshop", "arts", 0, true, now, now, 40, -40))

	courses, err := repo.ListOpenForStudent(context.Background(), "student-1")
	require.NoError(t, err)
	require.Len(t, courses, 2)
	// Unlimited capacity courses report negative slots but still accept enrollees.
	require.True(t, courses[1].Unlimited())
	require.True(t, courses[1].HasSlots())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCountConfirmed(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountConfirmed(context.Background(), "course-1")
	require.NoError(t, err)
	require.Equal(t, 4, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryDeactivate(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("UPDATE courses SET active = FALSE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Deactivate(context.Background(), "course-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryList(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	active := true
	mock.ExpectQuery("SELECT c.id, c.name, c.price").
		WithArgs(true, "%go%").
		WillReturnRows(availabilityRows().
			AddRow("course-1", "Go Basics", 150.0, "8 weeks", "Introductory Go", "tech", 10, true, now, now, 2, 8))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(true, "%go%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	courses, total, err := repo.List(context.Background(), models.CourseFilter{Search: "Go", Active: &active})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, courses, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
