package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/courseloop/registration-api/internal/models"
	appErrors "github.com/courseloop/registration-api/pkg/errors"
)

func newRegistrationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRegistrationRepositoryConfirm(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_students, active FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_students", "active"}).AddRow(2, true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations WHERE course_id = $1 AND status = 'confirmed'")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("INSERT INTO registrations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	registration, err := repo.Confirm(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	require.Equal(t, models.RegistrationStatusConfirmed, registration.Status)
	require.Equal(t, "student-1", registration.StudentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryConfirmCourseFull(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_students, active FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_students", "active"}).AddRow(2, true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations WHERE course_id = $1 AND status = 'confirmed'")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	_, err := repo.Confirm(context.Background(), "student-1", "course-1")
	require.True(t, appErrors.Is(err, appErrors.ErrCourseFull))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryConfirmUnlimitedSkipsCount(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_students, active FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_students", "active"}).AddRow(0, true))
	mock.ExpectExec("INSERT INTO registrations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	registration, err := repo.Confirm(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	require.Equal(t, models.RegistrationStatusConfirmed, registration.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryConfirmInactiveCourse(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_students, active FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_students", "active"}).AddRow(5, false))
	mock.ExpectRollback()

	_, err := repo.Confirm(context.Background(), "student-1", "course-1")
	require.True(t, appErrors.Is(err, appErrors.ErrCourseUnavailable))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryConfirmDuplicate(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_students, active FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_students", "active"}).AddRow(0, true))
	mock.ExpectExec("INSERT INTO registrations").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := repo.Confirm(context.Background(), "student-1", "course-1")
	require.True(t, appErrors.Is(err, appErrors.ErrAlreadyEnrolled))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec("INSERT INTO registrations").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Registration{
		StudentID: "student-1",
		CourseID:  "course-1",
		Status:    models.RegistrationStatusPending,
	})
	require.True(t, appErrors.Is(err, appErrors.ErrAlreadyEnrolled))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryExists(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM registrations WHERE student_id = $1 AND course_id = $2 LIMIT 1")).
		WithArgs("student-1", "course-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.Exists(context.Background(), "student-1", "course-1", "")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryExistsExcludesEditedRecord(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM registrations WHERE student_id = $1 AND course_id = $2 AND id <> $3 LIMIT 1")).
		WithArgs("student-1", "course-1", "reg-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.Exists(context.Background(), "student-1", "course-1", "reg-1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "status", "payment_done", "notes", "registered_at", "student_name", "student_email", "course_name", "course_price"}).
		AddRow("reg-1", "student-1", "course-1", "confirmed", true, nil, time.Now(), "Jane Roe", "jane@example.com", "Go Basics", 150.0)
	mock.ExpectQuery("SELECT r.id, r.student_id, r.course_id").
		WithArgs("student-1").
		WillReturnRows(rows)

	registrations, err := repo.ListByStudent(context.Background(), "student-1")
	require.NoError(t, err)
	require.Len(t, registrations, 1)
	require.Equal(t, "Go Basics", registrations[0].CourseName)
	require.NoError(t, mock.ExpectationsWereMet())
}
