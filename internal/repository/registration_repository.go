package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/courseloop/registration-api/internal/models"
	appErrors "github.com/courseloop/registration-api/pkg/errors"
)

// pqUniqueViolation is the PostgreSQL class for unique constraint errors.
const pqUniqueViolation = "23505"

const registrationDetailSelect = `SELECT r.id, r.student_id, r.course_id, r.status, r.payment_done, r.notes, r.registered_at,
        s.full_name AS student_name, s.email AS student_email, c.name AS course_name, c.price AS course_price
        FROM registrations r
        JOIN students s ON s.id = r.student_id
        JOIN courses c ON c.id = r.course_id`

// RegistrationRepository handles persistence of registrations. The
// (student_id, course_id) unique constraint is the authoritative backstop
// against duplicate enrollment and is surfaced as ErrAlreadyEnrolled.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// List returns registrations with student and course context.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	base := `FROM registrations r
JOIN students s ON s.id = r.student_id
JOIN courses c ON c.id = r.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("r.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("r.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"registered_at": "r.registered_at",
		"student_name":  "s.full_name",
		"course_name":   "c.name",
		"status":        "r.status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "r.registered_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT r.id, r.student_id, r.course_id, r.status, r.payment_done, r.notes, r.registered_at,
        s.full_name AS student_name, s.email AS student_email, c.name AS course_name, c.price AS course_price
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return registrations, total, nil
}

// ListAll returns every registration matching the filter, without
// pagination. Used by the export surface.
func (r *RegistrationRepository) ListAll(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, error) {
	query := registrationDetailSelect
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("r.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("r.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY r.registered_at DESC"

	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, args...); err != nil {
		return nil, fmt.Errorf("list registrations for export: %w", err)
	}
	return registrations, nil
}

// FindByID returns a registration by its ID.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	const query = `SELECT id, student_id, course_id, status, payment_done, notes, registered_at FROM registrations WHERE id = $1`
	var registration models.Registration
	if err := r.db.GetContext(ctx, &registration, query, id); err != nil {
		return nil, err
	}
	return &registration, nil
}

// FindDetailByID returns a registration with contextual info.
func (r *RegistrationRepository) FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	query := registrationDetailSelect + ` WHERE r.id = $1`
	var detail models.RegistrationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByStudent returns all registrations belonging to a student.
func (r *RegistrationRepository) ListByStudent(ctx context.Context, studentID string) ([]models.RegistrationDetail, error) {
	query := registrationDetailSelect + ` WHERE r.student_id = $1 ORDER BY r.registered_at DESC`
	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, studentID); err != nil {
		return nil, fmt.Errorf("list student registrations: %w", err)
	}
	return registrations, nil
}

// Exists checks whether a registration for the (student, course) pair exists,
// optionally excluding the record being edited.
func (r *RegistrationRepository) Exists(ctx context.Context, studentID, courseID, excludeID string) (bool, error) {
	query := `SELECT 1 FROM registrations WHERE student_id = $1 AND course_id = $2`
	args := []interface{}{studentID, courseID}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check registration: %w", err)
	}
	return true, nil
}

// Create persists a new registration record.
func (r *RegistrationRepository) Create(ctx context.Context, registration *models.Registration) error {
	if registration.ID == "" {
		registration.ID = uuid.NewString()
	}
	if registration.RegisteredAt.IsZero() {
		registration.RegisteredAt = time.Now().UTC()
	}
	if registration.Status == "" {
		registration.Status = models.RegistrationStatusPending
	}
	const query = `INSERT INTO registrations (id, student_id, course_id, status, payment_done, notes, registered_at)
        VALUES (:id, :student_id, :course_id, :status, :payment_done, :notes, :registered_at)`
	if _, err := r.db.NamedExecContext(ctx, query, registration); err != nil {
		if isUniqueViolation(err) {
			return appErrors.ErrAlreadyEnrolled
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// Update updates status, payment flag, notes and the linked pair.
func (r *RegistrationRepository) Update(ctx context.Context, registration *models.Registration) error {
	const query = `UPDATE registrations SET student_id = :student_id, course_id = :course_id, status = :status, payment_done = :payment_done, notes = :notes WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, registration); err != nil {
		if isUniqueViolation(err) {
			return appErrors.ErrAlreadyEnrolled
		}
		return fmt.Errorf("update registration: %w", err)
	}
	return nil
}

// Delete removes a registration record.
func (r *RegistrationRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM registrations WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	return nil
}

// Confirm atomically re-checks capacity and inserts a confirmed registration.
// The course row is locked for the duration of the transaction so two
// confirmations racing for the last slot serialize; the loser gets
// ErrCourseFull. A duplicate (student, course) insert surfaces as
// ErrAlreadyEnrolled via the unique constraint regardless of interleaving.
func (r *RegistrationRepository) Confirm(ctx context.Context, studentID, courseID string) (*models.Registration, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin confirm registration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var course struct {
		MaxStudents int  `db:"max_students"`
		Active      bool `db:"active"`
	}
	if err = tx.GetContext(ctx, &course, `SELECT max_students, active FROM courses WHERE id = $1 FOR UPDATE`, courseID); err != nil {
		if err == sql.ErrNoRows {
			err = appErrors.ErrCourseUnavailable
		}
		return nil, err
	}
	if !course.Active {
		err = appErrors.ErrCourseUnavailable
		return nil, err
	}

	if course.MaxStudents > 0 {
		var confirmed int
		if err = tx.GetContext(ctx, &confirmed, `SELECT COUNT(*) FROM registrations WHERE course_id = $1 AND status = 'confirmed'`, courseID); err != nil {
			return nil, fmt.Errorf("count confirmed registrations: %w", err)
		}
		if confirmed >= course.MaxStudents {
			err = appErrors.ErrCourseFull
			return nil, err
		}
	}

	registration := &models.Registration{
		ID:           uuid.NewString(),
		StudentID:    studentID,
		CourseID:     courseID,
		Status:       models.RegistrationStatusConfirmed,
		RegisteredAt: time.Now().UTC(),
	}
	if _, err = tx.NamedExecContext(ctx, `INSERT INTO registrations (id, student_id, course_id, status, payment_done, notes, registered_at)
        VALUES (:id, :student_id, :course_id, :status, :payment_done, :notes, :registered_at)`, registration); err != nil {
		if isUniqueViolation(err) {
			err = appErrors.ErrAlreadyEnrolled
		} else {
			err = fmt.Errorf("insert confirmed registration: %w", err)
		}
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit confirm registration: %w", err)
	}
	return registration, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return false
}
