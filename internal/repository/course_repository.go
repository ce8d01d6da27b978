package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/courseloop/registration-api/internal/models"
)

// availabilitySelect derives live capacity figures from persisted state. The
// confirmed count is never cached so every check sees concurrent enrollments.
const availabilitySelect = `SELECT c.id, c.name, c.price, c.duration, c.description, c.category, c.max_students, c.active, c.created_at, c.updated_at,
        COALESCE(rc.confirmed, 0) AS enrolled_count,
        c.max_students - COALESCE(rc.confirmed, 0) AS available_slots
        FROM courses c
        LEFT JOIN (
            SELECT course_id, COUNT(*) AS confirmed
            FROM registrations
            WHERE status = 'confirmed'
            GROUP BY course_id
        ) rc ON rc.course_id = c.id`

// CourseRepository handles persistence of the course catalog.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, name, price, duration, description, category, max_students, active, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course by id: %w", err)
	}
	return &course, nil
}

// FindAvailability returns a course with its live enrolled count and slots.
func (r *CourseRepository) FindAvailability(ctx context.Context, id string) (*models.CourseAvailability, error) {
	query := availabilitySelect + ` WHERE c.id = $1`
	var availability models.CourseAvailability
	if err := r.db.GetContext(ctx, &availability, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course availability: %w", err)
	}
	return &availability, nil
}

// CountConfirmed returns the number of confirmed registrations for a course.
func (r *CourseRepository) CountConfirmed(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM registrations WHERE course_id = $1 AND status = 'confirmed'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID); err != nil {
		return 0, fmt.Errorf("count confirmed registrations: %w", err)
	}
	return count, nil
}

// List returns catalog entries with availability, filtered and paginated.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseAvailability, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("c.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("c.category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(c.name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "c.name",
		"price":      "c.price",
		"category":   "c.category",
		"created_at": "c.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("%s%s ORDER BY %s %s LIMIT %d OFFSET %d", availabilitySelect, clause, orderBy, order, size, offset)
	var courses []models.CourseAvailability
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM courses c%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// ListOpenForStudent returns active courses the student may still choose:
// inactive courses, courses with no remaining slots (unless unlimited) and
// courses the student already registered for are excluded.
func (r *CourseRepository) ListOpenForStudent(ctx context.Context, studentID string) ([]models.CourseAvailability, error) {
	query := availabilitySelect + `
        WHERE c.active = TRUE
          AND (c.max_students = 0 OR c.max_students > COALESCE(rc.confirmed, 0))
          AND NOT EXISTS (
              SELECT 1 FROM registrations r
              WHERE r.course_id = c.id AND r.student_id = $1
          )
        ORDER BY c.category ASC, c.name ASC`
	var courses []models.CourseAvailability
	if err := r.db.SelectContext(ctx, &courses, query, studentID); err != nil {
		return nil, fmt.Errorf("list open courses: %w", err)
	}
	return courses, nil
}

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, name, price, duration, description, category, max_students, active, created_at, updated_at)
        VALUES (:id, :name, :price, :duration, :description, :category, :max_students, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update updates mutable course fields.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET name = :name, price = :price, duration = :duration, description = :description, category = :category, max_students = :max_students, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Deactivate removes a course from selection lists without deleting it.
func (r *CourseRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE courses SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate course: %w", err)
	}
	return nil
}
