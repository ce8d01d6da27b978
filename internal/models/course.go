package models

import "time"

// CourseCategory classifies a course offering.
type CourseCategory string

// Supported course categories.
const (
	CategoryTech     CourseCategory = "tech"
	CategoryLanguage CourseCategory = "lang"
	CategoryArts     CourseCategory = "arts"
	CategoryBusiness CourseCategory = "business"
	CategoryScience  CourseCategory = "science"
)

// ValidCategory reports whether the value is a known category.
func ValidCategory(c CourseCategory) bool {
	switch c {
	case CategoryTech, CategoryLanguage, CategoryArts, CategoryBusiness, CategoryScience:
		return true
	}
	return false
}

// Course represents an offering with a seat capacity and price.
// MaxStudents = 0 means unlimited capacity.
type Course struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Price       float64        `db:"price" json:"price"`
	Duration    string         `db:"duration" json:"duration"`
	Description string         `db:"description" json:"description"`
	Category    CourseCategory `db:"category" json:"category"`
	MaxStudents int            `db:"max_students" json:"max_students"`
	Active      bool           `db:"active" json:"active"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Unlimited reports whether the course has no seat cap.
func (c Course) Unlimited() bool {
	return c.MaxStudents == 0
}

// CourseAvailability pairs a course with its live capacity figures.
type CourseAvailability struct {
	Course
	EnrolledCount  int `db:"enrolled_count" json:"enrolled_count"`
	AvailableSlots int `db:"available_slots" json:"available_slots"`
}

// HasSlots reports whether a confirmed registration can still be accepted.
func (a CourseAvailability) HasSlots() bool {
	return a.Unlimited() || a.AvailableSlots > 0
}

// CourseFilter defines filter criteria for listing courses.
type CourseFilter struct {
	Search    string
	Category  CourseCategory
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
