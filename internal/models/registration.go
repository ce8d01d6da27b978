package models

import "time"

// RegistrationStatus represents the lifecycle of a registration.
type RegistrationStatus string

// Possible registration statuses. Only confirmed registrations consume a seat.
const (
	RegistrationStatusPending   RegistrationStatus = "pending"
	RegistrationStatusConfirmed RegistrationStatus = "confirmed"
	RegistrationStatusCancelled RegistrationStatus = "cancelled"
	RegistrationStatusCompleted RegistrationStatus = "completed"
)

// ValidRegistrationStatus reports whether the value is a known status.
func ValidRegistrationStatus(s RegistrationStatus) bool {
	switch s {
	case RegistrationStatusPending, RegistrationStatusConfirmed,
		RegistrationStatusCancelled, RegistrationStatusCompleted:
		return true
	}
	return false
}

// Registration links one student to one course. The (student_id, course_id)
// pair is unique at the database level.
type Registration struct {
	ID           string             `db:"id" json:"id"`
	StudentID    string             `db:"student_id" json:"student_id"`
	CourseID     string             `db:"course_id" json:"course_id"`
	Status       RegistrationStatus `db:"status" json:"status"`
	PaymentDone  bool               `db:"payment_done" json:"payment_done"`
	Notes        *string            `db:"notes" json:"notes,omitempty"`
	RegisteredAt time.Time          `db:"registered_at" json:"registered_at"`
}

// RegistrationDetail enriches Registration with student and course info.
type RegistrationDetail struct {
	Registration
	StudentName  string  `db:"student_name" json:"student_name"`
	StudentEmail string  `db:"student_email" json:"student_email"`
	CourseName   string  `db:"course_name" json:"course_name"`
	CoursePrice  float64 `db:"course_price" json:"course_price"`
}

// RegistrationFilter provides filters for listing registrations.
type RegistrationFilter struct {
	StudentID string
	CourseID  string
	Status    RegistrationStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
