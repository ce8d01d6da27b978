package models

import "time"

// Student represents a person with a profile eligible to enroll. A student is
// optionally linked to a login account via UserID.
type Student struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	BirthDate time.Time `db:"birth_date" json:"birth_date"`
	Address   *string   `db:"address" json:"address,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Age returns the student's age in whole years at the given date, adjusted by
// whether the birthday has occurred yet that year.
func (s Student) Age(at time.Time) int {
	years := at.Year() - s.BirthDate.Year()
	if at.Month() < s.BirthDate.Month() ||
		(at.Month() == s.BirthDate.Month() && at.Day() < s.BirthDate.Day()) {
		years--
	}
	return years
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
