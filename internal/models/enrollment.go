package models

import "time"

// EnrollmentState identifies where an identity stands in the three-step
// registration workflow.
type EnrollmentState string

const (
	StateNeedsProfile     EnrollmentState = "NEEDS_PROFILE"
	StateNoSelection      EnrollmentState = "HAS_PROFILE_NO_SELECTION"
	StateSelectionPending EnrollmentState = "SELECTION_PENDING"
	StateConfirmed        EnrollmentState = "CONFIRMED"
)

// CourseSelection is the transient choice held between the selection and
// confirmation steps. It lives in the session store, never in Postgres.
type CourseSelection struct {
	CourseID   string    `json:"course_id"`
	SelectedAt time.Time `json:"selected_at"`
}

// EnrollmentStatus describes the workflow position reported to the client.
type EnrollmentStatus struct {
	State          EnrollmentState     `json:"state"`
	Student        *Student            `json:"student,omitempty"`
	Selection      *CourseSelection    `json:"selection,omitempty"`
	SelectedCourse *CourseAvailability `json:"selected_course,omitempty"`
}

// ConfirmationReceipt summarises a completed enrollment.
type ConfirmationReceipt struct {
	Registration RegistrationDetail `json:"registration"`
	Course       Course             `json:"course"`
	Student      Student            `json:"student"`
}
