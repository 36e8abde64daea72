package models

import (
	"strings"
	"time"
)

// Student is a learner on a school's roll. AdmissionNumber is what parents
// quote as the paybill account reference.
type Student struct {
	ID              string    `db:"id" json:"id"`
	SchoolID        string    `db:"school_id" json:"school_id"`
	AdmissionNumber string    `db:"admission_number" json:"admission_number"`
	FirstName       string    `db:"first_name" json:"first_name"`
	LastName        string    `db:"last_name" json:"last_name"`
	ClassID         *string   `db:"class_id" json:"class_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// FullName joins first and last names.
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// StudentFilter narrows the student roll. SchoolID is mandatory.
type StudentFilter struct {
	SchoolID string
	ClassID  string
	Search   string
	Page     int
	PageSize int
}
