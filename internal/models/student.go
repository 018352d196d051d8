package models

import "time"

// Student is the lightweight record created the first time a person enrolls.
type Student struct {
	ID          string    `db:"id" json:"id"`
	PersonID    string    `db:"person_id" json:"person_id"`
	CourseLabel *string   `db:"course_label" json:"course_label,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
