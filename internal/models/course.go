package models

import "time"

// Course is a catalog entry. The enrollment workflow treats it as read-only.
type Course struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	Description  *string   `db:"description" json:"description,omitempty"`
	Fee          float64   `db:"fee" json:"fee"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// CourseFilter narrows catalog listings.
type CourseFilter struct {
	DepartmentID string
	Search       string
}
