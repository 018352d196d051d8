package models

import "time"

// ExamType distinguishes sat exams from take-home assignments.
type ExamType string

const (
	ExamTypeWritten    ExamType = "Written"
	ExamTypeAssignment ExamType = "Assignment"
)

// AssignmentLocation is stored for assignments, which have no room.
const AssignmentLocation = "N/A"

// Exam is an assessment scheduled for a course. Assignments carry location N/A and a zero duration.
type Exam struct {
	ID              string    `db:"id" json:"id"`
	CourseID        string    `db:"course_id" json:"course_id"`
	ExamType        ExamType  `db:"exam_type" json:"exam_type"`
	Date            time.Time `db:"exam_date" json:"date"`
	Location        string    `db:"location" json:"location"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	MaxMarks        float64   `db:"max_marks" json:"max_marks"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Submission is a student's hand-in for an exam. Reference points at the uploaded work.
type Submission struct {
	ID          string    `db:"id" json:"id"`
	ExamID      string    `db:"exam_id" json:"exam_id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	StudentName string    `db:"student_name" json:"student_name"`
	Reference   string    `db:"reference" json:"reference"`
	SubmittedAt time.Time `db:"submitted_at" json:"submitted_at"`
}
