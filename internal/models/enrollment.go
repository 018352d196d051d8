package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPendingPayment EnrollmentStatus = "PENDING_PAYMENT"
	EnrollmentStatusActive         EnrollmentStatus = "ACTIVE"
	EnrollmentStatusDropped        EnrollmentStatus = "DROPPED"
)

// Enrollment links a student to a course for a semester.
//
// PaymentStatus true implies Status is ACTIVE or DROPPED. DropDate is written once,
// on the first transition to DROPPED.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	CourseID       string           `db:"course_id" json:"course_id"`
	Semester       string           `db:"semester" json:"semester"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollment_date"`
	DropDate       *time.Time       `db:"drop_date" json:"drop_date,omitempty"`
	PaymentStatus  bool             `db:"payment_status" json:"payment_status"`
}

// Dropped reports whether the enrollment reached its terminal state.
func (e *Enrollment) Dropped() bool {
	return e.Status == EnrollmentStatusDropped
}

// EnrollmentDetail enriches Enrollment with course and person info.
type EnrollmentDetail struct {
	Enrollment
	CourseName string     `db:"course_name" json:"course_name"`
	CourseFee  float64    `db:"course_fee" json:"course_fee"`
	PersonID   string     `db:"person_id" json:"person_id"`
	PersonName string     `db:"person_name" json:"person_name"`
	FeeAmount  *float64   `db:"fee_amount" json:"fee_amount,omitempty"`
	FeeDueDate *time.Time `db:"fee_due_date" json:"fee_due_date,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Semester  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
