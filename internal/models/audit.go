package models

import "time"

// Audit actions recorded by the enrollment workflow and exam management.
const (
	AuditActionRegister          = "REGISTER"
	AuditActionLogin             = "LOGIN"
	AuditActionEnrollmentRequest = "ENROLLMENT_REQUEST"
	AuditActionEnrollmentDrop    = "ENROLLMENT_DROP"
	AuditActionEnrollmentDelete  = "ENROLLMENT_DELETE"
	AuditActionPaymentComplete   = "PAYMENT_COMPLETE"
	AuditActionRolePromotion     = "ROLE_PROMOTION"
	AuditActionRoleChange        = "ROLE_CHANGE"
	AuditActionExamCreate        = "EXAM_CREATE"
	AuditActionExamUpdate        = "EXAM_UPDATE"
	AuditActionExamDelete        = "EXAM_DELETE"
	AuditActionExamSubmit        = "EXAM_SUBMIT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	PersonID   *string   `db:"person_id" json:"person_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
