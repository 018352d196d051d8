package models

import "time"

// PaymentMethod enumerates accepted ways of settling a fee.
type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "Credit Card"
	PaymentMethodBankTransfer PaymentMethod = "Bank Transfer"
	PaymentMethodCash         PaymentMethod = "Cash"
	PaymentMethodOther        PaymentMethod = "Other"
)

// Valid reports whether m is an accepted payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodBankTransfer, PaymentMethodCash, PaymentMethodOther:
		return true
	}
	return false
}

// Fee is created once per enrollment when payment completes and never changes afterwards.
type Fee struct {
	ID            string        `db:"id" json:"id"`
	EnrollmentID  string        `db:"enrollment_id" json:"enrollment_id"`
	Amount        float64       `db:"amount" json:"amount"`
	DueDate       time.Time     `db:"due_date" json:"due_date"`
	PaymentMethod PaymentMethod `db:"payment_method" json:"payment_method"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}
