package member

import (
	"time"
)

// PaymentStatus is the billing summary carried on a member record. It is a
// derived value: every write that touches NextPaymentDue or LastPaymentDate
// must recompute it through ResolvePaymentStatus.
type PaymentStatus string

const (
	StatusPaid    PaymentStatus = "paid"
	StatusUnpaid  PaymentStatus = "unpaid"
	StatusOverdue PaymentStatus = "overdue"
)

// Member is a gym member: identity, billing state and door access state.
type Member struct {
	ID                  string        `json:"id"`
	MemberNo            string        `json:"member_no"`
	FirstName           string        `json:"first_name"`
	LastName            string        `json:"last_name"`
	Email               string        `json:"email"`
	Phone               string        `json:"phone"`
	MembershipStartDate time.Time     `json:"membership_start_date"`
	MembershipEndDate   time.Time     `json:"membership_end_date"`
	MonthlyFee          float64       `json:"monthly_fee"`
	PaymentStatus       PaymentStatus `json:"payment_status"`
	LastPaymentDate     *time.Time    `json:"last_payment_date,omitempty"`
	NextPaymentDue      *time.Time    `json:"next_payment_due,omitempty"`
	DoorAccessEnabled   bool          `json:"door_access_enabled"`
	IsActive            bool          `json:"is_active"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

type CreateMemberRequest struct {
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone"`
	MonthlyFee float64 `json:"monthly_fee"`
}

// UpdatePaymentStatusRequest is the administrative override of the derived
// payment status. The override is audited; the next write touching the
// payment dates re-derives the value.
type UpdatePaymentStatusRequest struct {
	Status      PaymentStatus `json:"status"`
	PaymentDate *time.Time    `json:"payment_date,omitempty"`
}

type SetDoorAccessRequest struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason"`
}
