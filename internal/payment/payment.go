package payment

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
	StatusCancelled Status = "cancelled"
)

type Type string

const (
	TypeMembershipFee Type = "membership_fee"
	TypeRegistration  Type = "registration"
	TypeOther         Type = "other"
)

// Payment is one billing event for a member. Records are created either by
// staff recording a completed payment or by the monthly generation job
// (status pending); a refunded payment is never mutated again except for
// audit notes.
type Payment struct {
	ID            string     `json:"id"`
	MemberID      string     `json:"member_id"`
	Amount        float64    `json:"amount"`
	PaymentType   Type       `json:"payment_type"`
	PaymentMethod string     `json:"payment_method"`
	Status        Status     `json:"status"`
	PaymentDate   *time.Time `json:"payment_date,omitempty"`
	DueDate       time.Time  `json:"due_date"`
	PeriodStart   time.Time  `json:"period_start"`
	PeriodEnd     time.Time  `json:"period_end"`
	RefundReason  string     `json:"refund_reason,omitempty"`
	RefundedAt    *time.Time `json:"refunded_at,omitempty"`
	RecordedBy    string     `json:"recorded_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type RecordPaymentRequest struct {
	MemberNo      string  `json:"member_no"`
	Amount        float64 `json:"amount"`
	PaymentType   Type    `json:"payment_type"`
	PaymentMethod string  `json:"payment_method"`
}

type RefundRequest struct {
	Reason string `json:"reason"`
}
