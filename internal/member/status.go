package member

import "time"

// GracePeriodDays is how long past next_payment_due an overdue payment is
// tolerated before door access is suspended. Used by the gate check, the
// overdue sweep and member queries alike; keep it the single source of truth.
const GracePeriodDays = 30

// ResolvePaymentStatus derives a member's payment status from their due date
// and payment history. Pure: no side effects, deterministic for a given
// input triple.
//
// A nil nextDue returns current unchanged: without a due date there is
// nothing to derive from, and silently reporting "paid" would be wrong.
func ResolvePaymentStatus(current PaymentStatus, nextDue, lastPaid *time.Time, now time.Time) PaymentStatus {
	if nextDue == nil {
		return current
	}
	if lastPaid != nil && !lastPaid.Before(*nextDue) {
		return StatusPaid
	}
	if now.After(*nextDue) {
		return StatusOverdue
	}
	return StatusUnpaid
}

// OverdueBeyondGrace reports whether a due date is more than the grace
// period in the past. Exactly GracePeriodDays past due is still within
// grace; one second beyond is not.
func OverdueBeyondGrace(nextDue *time.Time, now time.Time) bool {
	if nextDue == nil {
		return false
	}
	return now.After(nextDue.AddDate(0, 0, GracePeriodDays))
}
