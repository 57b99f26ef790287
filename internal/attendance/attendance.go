package attendance

import (
	"fmt"
	"time"
)

type SessionStatus string

const (
	StatusCheckedIn  SessionStatus = "checked_in"
	StatusCheckedOut SessionStatus = "checked_out"
	// StatusIncomplete marks a session the cleanup job force-closed after
	// being open for more than MaxOpenSession with no matching check-out.
	StatusIncomplete SessionStatus = "incomplete"
)

const (
	// MaxOpenSession is how long a session may stay open before the cleanup
	// job force-closes it.
	MaxOpenSession = 24 * time.Hour
	// AutoCheckoutAfter is the synthetic visit length assigned to a
	// force-closed session: check-in + 2h, not the time the job noticed.
	AutoCheckoutAfter = 2 * time.Hour
)

// Session is one check-in/check-out span for a member. At most one session
// per member is checked_in at any time; checked_out and incomplete are
// terminal.
type Session struct {
	ID              string        `json:"id"`
	MemberID        string        `json:"member_id"`
	CheckInTime     time.Time     `json:"check_in_time"`
	CheckOutTime    *time.Time    `json:"check_out_time,omitempty"`
	DurationMinutes int           `json:"duration_minutes"`
	Status          SessionStatus `json:"status"`
	DeviceID        string        `json:"device_id,omitempty"`
	Notes           string        `json:"notes,omitempty"`
}

// DurationMinutes returns the session length rounded to whole minutes.
func DurationMinutes(checkIn, checkOut time.Time) int {
	return int(checkOut.Sub(checkIn).Round(time.Minute) / time.Minute)
}

// AutoClose computes the terminal values for a session the cleanup job
// force-closes: the synthetic checkout is the check-in plus
// AutoCheckoutAfter, a fixed estimate of the visit rather than the time the
// job noticed, and the note records the auto-closure for later disputes.
func AutoClose(checkIn, discoveredAt time.Time) (checkOut time.Time, duration int, note string) {
	checkOut = checkIn.Add(AutoCheckoutAfter)
	note = fmt.Sprintf("Auto-checkout: session open past %s, closed at %s",
		MaxOpenSession, discoveredAt.Format(time.RFC3339))
	return checkOut, DurationMinutes(checkIn, checkOut), note
}

// DailySummary aggregates the sessions whose check-in fell on one calendar
// day in the operating timezone.
type DailySummary struct {
	Date               string  `json:"date"`
	TotalCheckIns      int     `json:"total_check_ins"`
	UniqueMembers      int     `json:"unique_members"`
	CompletedSessions  int     `json:"completed_sessions"`
	AvgDurationMinutes float64 `json:"avg_duration_minutes"`
}

// MemberStatus answers "is this member in the gym right now", derived from
// their most recent session.
type MemberStatus struct {
	MemberID     string     `json:"member_id"`
	Status       string     `json:"status"` // checked_in, checked_out or none
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

type ManualEntryRequest struct {
	MemberNo string `json:"member_no"`
	Type     string `json:"type"` // check_in or check_out
	DeviceID string `json:"device_id,omitempty"`
	Reason   string `json:"reason"`
}
