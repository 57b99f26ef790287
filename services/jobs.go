package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"gymAccessAPI/internal/member"
	"gymAccessAPI/internal/notification"
	"gymAccessAPI/internal/payment"
)

const (
	// Retention for closed attendance sessions and raw access logs.
	retentionDays = 90
	// Members due within this window get an upcoming-payment reminder.
	reminderWindowDays = 3
)

// Job dependencies are narrow interfaces so each job can be exercised
// against fakes. The concrete services satisfy them.

type MemberLister interface {
	ListActive(ctx context.Context) ([]*member.Member, error)
}

type OverdueMarker interface {
	MemberLister
	MarkOverdue(ctx context.Context, memberID string) error
}

type PaymentLedger interface {
	ExistsForDue(ctx context.Context, memberID string, ptype payment.Type, dueDate time.Time) (bool, error)
	CreatePending(ctx context.Context, memberID string, amount float64, dueDate time.Time) (*payment.Payment, error)
}

type SessionJanitor interface {
	ForceCloseStale(ctx context.Context, now time.Time) (int, error)
	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type LogJanitor interface {
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type ReminderNotifier interface {
	SendSMS(ctx context.Context, phoneNumber, message string) error
	SendEmail(ctx context.Context, to, subject, html string) error
	SendPush(ctx context.Context, tokens []notification.DeviceToken, msg notification.Message) error
}

type TokenDirectory interface {
	TokensForMember(ctx context.Context, memberID string) ([]notification.DeviceToken, error)
}

// ---------------------------------------------------------
// Overdue sweep (daily)
// ---------------------------------------------------------

// OverdueSweepJob flags members whose payment has slipped past the grace
// period and pulls their door access, so the next gate evaluation does not
// have to be the one that notices.
type OverdueSweepJob struct {
	Members OverdueMarker
}

func (j *OverdueSweepJob) Name() string            { return "overdue_sweep" }
func (j *OverdueSweepJob) Interval() time.Duration { return 24 * time.Hour }

func (j *OverdueSweepJob) Run(ctx context.Context, now time.Time) error {
	members, err := j.Members.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("overdue sweep: failed to list members: %w", err)
	}

	swept := 0
	for _, m := range members {
		if m.NextPaymentDue == nil {
			continue
		}
		derived := member.ResolvePaymentStatus(m.PaymentStatus, m.NextPaymentDue, m.LastPaymentDate, now)
		if derived == member.StatusPaid || !member.OverdueBeyondGrace(m.NextPaymentDue, now) {
			continue
		}
		if err := j.Members.MarkOverdue(ctx, m.ID); err != nil {
			log.Printf("overdue_sweep: failed to suspend member %s: %v", m.MemberNo, err)
			continue
		}
		swept++
	}

	log.Printf("overdue_sweep: %d of %d active members suspended", swept, len(members))
	return nil
}

// ---------------------------------------------------------
// Payment reminders (daily)
// ---------------------------------------------------------

// ReminderJob notifies members whose payment is due within the next few days
// or already overdue. Delivery is best-effort fan-out per member; a failed
// channel is logged and the batch continues.
type ReminderJob struct {
	Members  MemberLister
	Notifier ReminderNotifier
	Tokens   TokenDirectory
}

func (j *ReminderJob) Name() string            { return "payment_reminders" }
func (j *ReminderJob) Interval() time.Duration { return 24 * time.Hour }

func (j *ReminderJob) Run(ctx context.Context, now time.Time) error {
	members, err := j.Members.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("payment reminders: failed to list members: %w", err)
	}

	sent := 0
	for _, m := range members {
		if m.NextPaymentDue == nil {
			log.Printf("payment_reminders: member %s has no due date, skipping", m.MemberNo)
			continue
		}

		due := *m.NextPaymentDue
		derived := member.ResolvePaymentStatus(m.PaymentStatus, m.NextPaymentDue, m.LastPaymentDate, now)

		var msg notification.Message
		switch {
		case derived == member.StatusOverdue:
			msg = renderOverdueReminder(m, daysBetween(due, now))
		case derived == member.StatusUnpaid && !due.After(now.AddDate(0, 0, reminderWindowDays)):
			msg = renderUpcomingReminder(m, daysBetween(now, due))
		default:
			continue
		}

		j.Notifier.SendSMS(ctx, m.Phone, msg.Body)
		j.Notifier.SendEmail(ctx, m.Email, msg.Title, "<p>"+msg.Body+"</p>")

		if j.Tokens != nil {
			tokens, err := j.Tokens.TokensForMember(ctx, m.ID)
			if err != nil {
				log.Printf("payment_reminders: failed to load push tokens for %s: %v", m.MemberNo, err)
			} else {
				j.Notifier.SendPush(ctx, tokens, msg)
			}
		}
		sent++
	}

	log.Printf("payment_reminders: notified %d of %d active members", sent, len(members))
	return nil
}

// daysBetween counts whole days from a to b, never negative.
func daysBetween(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}

func renderUpcomingReminder(m *member.Member, days int) notification.Message {
	when := fmt.Sprintf("in %d days", days)
	switch days {
	case 0:
		when = "today"
	case 1:
		when = "tomorrow"
	}
	return notification.Message{
		Title: "Membership payment reminder",
		Body: fmt.Sprintf("Hi %s, your membership payment of %.2f is due %s (%s). Pay at the front desk or online to keep your door access active.",
			m.FirstName, m.MonthlyFee, when, m.NextPaymentDue.Format("Jan 2, 2006")),
	}
}

func renderOverdueReminder(m *member.Member, days int) notification.Message {
	return notification.Message{
		Title: "Membership payment overdue",
		Body: fmt.Sprintf("Hi %s, your membership payment of %.2f is overdue by %d days (due %s). Door access is suspended %d days past the due date until payment is received.",
			m.FirstName, m.MonthlyFee, days, m.NextPaymentDue.Format("Jan 2, 2006"), member.GracePeriodDays),
	}
}

// ---------------------------------------------------------
// Monthly payment generation
// ---------------------------------------------------------

// PaymentGenerationJob creates the pending membership-fee record for every
// active member whose due date falls in the current month. The ledger
// existence check makes reruns free, so the job runs daily rather than
// gambling on the process being up on the 1st.
type PaymentGenerationJob struct {
	Members MemberLister
	Ledger  PaymentLedger
}

func (j *PaymentGenerationJob) Name() string            { return "payment_generation" }
func (j *PaymentGenerationJob) Interval() time.Duration { return 24 * time.Hour }

func (j *PaymentGenerationJob) Run(ctx context.Context, now time.Time) error {
	members, err := j.Members.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("payment generation: failed to list members: %w", err)
	}

	created := 0
	for _, m := range members {
		if m.NextPaymentDue == nil {
			continue
		}
		due := *m.NextPaymentDue
		if due.Year() != now.Year() || due.Month() != now.Month() {
			continue
		}

		exists, err := j.Ledger.ExistsForDue(ctx, m.ID, payment.TypeMembershipFee, due)
		if err != nil {
			log.Printf("payment_generation: existence check failed for %s: %v", m.MemberNo, err)
			continue
		}
		if exists {
			continue
		}

		if _, err := j.Ledger.CreatePending(ctx, m.ID, m.MonthlyFee, due); err != nil {
			log.Printf("payment_generation: failed to create payment for %s: %v", m.MemberNo, err)
			continue
		}
		created++
	}

	log.Printf("payment_generation: created %d pending payments", created)
	return nil
}

// ---------------------------------------------------------
// Attendance cleanup (daily)
// ---------------------------------------------------------

// AttendanceCleanupJob force-closes sessions left open past 24 hours and
// hard-deletes checked-out sessions past retention.
type AttendanceCleanupJob struct {
	Sessions SessionJanitor
}

func (j *AttendanceCleanupJob) Name() string            { return "attendance_cleanup" }
func (j *AttendanceCleanupJob) Interval() time.Duration { return 24 * time.Hour }

func (j *AttendanceCleanupJob) Run(ctx context.Context, now time.Time) error {
	closed, err := j.Sessions.ForceCloseStale(ctx, now)
	if err != nil {
		return fmt.Errorf("attendance cleanup: %w", err)
	}

	deleted, err := j.Sessions.DeleteClosedBefore(ctx, now.AddDate(0, 0, -retentionDays))
	if err != nil {
		return fmt.Errorf("attendance cleanup: %w", err)
	}

	log.Printf("attendance_cleanup: force-closed %d sessions, deleted %d old sessions", closed, deleted)
	return nil
}

// ---------------------------------------------------------
// Access log retention (weekly)
// ---------------------------------------------------------

type LogRetentionJob struct {
	Logs LogJanitor
}

func (j *LogRetentionJob) Name() string            { return "log_retention" }
func (j *LogRetentionJob) Interval() time.Duration { return 7 * 24 * time.Hour }

func (j *LogRetentionJob) Run(ctx context.Context, now time.Time) error {
	deleted, err := j.Logs.DeleteLogsBefore(ctx, now.AddDate(0, 0, -retentionDays))
	if err != nil {
		return fmt.Errorf("log retention: %w", err)
	}
	log.Printf("log_retention: deleted %d access log entries", deleted)
	return nil
}
