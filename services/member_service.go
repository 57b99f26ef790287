package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gymAccessAPI/internal/clock"
	"gymAccessAPI/internal/member"
	"gymAccessAPI/internal/notification"
)

type MemberService struct {
	db    *pgxpool.Pool
	clock clock.Clock
}

func NewMemberService(db *pgxpool.Pool, clk clock.Clock) *MemberService {
	return &MemberService{db: db, clock: clk}
}

const memberColumns = `id, member_no, first_name, last_name, email, phone,
	membership_start_date, membership_end_date, monthly_fee, payment_status,
	last_payment_date, next_payment_due, door_access_enabled, is_active,
	created_at, updated_at`

// CreateMember enrolls a new member. Membership runs one year from the start
// date and the first payment falls due one month in.
func (s *MemberService) CreateMember(ctx context.Context, req *member.CreateMemberRequest) (*member.Member, error) {
	if req.FirstName == "" || req.LastName == "" {
		return nil, fmt.Errorf("first and last name are required")
	}
	if req.MonthlyFee < 0 {
		return nil, fmt.Errorf("monthly fee must be non-negative")
	}

	now := s.clock.Now()

	var seq int64
	if err := s.db.QueryRow(ctx, "SELECT nextval('member_no_seq')").Scan(&seq); err != nil {
		return nil, fmt.Errorf("failed to allocate member number: %w", err)
	}

	nextDue := now.AddDate(0, 1, 0)
	m := &member.Member{
		ID:                  uuid.New().String(),
		MemberNo:            fmt.Sprintf("GYM%06d", seq),
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		Email:               req.Email,
		Phone:               req.Phone,
		MembershipStartDate: now,
		MembershipEndDate:   now.AddDate(1, 0, 0),
		MonthlyFee:          req.MonthlyFee,
		PaymentStatus:       member.StatusUnpaid,
		NextPaymentDue:      &nextDue,
		DoorAccessEnabled:   true,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	query := `
		INSERT INTO members (id, member_no, first_name, last_name, email, phone,
			membership_start_date, membership_end_date, monthly_fee, payment_status,
			next_payment_due, door_access_enabled, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.Exec(ctx, query,
		m.ID, m.MemberNo, m.FirstName, m.LastName, m.Email, m.Phone,
		m.MembershipStartDate, m.MembershipEndDate, m.MonthlyFee, m.PaymentStatus,
		m.NextPaymentDue, m.DoorAccessEnabled, m.IsActive, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create member: %w", err)
	}

	return m, nil
}

// FindByMemberNo looks a member up by their human-readable number,
// case-insensitively. Returns (nil, nil) when no such member exists so
// callers can tell "not found" from an infrastructure failure.
func (s *MemberService) FindByMemberNo(ctx context.Context, memberNo string) (*member.Member, error) {
	query := fmt.Sprintf(`SELECT %s FROM members WHERE UPPER(member_no) = $1`, memberColumns)

	m, err := s.scanMember(s.db.QueryRow(ctx, query, strings.ToUpper(strings.TrimSpace(memberNo))))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member %s: %w", memberNo, err)
	}
	return m, nil
}

// ListActive returns every non-deactivated member. The reconciliation jobs
// scan this set in bulk and apply their own per-record filters.
func (s *MemberService) ListActive(ctx context.Context) ([]*member.Member, error) {
	query := fmt.Sprintf(`SELECT %s FROM members WHERE is_active = true ORDER BY member_no`, memberColumns)

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active members: %w", err)
	}
	defer rows.Close()

	var members []*member.Member
	for rows.Next() {
		m, err := s.scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// advanceDue moves the due date one month past its current value, or one
// month past the payment date when the member has no due date to advance.
func advanceDue(current *time.Time, paymentDate time.Time) time.Time {
	if current != nil {
		return current.AddDate(0, 1, 0)
	}
	return paymentDate.AddDate(0, 1, 0)
}

// ApplyCompletedPayment advances the member's billing state after a payment
// completes: last_payment_date moves to the payment date, the next due date
// advances one month, and the summary status is re-derived. This is the only
// write path for the two payment dates outside the administrative override.
//
// The row is locked for the read-compute-write cycle so two payments
// completing at once stack their advances instead of both building on the
// same base due date.
func (s *MemberService) ApplyCompletedPayment(ctx context.Context, memberID string, paymentDate time.Time) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin payment update for member %s: %w", memberID, err)
	}
	defer tx.Rollback(ctx)

	var current member.PaymentStatus
	var currentDue *time.Time
	err = tx.QueryRow(ctx,
		`SELECT payment_status, next_payment_due FROM members WHERE id = $1 FOR UPDATE`,
		memberID,
	).Scan(&current, &currentDue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("member %s not found", memberID)
		}
		return fmt.Errorf("failed to lock member %s: %w", memberID, err)
	}

	nextDue := advanceDue(currentDue, paymentDate)
	status := member.ResolvePaymentStatus(current, &nextDue, &paymentDate, s.clock.Now())

	query := `
		UPDATE members
		SET last_payment_date = $2, next_payment_due = $3, payment_status = $4, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, memberID, paymentDate, nextDue, status); err != nil {
		return fmt.Errorf("failed to apply payment to member %s: %w", memberID, err)
	}
	return tx.Commit(ctx)
}

// ResyncPaymentStatus re-derives the stored summary status from the current
// dates and persists it when stale. Jobs call this after anything touches
// the ledger so concurrent writers converge on the same derived value. Same
// row lock as ApplyCompletedPayment: the derivation must read the due date
// the write will sit next to.
func (s *MemberService) ResyncPaymentStatus(ctx context.Context, memberID string, lastPaid *time.Time) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin resync for member %s: %w", memberID, err)
	}
	defer tx.Rollback(ctx)

	var current member.PaymentStatus
	var currentDue *time.Time
	err = tx.QueryRow(ctx,
		`SELECT payment_status, next_payment_due FROM members WHERE id = $1 FOR UPDATE`,
		memberID,
	).Scan(&current, &currentDue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("member %s not found", memberID)
		}
		return fmt.Errorf("failed to lock member %s: %w", memberID, err)
	}

	status := member.ResolvePaymentStatus(current, currentDue, lastPaid, s.clock.Now())

	query := `
		UPDATE members
		SET last_payment_date = $2, payment_status = $3, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, memberID, lastPaid, status); err != nil {
		return fmt.Errorf("failed to resync member %s: %w", memberID, err)
	}
	return tx.Commit(ctx)
}

// MarkOverdue flags a member overdue and pulls their door access in one
// statement. The door_access_enabled predicate makes the suspension
// idempotent: disabling an already-disabled flag is a no-op, and re-enabling
// is only ever an explicit administrative act.
func (s *MemberService) MarkOverdue(ctx context.Context, memberID string) error {
	query := `
		UPDATE members
		SET payment_status = $2,
		    door_access_enabled = false,
		    updated_at = NOW()
		WHERE id = $1 AND (payment_status != $2 OR door_access_enabled = true)
	`
	tag, err := s.db.Exec(ctx, query, memberID, member.StatusOverdue)
	if err != nil {
		return fmt.Errorf("failed to suspend member %s: %w", memberID, err)
	}
	if tag.RowsAffected() > 0 {
		s.audit(ctx, memberID, "access_suspended", "payment overdue beyond grace period", "system")
	}
	return nil
}

// SuspendDoorAccess satisfies the gate's directory interface.
func (s *MemberService) SuspendDoorAccess(ctx context.Context, memberID string) error {
	return s.MarkOverdue(ctx, memberID)
}

// SetDoorAccess is the explicit administrative toggle. Automatic suspension
// is one-way; this is the only path that turns access back on.
func (s *MemberService) SetDoorAccess(ctx context.Context, memberNo string, enabled bool, reason, recordedBy string) (*member.Member, error) {
	m, err := s.FindByMemberNo(ctx, memberNo)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("member %s not found", memberNo)
	}

	query := `UPDATE members SET door_access_enabled = $2, updated_at = NOW() WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, m.ID, enabled); err != nil {
		return nil, fmt.Errorf("failed to update door access for %s: %w", memberNo, err)
	}

	action := "access_disabled"
	if enabled {
		action = "access_enabled"
	}
	s.audit(ctx, m.ID, action, reason, recordedBy)

	m.DoorAccessEnabled = enabled
	return m, nil
}

// OverridePaymentStatus sets the derived status directly. This deliberately
// breaks the derivation invariant until the next write re-derives it, so it
// is always audited with the operator who asked for it.
func (s *MemberService) OverridePaymentStatus(ctx context.Context, memberNo string, req *member.UpdatePaymentStatusRequest, recordedBy string) (*member.Member, error) {
	switch req.Status {
	case member.StatusPaid, member.StatusUnpaid, member.StatusOverdue:
	default:
		return nil, fmt.Errorf("invalid payment status %q", req.Status)
	}

	m, err := s.FindByMemberNo(ctx, memberNo)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("member %s not found", memberNo)
	}

	query := `
		UPDATE members
		SET payment_status = $2,
		    last_payment_date = COALESCE($3, last_payment_date),
		    updated_at = NOW()
		WHERE id = $1
	`
	if _, err := s.db.Exec(ctx, query, m.ID, req.Status, req.PaymentDate); err != nil {
		return nil, fmt.Errorf("failed to override payment status for %s: %w", memberNo, err)
	}

	s.audit(ctx, m.ID, "payment_status_override",
		fmt.Sprintf("status set to %s (was %s)", req.Status, m.PaymentStatus), recordedBy)

	m.PaymentStatus = req.Status
	if req.PaymentDate != nil {
		m.LastPaymentDate = req.PaymentDate
	}
	return m, nil
}

// Deactivate soft-deletes a member. Records are never hard-deleted.
func (s *MemberService) Deactivate(ctx context.Context, memberNo, recordedBy string) error {
	m, err := s.FindByMemberNo(ctx, memberNo)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("member %s not found", memberNo)
	}

	query := `UPDATE members SET is_active = false, updated_at = NOW() WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, m.ID); err != nil {
		return fmt.Errorf("failed to deactivate member %s: %w", memberNo, err)
	}

	s.audit(ctx, m.ID, "deactivated", "", recordedBy)
	return nil
}

// RegisterPushToken stores a push registration for reminder delivery,
// refreshing last_used when the token is already known.
func (s *MemberService) RegisterPushToken(ctx context.Context, memberNo, token, platform string) error {
	m, err := s.FindByMemberNo(ctx, memberNo)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("member %s not found", memberNo)
	}

	query := `
		INSERT INTO member_push_tokens (member_id, token, platform, added_at, last_used)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (member_id, token)
		DO UPDATE SET last_used = NOW()
	`
	if _, err := s.db.Exec(ctx, query, m.ID, token, platform); err != nil {
		return fmt.Errorf("failed to register push token for %s: %w", memberNo, err)
	}
	return nil
}

// TokensForMember returns the member's push registrations.
func (s *MemberService) TokensForMember(ctx context.Context, memberID string) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT token, platform, added_at, last_used
		FROM member_push_tokens
		WHERE member_id = $1
	`, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to load push tokens for %s: %w", memberID, err)
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.Token, &t.Platform, &t.AddedAt, &t.LastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan push token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// audit records a state-changing administrative or system action. Failures
// are logged but never fail the operation itself.
func (s *MemberService) audit(ctx context.Context, memberID, action, detail, recordedBy string) {
	query := `
		INSERT INTO member_audit (id, member_id, action, detail, recorded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	if _, err := s.db.Exec(ctx, query, uuid.New().String(), memberID, action, detail, recordedBy); err != nil {
		log.Printf("MemberService: failed to write audit record for %s (%s): %v", memberID, action, err)
	}
}

func (s *MemberService) scanMember(row pgx.Row) (*member.Member, error) {
	m := &member.Member{}
	err := row.Scan(
		&m.ID, &m.MemberNo, &m.FirstName, &m.LastName, &m.Email, &m.Phone,
		&m.MembershipStartDate, &m.MembershipEndDate, &m.MonthlyFee, &m.PaymentStatus,
		&m.LastPaymentDate, &m.NextPaymentDue, &m.DoorAccessEnabled, &m.IsActive,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}
