package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gymAccessAPI/internal/clock"
	"gymAccessAPI/internal/payment"
)

type PaymentService struct {
	db      *pgxpool.Pool
	members *MemberService
	clock   clock.Clock
}

func NewPaymentService(db *pgxpool.Pool, members *MemberService, clk clock.Clock) *PaymentService {
	return &PaymentService{db: db, members: members, clock: clk}
}

const paymentColumns = `id, member_id, amount, payment_type, payment_method, status,
	payment_date, due_date, period_start, period_end, refund_reason, refunded_at,
	recorded_by, created_at`

// RecordPayment stores an already-settled payment and rolls the member's
// billing state forward. Capture/settlement happened upstream; by the time a
// payment reaches here it is a completed fact.
func (s *PaymentService) RecordPayment(ctx context.Context, req *payment.RecordPaymentRequest, recordedBy string) (*payment.Payment, error) {
	if req.Amount < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	if req.PaymentType == "" {
		req.PaymentType = payment.TypeMembershipFee
	}

	m, err := s.members.FindByMemberNo(ctx, req.MemberNo)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("member %s not found", req.MemberNo)
	}

	now := s.clock.Now()
	dueDate := now
	if m.NextPaymentDue != nil {
		dueDate = *m.NextPaymentDue
	}

	p := &payment.Payment{
		ID:            uuid.New().String(),
		MemberID:      m.ID,
		Amount:        req.Amount,
		PaymentType:   req.PaymentType,
		PaymentMethod: req.PaymentMethod,
		Status:        payment.StatusCompleted,
		PaymentDate:   &now,
		DueDate:       dueDate,
		PeriodStart:   dueDate,
		PeriodEnd:     dueDate.AddDate(0, 1, 0),
		RecordedBy:    recordedBy,
		CreatedAt:     now,
	}

	query := `
		INSERT INTO payments (id, member_id, amount, payment_type, payment_method, status,
			payment_date, due_date, period_start, period_end, recorded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.Exec(ctx, query,
		p.ID, p.MemberID, p.Amount, p.PaymentType, p.PaymentMethod, p.Status,
		p.PaymentDate, p.DueDate, p.PeriodStart, p.PeriodEnd, p.RecordedBy, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	if req.PaymentType == payment.TypeMembershipFee {
		if err := s.members.ApplyCompletedPayment(ctx, m.ID, now); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Refund transitions a completed payment to refunded and re-derives the
// owning member's summary from the remaining completed payments. A refunded
// payment is never mutated again.
func (s *PaymentService) Refund(ctx context.Context, paymentID, reason, recordedBy string) (*payment.Payment, error) {
	now := s.clock.Now()

	query := fmt.Sprintf(`
		UPDATE payments
		SET status = $2, refund_reason = $3, refunded_at = $4
		WHERE id = $1 AND status = $5
		RETURNING %s
	`, paymentColumns)

	p, err := s.scanPayment(s.db.QueryRow(ctx, query,
		paymentID, payment.StatusRefunded, reason, now, payment.StatusCompleted))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payment %s not found or not refundable", paymentID)
		}
		return nil, fmt.Errorf("failed to refund payment %s: %w", paymentID, err)
	}

	// The member's last_payment_date falls back to the newest surviving
	// completed payment, which may be none at all.
	var lastPaid *time.Time
	err = s.db.QueryRow(ctx,
		`SELECT MAX(payment_date) FROM payments WHERE member_id = $1 AND status = $2`,
		p.MemberID, payment.StatusCompleted,
	).Scan(&lastPaid)
	if err != nil {
		return nil, fmt.Errorf("failed to find prior payment for member %s: %w", p.MemberID, err)
	}

	if err := s.members.ResyncPaymentStatus(ctx, p.MemberID, lastPaid); err != nil {
		return nil, err
	}

	return p, nil
}

// ExistsForDue reports whether the member already has a payment of this type
// for this due date, in any status. The monthly generation job uses it as
// its idempotence guard.
func (s *PaymentService) ExistsForDue(ctx context.Context, memberID string, ptype payment.Type, dueDate time.Time) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM payments
			WHERE member_id = $1 AND payment_type = $2 AND due_date = $3
		)
	`
	if err := s.db.QueryRow(ctx, query, memberID, ptype, dueDate).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check existing payment: %w", err)
	}
	return exists, nil
}

// CreatePending inserts the monthly membership-fee record generated by the
// reconciliation job.
func (s *PaymentService) CreatePending(ctx context.Context, memberID string, amount float64, dueDate time.Time) (*payment.Payment, error) {
	p := &payment.Payment{
		ID:          uuid.New().String(),
		MemberID:    memberID,
		Amount:      amount,
		PaymentType: payment.TypeMembershipFee,
		Status:      payment.StatusPending,
		DueDate:     dueDate,
		PeriodStart: dueDate,
		PeriodEnd:   dueDate.AddDate(0, 1, 0),
		RecordedBy:  "system",
		CreatedAt:   s.clock.Now(),
	}

	query := `
		INSERT INTO payments (id, member_id, amount, payment_type, status,
			due_date, period_start, period_end, recorded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.Exec(ctx, query,
		p.ID, p.MemberID, p.Amount, p.PaymentType, p.Status,
		p.DueDate, p.PeriodStart, p.PeriodEnd, p.RecordedBy, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pending payment: %w", err)
	}
	return p, nil
}

func (s *PaymentService) scanPayment(row pgx.Row) (*payment.Payment, error) {
	p := &payment.Payment{}
	var method, refundReason *string
	err := row.Scan(
		&p.ID, &p.MemberID, &p.Amount, &p.PaymentType, &method, &p.Status,
		&p.PaymentDate, &p.DueDate, &p.PeriodStart, &p.PeriodEnd, &refundReason, &p.RefundedAt,
		&p.RecordedBy, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if method != nil {
		p.PaymentMethod = *method
	}
	if refundReason != nil {
		p.RefundReason = *refundReason
	}
	return p, nil
}
