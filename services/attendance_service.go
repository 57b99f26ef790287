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

	"gymAccessAPI/internal/accesslog"
	"gymAccessAPI/internal/attendance"
)

type AttendanceService struct {
	db  *pgxpool.Pool
	loc *time.Location
}

// NewAttendanceService creates the session tracker. loc is the gym's
// operating timezone; daily aggregates group sessions by its calendar days.
func NewAttendanceService(db *pgxpool.Pool, loc *time.Location) *AttendanceService {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceService{db: db, loc: loc}
}

const sessionColumns = `id, member_id, check_in_time, check_out_time,
	duration_minutes, status, device_id, notes`

// LastSession returns the member's most recent session by check-in time, or
// (nil, nil) if they have none. The gate derives the access type from it:
// open means this event is a check-out.
func (s *AttendanceService) LastSession(ctx context.Context, memberID string) (*attendance.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM attendance_sessions
		WHERE member_id = $1
		ORDER BY check_in_time DESC
		LIMIT 1
	`, sessionColumns)

	sess, err := s.scanSession(s.db.QueryRow(ctx, query, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last session for member %s: %w", memberID, err)
	}
	return sess, nil
}

// Open starts a new session for the member.
func (s *AttendanceService) Open(ctx context.Context, memberID, deviceID string, at time.Time) (*attendance.Session, error) {
	sess := &attendance.Session{
		ID:          uuid.New().String(),
		MemberID:    memberID,
		CheckInTime: at,
		Status:      attendance.StatusCheckedIn,
		DeviceID:    deviceID,
	}

	query := `
		INSERT INTO attendance_sessions (id, member_id, check_in_time, duration_minutes, status, device_id)
		VALUES ($1, $2, $3, 0, $4, $5)
	`
	if _, err := s.db.Exec(ctx, query, sess.ID, sess.MemberID, sess.CheckInTime, sess.Status, sess.DeviceID); err != nil {
		return nil, fmt.Errorf("failed to open session for member %s: %w", memberID, err)
	}
	return sess, nil
}

// Close ends an open session, freezing its duration. The status predicate
// keeps the transition terminal: a closed or incomplete session stays that
// way even if two grants race.
func (s *AttendanceService) Close(ctx context.Context, sessionID string, at time.Time) (*attendance.Session, error) {
	query := fmt.Sprintf(`
		UPDATE attendance_sessions
		SET check_out_time = $2,
		    duration_minutes = GREATEST(0, ROUND(EXTRACT(EPOCH FROM ($2 - check_in_time)) / 60)),
		    status = $3
		WHERE id = $1 AND status = $4
		RETURNING %s
	`, sessionColumns)

	sess, err := s.scanSession(s.db.QueryRow(ctx, query,
		sessionID, at, attendance.StatusCheckedOut, attendance.StatusCheckedIn))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s is not open", sessionID)
		}
		return nil, fmt.Errorf("failed to close session %s: %w", sessionID, err)
	}
	return sess, nil
}

// CurrentStatus reports whether the member is in the gym right now, derived
// from their most recent session.
func (s *AttendanceService) CurrentStatus(ctx context.Context, memberID string) (*attendance.MemberStatus, error) {
	last, err := s.LastSession(ctx, memberID)
	if err != nil {
		return nil, err
	}

	status := &attendance.MemberStatus{MemberID: memberID, Status: "none"}
	if last == nil {
		return status, nil
	}

	if last.Status == attendance.StatusCheckedIn {
		status.Status = "checked_in"
		status.LastActivity = &last.CheckInTime
	} else {
		status.Status = "checked_out"
		if last.CheckOutTime != nil {
			status.LastActivity = last.CheckOutTime
		} else {
			status.LastActivity = &last.CheckInTime
		}
	}
	return status, nil
}

// DailySummary aggregates sessions whose check-in fell on the given calendar
// day in the operating timezone.
func (s *AttendanceService) DailySummary(ctx context.Context, day time.Time) (*attendance.DailySummary, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	query := `
		SELECT COUNT(*),
		       COUNT(DISTINCT member_id),
		       COUNT(*) FILTER (WHERE status = $3),
		       COALESCE(AVG(duration_minutes) FILTER (WHERE status = $3), 0)
		FROM attendance_sessions
		WHERE check_in_time >= $1 AND check_in_time < $2
	`
	summary := &attendance.DailySummary{Date: dayStart.Format("2006-01-02")}
	err := s.db.QueryRow(ctx, query, dayStart, dayEnd, attendance.StatusCheckedOut).Scan(
		&summary.TotalCheckIns, &summary.UniqueMembers,
		&summary.CompletedSessions, &summary.AvgDurationMinutes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute daily summary for %s: %w", summary.Date, err)
	}
	return summary, nil
}

// ForceCloseStale closes every session open longer than
// attendance.MaxOpenSession. The synthetic checkout is check-in + 2h, a
// fixed estimate rather than the discovery time, and a note records the
// auto-closure. Each session is its own unit of work; one failure never
// aborts the batch.
func (s *AttendanceService) ForceCloseStale(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-attendance.MaxOpenSession)

	rows, err := s.db.Query(ctx, `
		SELECT id, check_in_time FROM attendance_sessions
		WHERE status = $1 AND check_in_time < $2
	`, attendance.StatusCheckedIn, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to query stale sessions: %w", err)
	}
	defer rows.Close()

	type stale struct {
		id      string
		checkIn time.Time
	}
	var candidates []stale
	for rows.Next() {
		var c stale
		if err := rows.Scan(&c.id, &c.checkIn); err != nil {
			return 0, fmt.Errorf("failed to scan stale session: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	closed := 0
	for _, c := range candidates {
		syntheticOut, duration, note := attendance.AutoClose(c.checkIn, now)
		_, err := s.db.Exec(ctx, `
			UPDATE attendance_sessions
			SET check_out_time = $2,
			    duration_minutes = $3,
			    status = $4,
			    notes = TRIM(COALESCE(notes, '') || ' ' || $5)
			WHERE id = $1 AND status = $6
		`, c.id, syntheticOut, duration, attendance.StatusIncomplete, note,
			attendance.StatusCheckedIn)
		if err != nil {
			log.Printf("AttendanceService: failed to force-close session %s: %v", c.id, err)
			continue
		}
		closed++
	}
	return closed, nil
}

// DeleteClosedBefore hard-deletes checked-out sessions older than the
// retention cutoff.
func (s *AttendanceService) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM attendance_sessions
		WHERE status = $1 AND check_in_time < $2
	`, attendance.StatusCheckedOut, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ---------------------------------------------------------
// Access log
// ---------------------------------------------------------

// Record persists one door access attempt, granted or denied.
func (s *AttendanceService) Record(ctx context.Context, e *accesslog.Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	query := `
		INSERT INTO access_logs (id, member_id, device_id, type, status, reason, method, recorded_by, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.Exec(ctx, query,
		e.ID, e.MemberID, e.DeviceID, e.Type, e.Status, e.Reason, e.Method, e.RecordedBy, e.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to record access log: %w", err)
	}
	return nil
}

// ListLogs returns access log entries matching the filter, newest first,
// with pagination metadata.
func (s *AttendanceService) ListLogs(ctx context.Context, f accesslog.Filter, page accesslog.Page) (*accesslog.ListResponse, error) {
	if page.Number < 1 {
		page.Number = 1
	}
	if page.Size < 1 || page.Size > 100 {
		page.Size = 20
	}

	where := []string{"1=1"}
	args := []interface{}{}
	argN := 1

	add := func(clause string, v interface{}) {
		where = append(where, fmt.Sprintf(clause, argN))
		args = append(args, v)
		argN++
	}

	if f.MemberNo != "" {
		add("l.member_id = (SELECT id FROM members WHERE UPPER(member_no) = $%d)", strings.ToUpper(f.MemberNo))
	}
	if f.DeviceID != "" {
		add("l.device_id = $%d", f.DeviceID)
	}
	if f.Status != "" {
		add("l.status = $%d", f.Status)
	}
	if !f.From.IsZero() {
		add("l.timestamp >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("l.timestamp < $%d", f.To)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM access_logs l WHERE %s`, whereClause)
	if err := s.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count access logs: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT l.id, l.member_id, COALESCE(m.member_no, ''), l.device_id,
		       l.type, l.status, COALESCE(l.reason, ''), l.method,
		       COALESCE(l.recorded_by, ''), l.timestamp
		FROM access_logs l
		LEFT JOIN members m ON m.id = l.member_id
		WHERE %s
		ORDER BY l.timestamp DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argN, argN+1)
	args = append(args, page.Size, (page.Number-1)*page.Size)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch access logs: %w", err)
	}
	defer rows.Close()

	logs := []*accesslog.Entry{}
	for rows.Next() {
		e := &accesslog.Entry{}
		err := rows.Scan(&e.ID, &e.MemberID, &e.MemberNo, &e.DeviceID,
			&e.Type, &e.Status, &e.Reason, &e.Method, &e.RecordedBy, &e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access log: %w", err)
		}
		logs = append(logs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &accesslog.ListResponse{
		Logs: logs,
		Meta: accesslog.PageMeta{Page: page.Number, PageSize: page.Size, TotalCount: total},
	}, nil
}

// DeleteLogsBefore hard-deletes raw access log entries older than the
// retention cutoff.
func (s *AttendanceService) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM access_logs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old access logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *AttendanceService) scanSession(row pgx.Row) (*attendance.Session, error) {
	sess := &attendance.Session{}
	var deviceID, notes *string
	err := row.Scan(
		&sess.ID, &sess.MemberID, &sess.CheckInTime, &sess.CheckOutTime,
		&sess.DurationMinutes, &sess.Status, &deviceID, &notes,
	)
	if err != nil {
		return nil, err
	}
	if deviceID != nil {
		sess.DeviceID = *deviceID
	}
	if notes != nil {
		sess.Notes = *notes
	}
	return sess, nil
}
