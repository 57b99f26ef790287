package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gymAccessAPI/internal/accesslog"
	"gymAccessAPI/internal/attendance"
	"gymAccessAPI/internal/clock"
)

type stubAttendance struct {
	summaryDay time.Time
}

func (s *stubAttendance) CurrentStatus(ctx context.Context, memberID string) (*attendance.MemberStatus, error) {
	return &attendance.MemberStatus{MemberID: memberID, Status: "none"}, nil
}

func (s *stubAttendance) DailySummary(ctx context.Context, day time.Time) (*attendance.DailySummary, error) {
	s.summaryDay = day
	return &attendance.DailySummary{Date: day.Format("2006-01-02")}, nil
}

func (s *stubAttendance) ListLogs(ctx context.Context, f accesslog.Filter, page accesslog.Page) (*accesslog.ListResponse, error) {
	return &accesslog.ListResponse{}, nil
}

func TestGetDailySummaryDefaultsToClockDay(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	stub := &stubAttendance{}
	h := &AttendanceHandler{
		attendanceService: stub,
		clock:             &clock.Fixed{T: now},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/daily", nil)
	rr := httptest.NewRecorder()

	h.GetDailySummary(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !stub.summaryDay.Equal(now) {
		t.Errorf("summary day = %v, want the handler clock's %v", stub.summaryDay, now)
	}
}

func TestGetDailySummaryExplicitDate(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	stub := &stubAttendance{}
	h := &AttendanceHandler{
		attendanceService: stub,
		clock:             &clock.Fixed{T: now},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/daily?date=2025-06-01", nil)
	rr := httptest.NewRecorder()

	h.GetDailySummary(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC); !stub.summaryDay.Equal(want) {
		t.Errorf("summary day = %v, want %v", stub.summaryDay, want)
	}
}
