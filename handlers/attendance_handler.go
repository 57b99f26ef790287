package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"gymAccessAPI/internal/accesslog"
	"gymAccessAPI/internal/attendance"
	"gymAccessAPI/internal/clock"
	"gymAccessAPI/middleware"
	"gymAccessAPI/services"
)

type attendanceQueries interface {
	CurrentStatus(ctx context.Context, memberID string) (*attendance.MemberStatus, error)
	DailySummary(ctx context.Context, day time.Time) (*attendance.DailySummary, error)
	ListLogs(ctx context.Context, f accesslog.Filter, page accesslog.Page) (*accesslog.ListResponse, error)
}

type manualRecorder interface {
	ManualAttendance(ctx context.Context, req *attendance.ManualEntryRequest, recordedBy string) (*accesslog.Entry, error)
}

type AttendanceHandler struct {
	attendanceService attendanceQueries
	accessService     manualRecorder
	memberService     memberDirectory
	clock             clock.Clock
}

func NewAttendanceHandler(attendanceService *services.AttendanceService, accessService *services.AccessService, memberService *services.MemberService, clk clock.Clock) *AttendanceHandler {
	return &AttendanceHandler{
		attendanceService: attendanceService,
		accessService:     accessService,
		memberService:     memberService,
		clock:             clk,
	}
}

// GET /api/v1/attendance/status/{memberNo} - is the member in the gym now
func (h *AttendanceHandler) GetMemberCurrentStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	memberNo := mux.Vars(r)["memberNo"]
	m, err := h.memberService.FindByMemberNo(ctx, memberNo)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get member")
		return
	}
	if m == nil {
		respondWithError(w, http.StatusNotFound, "Member not found")
		return
	}

	status, err := h.attendanceService.CurrentStatus(ctx, m.ID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get attendance status")
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

// GET /api/v1/attendance/logs - access log listing with filters + pagination
func (h *AttendanceHandler) GetAttendanceLogs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()

	filter := accesslog.Filter{
		MemberNo: q.Get("member_no"),
		DeviceID: q.Get("device_id"),
		Status:   accesslog.EventStatus(q.Get("status")),
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "from must be RFC3339")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "to must be RFC3339")
			return
		}
		filter.To = t
	}

	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	resp, err := h.attendanceService.ListLogs(ctx, filter, accesslog.Page{Number: page, Size: pageSize})
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch attendance logs")
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// GET /api/v1/attendance/daily?date=2006-01-02 - aggregate for one calendar day
func (h *AttendanceHandler) GetDailySummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	day := h.clock.Now()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	summary, err := h.attendanceService.DailySummary(ctx, day)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to compute daily summary")
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}

// POST /api/v1/attendance/manual - staff-recorded check-in/check-out that
// bypasses the gate checks but still obeys the session state machine
func (h *AttendanceHandler) ManualAttendance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	staffID, ok := middleware.GetStaffID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Staff not authenticated")
		return
	}

	var req attendance.ManualEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.MemberNo == "" {
		respondWithError(w, http.StatusBadRequest, "member_no is required")
		return
	}

	entry, err := h.accessService.ManualAttendance(ctx, &req, staffID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, entry)
}
