package accesslog

import "time"

type EventType string

const (
	TypeCheckIn  EventType = "check_in"
	TypeCheckOut EventType = "check_out"
	TypeDenied   EventType = "denied"
)

type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusDenied  EventStatus = "denied"
)

type Method string

const (
	MethodDevice Method = "device"
	MethodManual Method = "manual"
)

// Entry is one door access attempt, granted or denied. Member and device are
// nullable: a "member not found" denial has no member to reference.
// RecordedBy attributes manual entries and administrative overrides, since
// suspension and auto-closure are silent time-driven actions that get
// disputed after the fact.
type Entry struct {
	ID         string      `json:"id"`
	MemberID   *string     `json:"member_id,omitempty"`
	MemberNo   string      `json:"member_no,omitempty"`
	DeviceID   *string     `json:"device_id,omitempty"`
	Type       EventType   `json:"type"`
	Status     EventStatus `json:"status"`
	Reason     string      `json:"reason,omitempty"`
	Method     Method      `json:"method"`
	RecordedBy string      `json:"recorded_by,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Filter narrows a log listing. Zero values mean "no constraint".
type Filter struct {
	MemberNo string
	DeviceID string
	Status   EventStatus
	From     time.Time
	To       time.Time
}

type Page struct {
	Number int
	Size   int
}

type PageMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

type ListResponse struct {
	Logs []*Entry `json:"logs"`
	Meta PageMeta `json:"meta"`
}
