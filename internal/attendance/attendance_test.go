package attendance

import (
	"strings"
	"testing"
	"time"
)

func TestDurationMinutes(t *testing.T) {
	checkIn := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		checkOut time.Time
		want     int
	}{
		{"ninety minute visit", checkIn.Add(90 * time.Minute), 90},
		{"sub-minute visit rounds down", checkIn.Add(20 * time.Second), 0},
		{"half minute rounds up", checkIn.Add(90 * time.Second), 2},
		{"auto checkout span", checkIn.Add(AutoCheckoutAfter), 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DurationMinutes(checkIn, tt.checkOut); got != tt.want {
				t.Errorf("DurationMinutes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAutoCloseSyntheticCheckout(t *testing.T) {
	checkIn := time.Date(2025, 6, 13, 18, 0, 0, 0, time.UTC)
	// The cleanup job notices 40 hours later.
	discoveredAt := checkIn.Add(40 * time.Hour)

	checkOut, duration, note := AutoClose(checkIn, discoveredAt)

	if want := checkIn.Add(AutoCheckoutAfter); !checkOut.Equal(want) {
		t.Errorf("checkout = %v, want check-in + 2h (%v), not the discovery time", checkOut, want)
	}
	if duration != 120 {
		t.Errorf("duration = %d minutes, want 120", duration)
	}
	if !strings.Contains(note, "Auto-checkout") {
		t.Errorf("note %q should record the auto-closure", note)
	}
	if !strings.Contains(note, discoveredAt.Format(time.RFC3339)) {
		t.Errorf("note %q should record when the job closed it", note)
	}
}
