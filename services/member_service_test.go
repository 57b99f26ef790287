package services

import (
	"testing"
	"time"
)

func TestAdvanceDueStacksSequentialPayments(t *testing.T) {
	due := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	paidAt := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)

	first := advanceDue(&due, paidAt)
	if want := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC); !first.Equal(want) {
		t.Fatalf("first advance = %v, want %v", first, want)
	}

	// A second payment advances from the already-advanced due date, never
	// from the original base: each completed payment buys one more month.
	second := advanceDue(&first, paidAt)
	if want := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC); !second.Equal(want) {
		t.Fatalf("second advance = %v, want %v", second, want)
	}
}

func TestAdvanceDueWithoutDueDate(t *testing.T) {
	paidAt := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)

	got := advanceDue(nil, paidAt)
	if want := paidAt.AddDate(0, 1, 0); !got.Equal(want) {
		t.Errorf("advance = %v, want payment date + 1 month (%v)", got, want)
	}
}
