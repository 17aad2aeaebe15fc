package dataset

import (
	"testing"
	"time"
)

func TestParseSlot(t *testing.T) {
	tests := []struct {
		input   string
		valid   bool
		hour    int
		weekday time.Weekday
	}{
		{"2014040101", true, 0, time.Tuesday},
		{"2014040124", true, 23, time.Tuesday},
		{"2014040600", false, 0, 0},
		{"2014040625", false, 0, 0},
		{"20140401", false, 0, 0},
		{"2014023101", false, 0, 0},
		{"20140401ab", false, 0, 0},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			s, err := ParseSlot(test.input, 24)
			if !test.valid {
				if err == nil {
					t.Errorf("Expected %s to be rejected", test.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSlot failed: %v", err)
			}
			if s.String() != test.input {
				t.Errorf("Expected %s to round trip, got %s", test.input, s.String())
			}
			if tm := s.Time(24); tm.Hour() != test.hour || tm.Weekday() != test.weekday {
				t.Errorf("Unexpected time %v", tm)
			}
		})
	}
}

func TestSlotOf(t *testing.T) {
	tm := time.Date(2014, 4, 1, 13, 45, 0, 0, time.UTC)
	if got := SlotOf(tm, 24).String(); got != "2014040114" {
		t.Errorf("Expected slot 2014040114, got %s", got)
	}
	if got := SlotOf(tm, 48).String(); got != "2014040128" {
		t.Errorf("Expected half-hour slot 2014040128, got %s", got)
	}
	if got := SlotOf(tm, 4).Day(); got != "20140401" {
		t.Errorf("Unexpected day %s", got)
	}
}
