package dataset

import (
	"strings"
	"testing"
)

func loadFlows(t *testing.T, days, slots int, skip map[int]bool) *Flows {
	t.Helper()
	f, err := ReadFlowsCSV(strings.NewReader(flowsCSV(days, slots, skip)), slots, 1, 2, 2)
	if err != nil {
		t.Fatalf("ReadFlowsCSV failed: %v", err)
	}
	return f
}

func TestWindowOffsets(t *testing.T) {
	w := Windowing{T: 24, Closeness: 3, Period: 2, Trend: 1}
	c, p, tr := w.Offsets()
	if len(c) != 3 || c[0] != 1 || c[2] != 3 {
		t.Errorf("Unexpected closeness offsets %v", c)
	}
	if len(p) != 2 || p[0] != 24 || p[1] != 48 {
		t.Errorf("Unexpected period offsets %v", p)
	}
	if len(tr) != 1 || tr[0] != 168 {
		t.Errorf("Unexpected trend offsets %v", tr)
	}
	if w.Start() != 168 {
		t.Errorf("Expected start 168, got %d", w.Start())
	}
	if got := (Windowing{T: 24, Closeness: 6, Period: 4}).Start(); got != 96 {
		t.Errorf("Expected start 96 without trend, got %d", got)
	}
}

func TestWindowBuild(t *testing.T) {
	f := loadFlows(t, 10, 4, nil)
	w := Windowing{T: 4, Closeness: 2, Period: 1, Trend: 1}
	samples, err := w.Build(f)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(samples) != 40-28 {
		t.Fatalf("Expected 12 samples, got %d", len(samples))
	}

	s := samples[0]
	// Cell (0,0) of each frame holds its index.
	if s.Target[0] != 28 || s.Slot.String() != "2014040801" {
		t.Errorf("Unexpected first target %v at %s", s.Target[0], s.Slot)
	}
	if len(s.Closeness) != 8 || s.Closeness[0] != 27 || s.Closeness[4] != 26 {
		t.Errorf("Closeness should hold frames 27 then 26, got %v", s.Closeness)
	}
	if len(s.Period) != 4 || s.Period[0] != 24 {
		t.Errorf("Period should hold frame 24, got %v", s.Period)
	}
	if len(s.Trend) != 4 || s.Trend[0] != 0 {
		t.Errorf("Trend should hold frame 0, got %v", s.Trend)
	}
}

func TestWindowBuildSkipsGaps(t *testing.T) {
	f := loadFlows(t, 4, 4, map[int]bool{9: true})
	w := Windowing{T: 4, Closeness: 2, Period: 1}
	samples, err := w.Build(f)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	// Frame 9 is missing. Targets 10 and 11 need it for closeness and
	// target 13 needs it for period. Target 9 does not exist.
	for _, s := range samples {
		switch s.Target[0] {
		case 9, 10, 11, 13:
			t.Errorf("Sample with target %v should have been skipped", s.Target[0])
		}
		if s.Trend != nil {
			t.Error("Absent trend view should be nil")
		}
	}
	// Start is index 4 of the 15 remaining frames: 11 candidates minus
	// targets 10, 11 and 13.
	if len(samples) != 8 {
		t.Errorf("Expected 8 samples, got %d", len(samples))
	}
}

func TestWindowBuildValidation(t *testing.T) {
	f := loadFlows(t, 2, 4, nil)
	if _, err := (Windowing{T: 24, Closeness: 1}).Build(f); err == nil {
		t.Error("Expected mismatched T to fail")
	}
	if _, err := (Windowing{T: 4}).Build(f); err == nil {
		t.Error("Expected no active view to fail")
	}
}
