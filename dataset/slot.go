// Package dataset turns time-indexed flow grids into the windowed
// closeness/period/trend tensors the model trains on.
package dataset

import (
	"fmt"
	"strconv"
	"time"
)

// Slot identifies one interval of a day in the YYYYMMDDSS encoding, where
// SS counts the day's T intervals from 01.
type Slot struct {
	Date  time.Time // midnight UTC
	Index int       // 1..T
}

// ParseSlot decodes a YYYYMMDDSS timestamp for a day of t intervals.
func ParseSlot(s string, t int) (Slot, error) {
	if len(s) != 10 {
		return Slot{}, fmt.Errorf("invalid timestamp %q: want YYYYMMDDSS", s)
	}
	date, err := time.Parse("20060102", s[:8])
	if err != nil {
		return Slot{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	idx, err := strconv.Atoi(s[8:])
	if err != nil || idx < 1 || idx > t {
		return Slot{}, fmt.Errorf("invalid timestamp %q: slot must be 01..%02d", s, t)
	}
	return Slot{Date: date, Index: idx}, nil
}

// SlotOf returns the slot containing tm.
func SlotOf(tm time.Time, t int) Slot {
	tm = tm.UTC()
	date := time.Date(tm.Year(), tm.Month(), tm.Day(), 0, 0, 0, 0, time.UTC)
	return Slot{Date: date, Index: int(tm.Sub(date)/Interval(t)) + 1}
}

// Interval is the length of one slot when a day has t of them.
func Interval(t int) time.Duration { return 24 * time.Hour / time.Duration(t) }

func (s Slot) String() string {
	return fmt.Sprintf("%s%02d", s.Date.Format("20060102"), s.Index)
}

// Day returns the YYYYMMDD part.
func (s Slot) Day() string { return s.Date.Format("20060102") }

// Time returns the start of the slot.
func (s Slot) Time(t int) time.Time {
	return s.Date.Add(time.Duration(s.Index-1) * Interval(t))
}
