package dataset

import (
	"fmt"
	"time"
)

// Lookback intervals, in days, of the period and trend views.
const (
	PeriodInterval = 1
	TrendInterval  = 7
)

// Windowing cuts closeness, period and trend windows out of a flow
// series. A zero length leaves the view out.
type Windowing struct {
	T         int
	Closeness int
	Period    int
	Trend     int
}

// Sample is one training example. Absent views are nil.
type Sample struct {
	Closeness []float32
	Period    []float32
	Trend     []float32
	Target    []float32
	Slot      Slot
}

// Offsets returns the lookback, in slots, of each frame of each view, most
// recent first.
func (w Windowing) Offsets() (closeness, period, trend []int) {
	for j := 1; j <= w.Closeness; j++ {
		closeness = append(closeness, j)
	}
	for j := 1; j <= w.Period; j++ {
		period = append(period, PeriodInterval*w.T*j)
	}
	for j := 1; j <= w.Trend; j++ {
		trend = append(trend, TrendInterval*w.T*j)
	}
	return closeness, period, trend
}

// Start is the first frame index that can have a full lookback.
func (w Windowing) Start() int {
	return max(TrendInterval*w.T*w.Trend, PeriodInterval*w.T*w.Period, w.Closeness)
}

// Build returns one sample per frame from Start on whose lookback frames
// all exist. Frames with a gap in their lookback are skipped, not padded.
func (w Windowing) Build(f *Flows) ([]Sample, error) {
	if w.T != f.T {
		return nil, fmt.Errorf("windowing T=%d does not match flows T=%d", w.T, f.T)
	}
	if w.Closeness < 0 || w.Period < 0 || w.Trend < 0 {
		return nil, fmt.Errorf("window lengths must not be negative")
	}
	if w.Closeness == 0 && w.Period == 0 && w.Trend == 0 {
		return nil, fmt.Errorf("no active view")
	}

	at := make(map[time.Time]int, f.Len())
	for i, s := range f.Slots {
		at[s.Time(f.T)] = i
	}
	interval := Interval(f.T)
	cOff, pOff, tOff := w.Offsets()

	window := func(target time.Time, offsets []int) ([]float32, bool) {
		if len(offsets) == 0 {
			return nil, true
		}
		out := make([]float32, 0, len(offsets)*f.FrameSize())
		for _, off := range offsets {
			i, ok := at[target.Add(-time.Duration(off)*interval)]
			if !ok {
				return nil, false
			}
			out = append(out, f.Frames[i]...)
		}
		return out, true
	}

	var samples []Sample
	for i := w.Start(); i < f.Len(); i++ {
		target := f.Slots[i].Time(f.T)
		c, okC := window(target, cOff)
		p, okP := window(target, pOff)
		t, okT := window(target, tOff)
		if !okC || !okP || !okT {
			continue
		}
		samples = append(samples, Sample{
			Closeness: c,
			Period:    p,
			Trend:     t,
			Target:    f.Frames[i],
			Slot:      f.Slots[i],
		})
	}
	return samples, nil
}
