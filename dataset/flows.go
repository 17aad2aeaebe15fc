package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"
)

// ErrOutsideGrid is returned for flow records that do not fit the grid.
var ErrOutsideGrid = errors.New("record outside grid")

// Flows is a chronologically ordered series of flow grids. Every frame has
// Channels*Height*Width values in (channel, row, col) order.
type Flows struct {
	T        int
	Channels int
	Height   int
	Width    int
	Slots    []Slot
	Frames   [][]float32
}

// NewFlows returns an empty series for the given grid.
func NewFlows(t, channels, height, width int) (*Flows, error) {
	if t <= 0 || channels <= 0 || height <= 0 || width <= 0 {
		return nil, fmt.Errorf("invalid flow grid T=%d %dx%dx%d", t, channels, height, width)
	}
	return &Flows{T: t, Channels: channels, Height: height, Width: width}, nil
}

func (f *Flows) Len() int { return len(f.Slots) }

// FrameSize is the number of values in one frame.
func (f *Flows) FrameSize() int { return f.Channels * f.Height * f.Width }

func (f *Flows) sort() {
	idx := make([]int, len(f.Slots))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return f.Slots[idx[a]].Time(f.T).Before(f.Slots[idx[b]].Time(f.T))
	})
	slots := make([]Slot, len(idx))
	frames := make([][]float32, len(idx))
	for i, j := range idx {
		slots[i], frames[i] = f.Slots[j], f.Frames[j]
	}
	f.Slots, f.Frames = slots, frames
}

// RemoveIncompleteDays drops every day that does not have all T slots and
// returns the dropped days.
func (f *Flows) RemoveIncompleteDays() []string {
	counts := make(map[time.Time]int)
	for _, s := range f.Slots {
		counts[s.Date]++
	}

	var dropped []string
	seen := make(map[time.Time]bool)
	slots := f.Slots[:0]
	frames := f.Frames[:0]
	for i, s := range f.Slots {
		if counts[s.Date] != f.T {
			if !seen[s.Date] {
				seen[s.Date] = true
				dropped = append(dropped, s.Day())
			}
			continue
		}
		slots = append(slots, s)
		frames = append(frames, f.Frames[i])
	}
	f.Slots, f.Frames = slots, frames
	return dropped
}

// Timestamps returns the YYYYMMDDSS form of every slot.
func (f *Flows) Timestamps() []string {
	out := make([]string, len(f.Slots))
	for i, s := range f.Slots {
		out[i] = s.String()
	}
	return out
}

// ReadFlowsCSV reads flow records with the header
//
//	timestamp,flow,row,col,count
//
// Every timestamp that appears becomes a frame; cells without a record
// are zero. Counts for the same cell are summed.
func ReadFlowsCSV(r io.Reader, t, channels, height, width int) (*Flows, error) {
	f, err := NewFlows(t, channels, height, width)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5
	cr.ReuseRecord = true
	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[Slot]int)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		slot, err := ParseSlot(rec[0], t)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var pos [3]int
		for i, field := range rec[1:4] {
			if pos[i], err = strconv.Atoi(field); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		flow, row, col := pos[0], pos[1], pos[2]
		if flow < 0 || flow >= channels || row < 0 || row >= height || col < 0 || col >= width {
			return nil, fmt.Errorf("line %d: %w: flow %d at (%d,%d)", line, ErrOutsideGrid, flow, row, col)
		}
		count, err := strconv.ParseFloat(rec[4], 64)
		if err != nil || count < 0 || math.IsInf(count, 0) || math.IsNaN(count) {
			return nil, fmt.Errorf("line %d: invalid count %q", line, rec[4])
		}

		i, ok := index[slot]
		if !ok {
			i = len(f.Slots)
			index[slot] = i
			f.Slots = append(f.Slots, slot)
			f.Frames = append(f.Frames, make([]float32, f.FrameSize()))
		}
		f.Frames[i][(flow*height+row)*width+col] += float32(count)
	}

	f.sort()
	return f, nil
}
