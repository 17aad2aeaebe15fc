package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/golang/geo/s2"

	"github.com/tsawler/go-stflow/grid"
)

// TripTimeLayout is the timestamp layout of trip records.
const TripTimeLayout = "2006-01-02 15:04:05"

// Trip is one bike ride.
type Trip struct {
	Start    time.Time
	End      time.Time
	StartPos s2.LatLng
	EndPos   s2.LatLng
}

// ReadTripsCSV reads trip records with the header
//
//	started_at,ended_at,start_lat,start_lng,end_lat,end_lng
func ReadTripsCSV(r io.Reader) ([]Trip, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6
	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var trips []Trip
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var trip Trip
		if trip.Start, err = time.Parse(TripTimeLayout, rec[0]); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if trip.End, err = time.Parse(TripTimeLayout, rec[1]); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var coords [4]float64
		for i, field := range rec[2:] {
			if coords[i], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		trip.StartPos = s2.LatLngFromDegrees(coords[0], coords[1])
		trip.EndPos = s2.LatLngFromDegrees(coords[2], coords[3])
		if !trip.StartPos.IsValid() || !trip.EndPos.IsValid() {
			return nil, fmt.Errorf("line %d: coordinates out of range", line)
		}
		trips = append(trips, trip)
	}
	return trips, nil
}

// Rasterize counts trips into flow grids. Channel 0 is new-flow (trips
// starting in a cell during a slot) and channel 1, when channels is 2,
// end-flow. Every slot of every day between the first and the last trip
// gets a frame. Endpoints outside the grid are not counted; the number of
// such endpoints is returned.
func Rasterize(trips []Trip, spec *grid.Spec, t, channels int) (*Flows, int, error) {
	if channels != 1 && channels != 2 {
		return nil, 0, fmt.Errorf("trips rasterize to 1 or 2 flows, got %d", channels)
	}
	f, err := NewFlows(t, channels, spec.Height, spec.Width)
	if err != nil {
		return nil, 0, err
	}
	if len(trips) == 0 {
		return f, 0, nil
	}

	first, last := trips[0].Start, trips[0].Start
	for _, trip := range trips {
		for _, tm := range []time.Time{trip.Start, trip.End} {
			if tm.Before(first) {
				first = tm
			}
			if tm.After(last) {
				last = tm
			}
		}
	}
	day := SlotOf(first, t).Date
	end := SlotOf(last, t).Date
	index := make(map[Slot]int)
	for ; !day.After(end); day = day.AddDate(0, 0, 1) {
		for s := 1; s <= t; s++ {
			slot := Slot{Date: day, Index: s}
			index[slot] = len(f.Slots)
			f.Slots = append(f.Slots, slot)
			f.Frames = append(f.Frames, make([]float32, f.FrameSize()))
		}
	}

	skipped := 0
	count := func(flow int, tm time.Time, pos s2.LatLng) {
		row, col, ok := spec.CellOf(pos.Lat.Degrees(), pos.Lng.Degrees())
		if !ok {
			skipped++
			return
		}
		f.Frames[index[SlotOf(tm, t)]][(flow*spec.Height+row)*spec.Width+col]++
	}
	for _, trip := range trips {
		count(0, trip.Start, trip.StartPos)
		if channels == 2 {
			count(1, trip.End, trip.EndPos)
		}
	}
	return f, skipped, nil
}

// Stations returns the distinct trip endpoints.
func Stations(trips []Trip) []s2.LatLng {
	seen := make(map[s2.LatLng]bool)
	var out []s2.LatLng
	for _, trip := range trips {
		for _, p := range []s2.LatLng{trip.StartPos, trip.EndPos} {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
