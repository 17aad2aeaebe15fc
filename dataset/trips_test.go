package dataset

import (
	"strings"
	"testing"

	"github.com/tsawler/go-stflow/grid"
)

const tripsInput = `started_at,ended_at,start_lat,start_lng,end_lat,end_lng
2014-04-01 00:10:00,2014-04-01 00:40:00,40.01,-74.99,40.99,-74.01
2014-04-01 00:20:00,2014-04-01 01:05:00,40.01,-74.99,40.01,-74.99
2014-04-01 23:50:00,2014-04-02 00:10:00,40.99,-74.01,45.00,-74.50
`

func TestReadTripsCSV(t *testing.T) {
	trips, err := ReadTripsCSV(strings.NewReader(tripsInput))
	if err != nil {
		t.Fatalf("ReadTripsCSV failed: %v", err)
	}
	if len(trips) != 3 {
		t.Fatalf("Expected 3 trips, got %d", len(trips))
	}
	if trips[1].End.Hour() != 1 || trips[0].StartPos.Lat.Degrees() < 40 {
		t.Errorf("Unexpected trip %+v", trips[1])
	}

	if _, err := ReadTripsCSV(strings.NewReader("a,b,c,d,e,f\nnot a time,x,0,0,0,0\n")); err == nil {
		t.Error("Expected bad timestamp to fail")
	}
	if _, err := ReadTripsCSV(strings.NewReader("a,b,c,d,e,f\n2014-04-01 00:10:00,2014-04-01 00:40:00,95,0,0,0\n")); err == nil {
		t.Error("Expected out-of-range latitude to fail")
	}
}

func TestRasterize(t *testing.T) {
	trips, err := ReadTripsCSV(strings.NewReader(tripsInput))
	if err != nil {
		t.Fatalf("ReadTripsCSV failed: %v", err)
	}
	spec, err := grid.NewSpec(40, -75, 41, -74, 2, 2)
	if err != nil {
		t.Fatalf("NewSpec failed: %v", err)
	}

	f, skipped, err := Rasterize(trips, spec, 24, 2)
	if err != nil {
		t.Fatalf("Rasterize failed: %v", err)
	}
	if f.Len() != 48 {
		t.Fatalf("Expected two full days of frames, got %d", f.Len())
	}
	if skipped != 1 {
		t.Errorf("Expected one endpoint outside the grid, got %d", skipped)
	}

	// Two trips start in the south west cell during the first hour.
	if got := f.Frames[0][0]; got != 2 {
		t.Errorf("Expected new-flow 2 at 00:00 cell (0,0), got %f", got)
	}
	// End-flow channel starts at offset 4 in a 2x2x2 frame.
	if got := f.Frames[0][4+3]; got != 1 {
		t.Errorf("Expected end-flow 1 at 00:00 cell (1,1), got %f", got)
	}
	if got := f.Frames[1][4]; got != 1 {
		t.Errorf("Expected end-flow 1 at 01:00 cell (0,0), got %f", got)
	}
	if got := f.Frames[23][3]; got != 1 {
		t.Errorf("Expected new-flow 1 at 23:00 cell (1,1), got %f", got)
	}

	if got := spec.ActiveAreas(Stations(trips)); got != 2 {
		t.Errorf("Expected 2 active areas, got %d", got)
	}

	if _, _, err := Rasterize(trips, spec, 24, 3); err == nil {
		t.Error("Expected three flows to be rejected")
	}
}
