// Package grid maps geographic coordinates onto the rectangular flow grid
// the model predicts over.
package grid

import (
	"fmt"
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the mean earth radius used for cell areas.
const EarthRadiusKm = 6371.0

// Spec is a Height x Width grid laid over a lat/lng rectangle. Row 0 is the
// southern edge and column 0 the western edge.
type Spec struct {
	Bounds s2.Rect
	Height int
	Width  int
}

// NewSpec builds a grid over [minLat, maxLat] x [minLng, maxLng].
func NewSpec(minLat, minLng, maxLat, maxLng float64, height, width int) (*Spec, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("grid size must be positive, got %dx%d", height, width)
	}
	if minLat >= maxLat || minLng >= maxLng {
		return nil, fmt.Errorf("empty bounds [%g,%g]x[%g,%g]", minLat, maxLat, minLng, maxLng)
	}
	lo := s2.LatLngFromDegrees(minLat, minLng)
	hi := s2.LatLngFromDegrees(maxLat, maxLng)
	if !lo.IsValid() || !hi.IsValid() {
		return nil, fmt.Errorf("bounds out of range")
	}
	return &Spec{
		Bounds: s2.RectFromLatLng(lo).AddPoint(hi),
		Height: height,
		Width:  width,
	}, nil
}

func (s *Spec) cellSize() (lat, lng s1.Angle) {
	return s.Bounds.Size().Lat / s1.Angle(s.Height), s.Bounds.Size().Lng / s1.Angle(s.Width)
}

// CellOf returns the cell containing (lat, lng). ok is false for points
// outside the grid. Points on the northern or eastern edge belong to the
// last row or column.
func (s *Spec) CellOf(lat, lng float64) (row, col int, ok bool) {
	p := s2.LatLngFromDegrees(lat, lng)
	if !s.Bounds.ContainsLatLng(p) {
		return 0, 0, false
	}
	dLat, dLng := s.cellSize()
	row = int((p.Lat - s.Bounds.Lo().Lat) / dLat)
	col = int((p.Lng - s.Bounds.Lo().Lng) / dLng)
	if row >= s.Height {
		row = s.Height - 1
	}
	if col >= s.Width {
		col = s.Width - 1
	}
	return row, col, true
}

// Index flattens (row, col) in row-major order.
func (s *Spec) Index(row, col int) int { return row*s.Width + col }

// CellCenter returns the center of a cell.
func (s *Spec) CellCenter(row, col int) s2.LatLng {
	dLat, dLng := s.cellSize()
	lo := s.Bounds.Lo()
	return s2.LatLng{
		Lat: lo.Lat + dLat*s1.Angle(float64(row)+0.5),
		Lng: lo.Lng + dLng*s1.Angle(float64(col)+0.5),
	}
}

// CellArea returns the area of a cell in square kilometers.
func (s *Spec) CellArea(row, col int) float64 {
	dLat, dLng := s.cellSize()
	lo := s.Bounds.Lo()
	cell := s2.RectFromLatLng(s2.LatLng{Lat: lo.Lat + dLat*s1.Angle(row), Lng: lo.Lng + dLng*s1.Angle(col)}).
		AddPoint(s2.LatLng{Lat: lo.Lat + dLat*s1.Angle(row+1), Lng: lo.Lng + dLng*s1.Angle(col+1)})
	return cell.Area() * EarthRadiusKm * EarthRadiusKm
}

// ActiveAreas counts the cells holding at least one of the given stations.
// Stations outside the grid are ignored.
func (s *Spec) ActiveAreas(stations []s2.LatLng) int {
	seen := make(map[int]struct{})
	for _, st := range stations {
		row, col, ok := s.CellOf(st.Lat.Degrees(), st.Lng.Degrees())
		if ok {
			seen[s.Index(row, col)] = struct{}{}
		}
	}
	return len(seen)
}

// AreaFactor corrects an rmse averaged over every cell of a height x width
// grid to one averaged over the active cells only.
func AreaFactor(height, width, activeAreas int) float64 {
	if activeAreas <= 0 {
		return 1
	}
	return math.Sqrt(float64(height*width) / float64(activeAreas))
}
