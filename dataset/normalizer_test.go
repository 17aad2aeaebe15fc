package dataset

import (
	"math"
	"path/filepath"
	"testing"
	"time"
)

func TestMinMaxNormalizer(t *testing.T) {
	n, err := FitMinMax([][]float32{{0, 5}, {10, 2}})
	if err != nil {
		t.Fatalf("FitMinMax failed: %v", err)
	}
	got := n.Transform([]float32{0, 5, 10, 20})
	want := []float32{-1, 0, 1, 3}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("Transform[%d] = %f, want %f", i, got[i], want[i])
		}
	}
	back := n.InverseTransform(got)
	if math.Abs(float64(back[1]-5)) > 1e-5 {
		t.Errorf("InverseTransform did not round trip: %v", back)
	}
	if n.Scale() != 5 {
		t.Errorf("Expected scale 5, got %f", n.Scale())
	}

	path := filepath.Join(t.TempDir(), "preprocessing.json")
	if err := n.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := LoadNormalizer(path)
	if err != nil {
		t.Fatalf("LoadNormalizer failed: %v", err)
	}
	if *loaded != *n {
		t.Errorf("Expected %+v, got %+v", n, loaded)
	}
}

func TestFitMinMaxErrors(t *testing.T) {
	if _, err := FitMinMax(nil); err == nil {
		t.Error("Expected empty input to fail")
	}
	if _, err := FitMinMax([][]float32{{3, 3}}); err == nil {
		t.Error("Expected constant input to fail")
	}
}

func TestMetaFeatures(t *testing.T) {
	tuesday := Slot{Date: time.Date(2014, 4, 1, 0, 0, 0, 0, time.UTC), Index: 3}
	saturday := Slot{Date: time.Date(2014, 4, 5, 0, 0, 0, 0, time.UTC), Index: 1}
	sunday := Slot{Date: time.Date(2014, 4, 6, 0, 0, 0, 0, time.UTC), Index: 1}
	meta := MetaFeatures([]Slot{tuesday, saturday, sunday})

	tests := []struct {
		name    string
		vec     []float32
		day     int
		weekday float32
	}{
		{"tuesday", meta[0], 1, 1},
		{"saturday", meta[1], 5, 0},
		{"sunday", meta[2], 6, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if len(test.vec) != MetaDim {
				t.Fatalf("Expected %d features, got %d", MetaDim, len(test.vec))
			}
			for i := 0; i < 7; i++ {
				want := float32(0)
				if i == test.day {
					want = 1
				}
				if test.vec[i] != want {
					t.Errorf("One-hot[%d] = %f, want %f", i, test.vec[i], want)
				}
			}
			if test.vec[7] != test.weekday {
				t.Errorf("Weekday flag = %f, want %f", test.vec[7], test.weekday)
			}
		})
	}
}
