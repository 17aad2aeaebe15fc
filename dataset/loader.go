package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/tsawler/go-stflow/config"
	"github.com/tsawler/go-stflow/grid"
	"github.com/tsawler/go-stflow/tensor"
)

// Raw data file names under DATAPATH/<dataset>.
const (
	FlowsFile = "flows.csv"
	TripsFile = "trips.csv"
)

// Options selects the dataset and how it is windowed and split.
type Options struct {
	Dataset          string
	T                int
	Flows            int
	Closeness        int
	Period           int
	Trend            int
	LenTest          int
	NormalizationKey string
	Meta             bool
	Height           int
	Width            int

	// Bounds places the grid when flows are rasterized from trips.
	Bounds *config.Bounds
}

// OptionsFrom derives loader options from an experiment.
func OptionsFrom(exp config.Experiment) Options {
	return Options{
		Dataset:          exp.Dataset,
		T:                exp.T,
		Flows:            exp.Flows,
		Closeness:        exp.Closeness,
		Period:           exp.Period,
		Trend:            exp.ActiveTrend(),
		LenTest:          exp.LenTest(),
		NormalizationKey: exp.Normalization,
		Meta:             exp.Meta,
		Height:           exp.Height,
		Width:            exp.Width,
		Bounds:           exp.Bounds,
	}
}

// Result is a normalized, windowed and split dataset. X holds one tensor
// per active view in closeness, period, trend order, followed by the meta
// features when enabled.
type Result struct {
	XTrain []*tensor.Tensor
	YTrain *tensor.Tensor
	XTest  []*tensor.Tensor
	YTest  *tensor.Tensor

	ExternalDim     int
	TimestampsTrain []string
	TimestampsTest  []string
	Normalizer      *MinMaxNormalizer

	// ActiveAreas is the number of grid cells with a station, known only
	// when flows were rasterized from trips.
	ActiveAreas int
}

// TestDays lists the day of every T-th test sample.
func (r *Result) TestDays(t int) []string {
	var days []string
	for i := 0; i < len(r.TimestampsTest); i += t {
		days = append(days, r.TimestampsTest[i][:8])
	}
	return days
}

// Load reads DATAPATH/<dataset>, drops incomplete days, normalizes with a
// min-max fit on the frames before the last LenTest, windows the series
// and splits off the last LenTest samples as the test set. The fitted
// normalizer is saved as <results dir>/<normalization key>.
func Load(cfg *config.Config, opts Options) (*Result, error) {
	if opts.LenTest <= 0 {
		return nil, fmt.Errorf("test length must be positive, got %d", opts.LenTest)
	}
	flows, areas, err := readFlows(cfg, opts)
	if err != nil {
		return nil, err
	}

	if dropped := flows.RemoveIncompleteDays(); len(dropped) > 0 {
		log.Printf("removed %d incomplete days: %v", len(dropped), dropped)
	}
	if flows.Len() <= opts.LenTest {
		return nil, fmt.Errorf("%d frames leave nothing to train on with %d test frames", flows.Len(), opts.LenTest)
	}

	norm, err := FitMinMax(flows.Frames[:flows.Len()-opts.LenTest])
	if err != nil {
		return nil, err
	}
	if opts.NormalizationKey != "" {
		if err := os.MkdirAll(cfg.ResultsDir, 0755); err != nil {
			return nil, err
		}
		if err := norm.Save(filepath.Join(cfg.ResultsDir, opts.NormalizationKey)); err != nil {
			return nil, err
		}
	}
	for i, frame := range flows.Frames {
		flows.Frames[i] = norm.Transform(frame)
	}

	w := Windowing{T: opts.T, Closeness: opts.Closeness, Period: opts.Period, Trend: opts.Trend}
	samples, err := w.Build(flows)
	if err != nil {
		return nil, err
	}
	if len(samples) <= opts.LenTest {
		return nil, fmt.Errorf("%d samples leave nothing to train on with %d test samples", len(samples), opts.LenTest)
	}

	split := len(samples) - opts.LenTest
	res := &Result{Normalizer: norm, ActiveAreas: areas}
	if opts.Meta {
		res.ExternalDim = MetaDim
	}
	dims := []int{flows.Channels, flows.Height, flows.Width}
	if res.XTrain, res.YTrain, res.TimestampsTrain, err = assemble(samples[:split], w, dims, opts.Meta); err != nil {
		return nil, err
	}
	if res.XTest, res.YTest, res.TimestampsTest, err = assemble(samples[split:], w, dims, opts.Meta); err != nil {
		return nil, err
	}
	log.Printf("train: %d samples, test: %d samples, external dim %d", split, opts.LenTest, res.ExternalDim)
	return res, nil
}

func readFlows(cfg *config.Config, opts Options) (*Flows, int, error) {
	dir := filepath.Join(cfg.DataPath, opts.Dataset)

	file, err := os.Open(filepath.Join(dir, FlowsFile))
	if err == nil {
		defer file.Close()
		flows, err := ReadFlowsCSV(file, opts.T, opts.Flows, opts.Height, opts.Width)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", file.Name(), err)
		}
		return flows, 0, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, 0, err
	}

	file, err = os.Open(filepath.Join(dir, TripsFile))
	if err != nil {
		return nil, 0, fmt.Errorf("no %s or %s in %s: %w", FlowsFile, TripsFile, dir, err)
	}
	defer file.Close()
	if opts.Bounds == nil {
		return nil, 0, fmt.Errorf("grid bounds are required to rasterize %s", file.Name())
	}
	b := opts.Bounds
	spec, err := grid.NewSpec(b.MinLat, b.MinLng, b.MaxLat, b.MaxLng, opts.Height, opts.Width)
	if err != nil {
		return nil, 0, err
	}
	trips, err := ReadTripsCSV(file)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", file.Name(), err)
	}
	flows, skipped, err := Rasterize(trips, spec, opts.T, opts.Flows)
	if err != nil {
		return nil, 0, err
	}
	if skipped > 0 {
		log.Printf("%d trip endpoints fell outside the grid", skipped)
	}
	return flows, spec.ActiveAreas(Stations(trips)), nil
}

func assemble(samples []Sample, w Windowing, dims []int, meta bool) ([]*tensor.Tensor, *tensor.Tensor, []string, error) {
	n := len(samples)
	channels, height, width := dims[0], dims[1], dims[2]

	var xs []*tensor.Tensor
	views := []struct {
		length int
		get    func(Sample) []float32
	}{
		{w.Closeness, func(s Sample) []float32 { return s.Closeness }},
		{w.Period, func(s Sample) []float32 { return s.Period }},
		{w.Trend, func(s Sample) []float32 { return s.Trend }},
	}
	for _, v := range views {
		if v.length == 0 {
			continue
		}
		data := make([]float32, 0, n*v.length*channels*height*width)
		for _, s := range samples {
			data = append(data, v.get(s)...)
		}
		x, err := tensor.NewTensor([]int{n, v.length * channels, height, width}, data)
		if err != nil {
			return nil, nil, nil, err
		}
		xs = append(xs, x)
	}

	slots := make([]Slot, n)
	timestamps := make([]string, n)
	target := make([]float32, 0, n*channels*height*width)
	for i, s := range samples {
		slots[i] = s.Slot
		timestamps[i] = s.Slot.String()
		target = append(target, s.Target...)
	}

	if meta {
		data := make([]float32, 0, n*MetaDim)
		for _, v := range MetaFeatures(slots) {
			data = append(data, v...)
		}
		x, err := tensor.NewTensor([]int{n, MetaDim}, data)
		if err != nil {
			return nil, nil, nil, err
		}
		xs = append(xs, x)
	}

	y, err := tensor.NewTensor([]int{n, channels, height, width}, target)
	if err != nil {
		return nil, nil, nil, err
	}
	return xs, y, timestamps, nil
}
