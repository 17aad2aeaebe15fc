package checkpoints

import (
	"encoding/json"
	"math"
	"sort"
)

// History holds per-epoch metrics by name, e.g. "loss", "rmse",
// "val_loss", "val_rmse". Non-finite values are written as null.
type History map[string][]float64

// Append adds one epoch of logs. Metrics not present in logs are left
// untouched.
func (h History) Append(logs map[string]float64) {
	for k, v := range logs {
		h[k] = append(h[k], v)
	}
}

// Epochs is the length of the longest series.
func (h History) Epochs() int {
	n := 0
	for _, s := range h {
		if len(s) > n {
			n = len(s)
		}
	}
	return n
}

// Keys returns the metric names in sorted order.
func (h History) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (h History) MarshalJSON() ([]byte, error) {
	out := make(map[string][]*float64, len(h))
	for k, series := range h {
		vals := make([]*float64, len(series))
		for i, v := range series {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			v := v
			vals[i] = &v
		}
		out[k] = vals
	}
	return json.Marshal(out)
}

func (h *History) UnmarshalJSON(data []byte) error {
	var in map[string][]*float64
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*h = make(History, len(in))
	for k, vals := range in {
		series := make([]float64, len(vals))
		for i, v := range vals {
			if v == nil {
				series[i] = math.NaN()
				continue
			}
			series[i] = *v
		}
		(*h)[k] = series
	}
	return nil
}
