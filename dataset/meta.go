package dataset

// MetaDim is the size of the external feature vector: a day-of-week one-hot
// followed by a weekday flag.
const MetaDim = 8

// MetaFeatures encodes the day of week of each slot. Monday is index 0;
// the last entry is 1 on Monday to Friday.
func MetaFeatures(slots []Slot) [][]float32 {
	out := make([][]float32, len(slots))
	for i, s := range slots {
		v := make([]float32, MetaDim)
		day := (int(s.Date.Weekday()) + 6) % 7
		v[day] = 1
		if day < 5 {
			v[7] = 1
		}
		out[i] = v
	}
	return out
}
