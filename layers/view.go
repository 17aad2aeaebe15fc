package layers

// ViewName identifies one of the three temporal lookback views.
type ViewName string

const (
	Closeness ViewName = "closeness"
	Period    ViewName = "period"
	Trend     ViewName = "trend"
)

// AllViews lists the views in the order they appear as model inputs.
var AllViews = []ViewName{Closeness, Period, Trend}

// ViewConfig describes the per-sample shape of one view: Length snapshots
// of a Channels x Height x Width grid, stacked along the channel axis.
type ViewConfig struct {
	Length   int `json:"length" yaml:"length"`
	Channels int `json:"channels" yaml:"channels"`
	Height   int `json:"height" yaml:"height"`
	Width    int `json:"width" yaml:"width"`
}

// InputShape is [Length*Channels, Height, Width].
func (vc *ViewConfig) InputShape() []int {
	return []int{vc.Length * vc.Channels, vc.Height, vc.Width}
}

// ViewConfigs maps a view to its shape, or to nil when the view is absent.
type ViewConfigs map[ViewName]*ViewConfig

// NewViewConfig returns nil for a zero length, which marks the view absent.
func NewViewConfig(length, channels, height, width int) *ViewConfig {
	if length <= 0 {
		return nil
	}
	return &ViewConfig{Length: length, Channels: channels, Height: height, Width: width}
}

// Active returns the present views in canonical order.
func (vc ViewConfigs) Active() []ViewName {
	var out []ViewName
	for _, name := range AllViews {
		if cfg, ok := vc[name]; ok && cfg != nil && cfg.Length > 0 {
			out = append(out, name)
		}
	}
	return out
}
