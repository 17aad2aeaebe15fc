package training

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/tsawler/go-stflow/layers"
)

// ProgressBar provides PyTorch-style training progress visualization
type ProgressBar struct {
	out         io.Writer
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	showRate    bool
	showETA     bool
	metrics     map[string]float64
}

// NewProgressBar creates a new progress bar rendering to out
func NewProgressBar(out io.Writer, description string, total int) *ProgressBar {
	return &ProgressBar{
		out:         out,
		description: description,
		total:       total,
		startTime:   time.Now(),
		width:       40,
		showRate:    true,
		showETA:     true,
		metrics:     make(map[string]float64),
	}
}

// Update advances the progress bar
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.current = step
	pb.metrics = metrics
	pb.render()
}

// Finish completes the progress bar
func (pb *ProgressBar) Finish() {
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.out)
}

// render draws the progress bar
func (pb *ProgressBar) render() {
	if pb.out == io.Discard {
		return
	}

	percentage := 1.0
	if pb.total > 0 {
		percentage = float64(pb.current) / float64(pb.total)
	}
	if percentage > 1.0 {
		percentage = 1.0
	}

	filled := int(percentage * float64(pb.width))
	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	var eta time.Duration
	var rate float64
	if pb.current > 0 {
		rate = float64(pb.current) / elapsed.Seconds()
		if percentage > 0 {
			eta = time.Duration(float64(elapsed)/percentage) - elapsed
		}
	}

	line := fmt.Sprintf("\r%s: %3.0f%%|%s| %d/%d", pb.description, percentage*100, bar, pb.current, pb.total)

	if pb.showETA && eta > 0 {
		line += fmt.Sprintf(" [%s<%s", formatDuration(elapsed), formatDuration(eta))
	} else {
		line += fmt.Sprintf(" [%s<00:00", formatDuration(elapsed))
	}

	if pb.showRate && rate > 0 {
		line += fmt.Sprintf(", %.2fbatch/s", rate)
	}

	keys := make([]string, 0, len(pb.metrics))
	for k := range pb.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line += fmt.Sprintf(", %s=%.4f", k, pb.metrics[k])
	}
	line += "]"

	fmt.Fprint(pb.out, line)
}

// formatDuration formats duration as MM:SS
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// ModelArchitecturePrinter prints PyTorch-style model architecture
type ModelArchitecturePrinter struct {
	modelName string
	out       io.Writer
}

// NewModelArchitecturePrinter creates a new model architecture printer
func NewModelArchitecturePrinter(modelName string, out io.Writer) *ModelArchitecturePrinter {
	return &ModelArchitecturePrinter{
		modelName: modelName,
		out:       out,
	}
}

// PrintArchitecture prints the model architecture grouped by branch
func (p *ModelArchitecturePrinter) PrintArchitecture(modelSpec *layers.ModelSpec) {
	fmt.Fprintf(p.out, "Model Architecture:\n")
	fmt.Fprintf(p.out, "%s(\n", p.modelName)

	for _, in := range modelSpec.Inputs {
		fmt.Fprintf(p.out, "  (%s): Input(shape=%v)\n", in.Name, in.Shape)
	}
	for _, layer := range modelSpec.Layers {
		fmt.Fprintf(p.out, "  %s\n", p.formatLayer(layer))
	}

	fmt.Fprintf(p.out, ")\n\n")

	fmt.Fprintf(p.out, "Total parameters: %s\n", formatParameterCount(modelSpec.TotalParameters))
	fmt.Fprintf(p.out, "Input size (MB): %.3f\n", calculateInputSize(modelSpec))
	fmt.Fprintf(p.out, "Params size (MB): %.3f\n\n", float64(modelSpec.TotalParameters*4)/1024/1024)
}

// formatLayer formats a single layer for display
func (p *ModelArchitecturePrinter) formatLayer(layer layers.LayerSpec) string {
	switch layer.Type {
	case layers.Conv2D:
		return fmt.Sprintf("(%s): Conv2d(%v, %v, kernel_size=(%v, %v), padding=(%v, %v), bias=%v)",
			layer.Name,
			layer.Parameters["input_channels"], layer.Parameters["output_channels"],
			layer.Parameters["kernel_size"], layer.Parameters["kernel_size"],
			layer.Parameters["padding"], layer.Parameters["padding"],
			layer.Parameters["use_bias"])
	case layers.ResidualUnit:
		return fmt.Sprintf("(%s): ResidualUnit(filters=%v, ReLU -> Conv2d -> ReLU -> Conv2d + skip)",
			layer.Name, layer.Parameters["filters"])
	case layers.Dense:
		return fmt.Sprintf("(%s): Linear(in_features=%v, out_features=%v, bias=%v)",
			layer.Name, layer.Parameters["input_size"], layer.Parameters["output_size"], layer.Parameters["use_bias"])
	case layers.Fusion:
		return fmt.Sprintf("(%s): Fusion(shape=%v)", layer.Name, layer.OutputShape)
	default:
		return fmt.Sprintf("(%s): %s()", layer.Name, layer.Type.String())
	}
}

// formatParameterCount formats parameter count with K/M suffixes
func formatParameterCount(count int64) string {
	if count >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(count)/1000000.0)
	} else if count >= 1000 {
		return fmt.Sprintf("%.1fK", float64(count)/1000.0)
	}
	return fmt.Sprintf("%d", count)
}

// calculateInputSize estimates the per-sample input size in MB
func calculateInputSize(modelSpec *layers.ModelSpec) float64 {
	size := 0
	for _, in := range modelSpec.Inputs {
		n := 1
		for _, dim := range in.Shape {
			n *= dim
		}
		size += n
	}
	return float64(size*4) / 1024 / 1024 // 4 bytes per float32
}
