package optimizer

import (
	"fmt"

	"github.com/tsawler/go-stflow/checkpoints"
)

// Common helper functions for optimizer state management

// extractBufferState copies one state buffer into a checkpoint tensor
func extractBufferState(buffer []float32, name string, stateType string) checkpoints.OptimizerTensor {
	data := make([]float32, len(buffer))
	copy(data, buffer)
	return checkpoints.OptimizerTensor{
		Name:      name,
		Shape:     []int{len(data)},
		Data:      data,
		StateType: stateType,
	}
}

// extractBuffers names each buffer "<stateType>_<index>"
func extractBuffers(buffers [][]float32, stateType string) []checkpoints.OptimizerTensor {
	out := make([]checkpoints.OptimizerTensor, 0, len(buffers))
	for i, buf := range buffers {
		out = append(out, extractBufferState(buf, fmt.Sprintf("%s_%d", stateType, i), stateType))
	}
	return out
}

// restoreBufferState copies saved data into an existing state buffer
func restoreBufferState(buffer []float32, data []float32, name string) error {
	if len(data) != len(buffer) {
		return fmt.Errorf("data size mismatch for %s: expected %d elements, got %d",
			name, len(buffer), len(data))
	}
	copy(buffer, data)
	return nil
}

// restoreBuffers routes every state tensor to the buffer set registered for
// its state type.
func restoreBuffers(state *OptimizerState, targets map[string][][]float32) error {
	for _, t := range state.StateData {
		buffers, ok := targets[t.StateType]
		if !ok {
			return fmt.Errorf("unknown state type %q in %s", t.StateType, t.Name)
		}
		idx := extractBufferIndex(t.Name)
		if idx < 0 || idx >= len(buffers) {
			return fmt.Errorf("invalid buffer index in tensor name: %s", t.Name)
		}
		if err := restoreBufferState(buffers[idx], t.Data, t.Name); err != nil {
			return err
		}
	}
	return nil
}

// extractFloat32Param safely extracts a float32 parameter from the state map
func extractFloat32Param(params map[string]interface{}, key string, defaultValue float32) float32 {
	switch val := params[key].(type) {
	case float64:
		return float32(val)
	case float32:
		return val
	}
	return defaultValue
}

// extractBoolParam safely extracts a bool parameter from the state map
func extractBoolParam(params map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := params[key].(bool); ok {
		return val
	}
	return defaultValue
}

// extractUint64Param accepts both the in-memory uint64 and the float64 a
// JSON round trip produces.
func extractUint64Param(params map[string]interface{}, key string, defaultValue uint64) uint64 {
	switch val := params[key].(type) {
	case float64:
		return uint64(val)
	case uint64:
		return val
	case int:
		return uint64(val)
	}
	return defaultValue
}
