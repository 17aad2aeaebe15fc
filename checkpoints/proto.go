package checkpoints

import (
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/tsawler/go-stflow/layers"
)

// Wire layout of a snapshot. Field numbers are stable; new fields get new
// numbers and unknown fields are skipped on load.
//
//	Snapshot        { 1 version, 2 framework, 3 created_at (Timestamp), 4 description,
//	                  5 tags (repeated), 6 model_spec (JSON bytes), 7 weights (repeated Tensor),
//	                  8 training_state, 9 optimizer_state }
//	Tensor          { 1 name, 2 shape (packed varint), 3 data (packed fixed32), 4 layer, 5 type }
//	TrainingState   { 1 stage, 2 epoch, 3 step, 4 learning_rate (fixed32), 5 monitor,
//	                  6 best_metric (fixed64), 7 total_steps }
//	OptimizerState  { 1 type, 2 parameters (JSON bytes), 3 state (repeated Tensor) }
const (
	fieldVersion protowire.Number = iota + 1
	fieldFramework
	fieldCreatedAt
	fieldDescription
	fieldTags
	fieldModelSpec
	fieldWeights
	fieldTrainingState
	fieldOptimizerState
)

// MarshalProto encodes a checkpoint in protobuf wire format.
func MarshalProto(c *Checkpoint) ([]byte, error) {
	var b []byte
	b = appendString(b, fieldVersion, c.Metadata.Version)
	b = appendString(b, fieldFramework, c.Metadata.Framework)

	ts, err := proto.Marshal(timestamppb.New(c.Metadata.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to encode timestamp: %v", err)
	}
	b = appendMessage(b, fieldCreatedAt, ts)
	b = appendString(b, fieldDescription, c.Metadata.Description)
	for _, tag := range c.Metadata.Tags {
		b = protowire.AppendTag(b, fieldTags, protowire.BytesType)
		b = protowire.AppendString(b, tag)
	}

	if c.ModelSpec != nil {
		spec, err := json.Marshal(c.ModelSpec)
		if err != nil {
			return nil, fmt.Errorf("failed to encode model spec: %v", err)
		}
		b = appendMessage(b, fieldModelSpec, spec)
	}

	for _, w := range c.Weights {
		b = appendMessage(b, fieldWeights, encodeTensor(w.Name, w.Shape, w.Data, w.Layer, w.Type))
	}

	b = appendMessage(b, fieldTrainingState, encodeTrainingState(c.TrainingState))

	if c.OptimizerState != nil {
		opt, err := encodeOptimizerState(c.OptimizerState)
		if err != nil {
			return nil, err
		}
		b = appendMessage(b, fieldOptimizerState, opt)
	}
	return b, nil
}

// UnmarshalProto decodes a checkpoint written by MarshalProto.
func UnmarshalProto(b []byte) (*Checkpoint, error) {
	c := &Checkpoint{TrainingState: TrainingState{BestMetric: math.Inf(1)}}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case fieldVersion:
			c.Metadata.Version = string(v)
		case fieldFramework:
			c.Metadata.Framework = string(v)
		case fieldCreatedAt:
			var ts timestamppb.Timestamp
			if err := proto.Unmarshal(v, &ts); err != nil {
				return fmt.Errorf("created_at: %v", err)
			}
			c.Metadata.CreatedAt = ts.AsTime()
		case fieldDescription:
			c.Metadata.Description = string(v)
		case fieldTags:
			c.Metadata.Tags = append(c.Metadata.Tags, string(v))
		case fieldModelSpec:
			var spec layers.ModelSpec
			if err := json.Unmarshal(v, &spec); err != nil {
				return fmt.Errorf("model spec: %v", err)
			}
			c.ModelSpec = &spec
		case fieldWeights:
			t, err := decodeTensor(v)
			if err != nil {
				return fmt.Errorf("weight: %v", err)
			}
			c.Weights = append(c.Weights, WeightTensor{Name: t.name, Shape: t.shape, Data: t.data, Layer: t.layer, Type: t.kind})
		case fieldTrainingState:
			ts, err := decodeTrainingState(v)
			if err != nil {
				return fmt.Errorf("training state: %v", err)
			}
			c.TrainingState = ts
		case fieldOptimizerState:
			opt, err := decodeOptimizerState(v)
			if err != nil {
				return fmt.Errorf("optimizer state: %v", err)
			}
			c.OptimizerState = opt
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}
	return c, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func encodeTensor(name string, shape []int, data []float32, layer, kind string) []byte {
	var b []byte
	b = appendString(b, 1, name)

	var dims []byte
	for _, d := range shape {
		dims = protowire.AppendVarint(dims, uint64(d))
	}
	b = appendMessage(b, 2, dims)

	values := make([]byte, 0, 4*len(data))
	for _, v := range data {
		values = protowire.AppendFixed32(values, math.Float32bits(v))
	}
	b = appendMessage(b, 3, values)

	b = appendString(b, 4, layer)
	b = appendString(b, 5, kind)
	return b
}

type wireTensor struct {
	name, layer, kind string
	shape             []int
	data              []float32
}

func decodeTensor(b []byte) (wireTensor, error) {
	var t wireTensor
	err := walk(b, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case 1:
			t.name = string(v)
		case 2:
			for len(v) > 0 {
				d, n := protowire.ConsumeVarint(v)
				if n < 0 {
					return protowire.ParseError(n)
				}
				t.shape = append(t.shape, int(d))
				v = v[n:]
			}
		case 3:
			if len(v)%4 != 0 {
				return fmt.Errorf("tensor data length %d is not a multiple of 4", len(v))
			}
			t.data = make([]float32, 0, len(v)/4)
			for len(v) > 0 {
				bits, n := protowire.ConsumeFixed32(v)
				if n < 0 {
					return protowire.ParseError(n)
				}
				t.data = append(t.data, math.Float32frombits(bits))
				v = v[n:]
			}
		case 4:
			t.layer = string(v)
		case 5:
			t.kind = string(v)
		}
		return nil
	})
	return t, err
}

func encodeTrainingState(ts TrainingState) []byte {
	var b []byte
	b = appendString(b, 1, ts.Stage)
	b = appendVarint(b, 2, uint64(ts.Epoch))
	b = appendVarint(b, 3, uint64(ts.Step))
	b = protowire.AppendTag(b, 4, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(ts.LearningRate))
	b = appendString(b, 5, ts.Monitor)
	b = protowire.AppendTag(b, 6, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(ts.BestMetric))
	b = appendVarint(b, 7, uint64(ts.TotalSteps))
	return b
}

func decodeTrainingState(b []byte) (TrainingState, error) {
	ts := TrainingState{BestMetric: math.Inf(1)}
	err := walk(b, func(num protowire.Number, _ protowire.Type, v []byte, scalar uint64) error {
		switch num {
		case 1:
			ts.Stage = string(v)
		case 2:
			ts.Epoch = int(scalar)
		case 3:
			ts.Step = int(scalar)
		case 4:
			ts.LearningRate = math.Float32frombits(uint32(scalar))
		case 5:
			ts.Monitor = string(v)
		case 6:
			ts.BestMetric = math.Float64frombits(scalar)
		case 7:
			ts.TotalSteps = int(scalar)
		}
		return nil
	})
	return ts, err
}

func encodeOptimizerState(s *OptimizerState) ([]byte, error) {
	var b []byte
	b = appendString(b, 1, s.Type)
	if len(s.Parameters) > 0 {
		params, err := json.Marshal(s.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to encode optimizer parameters: %v", err)
		}
		b = appendMessage(b, 2, params)
	}
	for _, t := range s.StateData {
		b = appendMessage(b, 3, encodeTensor(t.Name, t.Shape, t.Data, "", t.StateType))
	}
	return b, nil
}

func decodeOptimizerState(b []byte) (*OptimizerState, error) {
	s := &OptimizerState{Parameters: map[string]interface{}{}}
	err := walk(b, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case 1:
			s.Type = string(v)
		case 2:
			if err := json.Unmarshal(v, &s.Parameters); err != nil {
				return fmt.Errorf("parameters: %v", err)
			}
		case 3:
			t, err := decodeTensor(v)
			if err != nil {
				return err
			}
			s.StateData = append(s.StateData, OptimizerTensor{Name: t.name, Shape: t.shape, Data: t.data, StateType: t.kind})
		}
		return nil
	})
	return s, err
}

// walk calls fn for every field in b. Length-delimited values arrive in v;
// varint and fixed-width values arrive in scalar.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, scalar uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var v []byte
		var scalar uint64
		switch typ {
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		case protowire.VarintType:
			scalar, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var x uint32
			x, n = protowire.ConsumeFixed32(b)
			scalar = uint64(x)
		case protowire.Fixed64Type:
			scalar, n = protowire.ConsumeFixed64(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := fn(num, typ, v, scalar); err != nil {
			return err
		}
	}
	return nil
}
