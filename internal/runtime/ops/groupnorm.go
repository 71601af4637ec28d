package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-seanet/internal/runtime/tensor"
)

// GroupNorm normalizes x over channel groups.
// x: [batch, channels, length]; weight and bias are optional per-channel
// affine parameters of shape [channels].
//
// Statistics are computed per (batch, group) over channels*length/groups
// elements with the population variance, matching the usual GroupNorm
// definition.
func GroupNorm(x, weight, bias *tensor.Tensor, groups int64, eps float64) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("ops: groupnorm requires non-nil input")
	}

	if groups <= 0 {
		return nil, errors.New("ops: groupnorm groups must be > 0")
	}

	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("ops: groupnorm expects input rank 3, got %v", shape)
	}

	batch, channels, length := shape[0], shape[1], shape[2]
	if channels%groups != 0 {
		return nil, fmt.Errorf("ops: groupnorm channels %d not divisible by groups %d", channels, groups)
	}

	var weightData, biasData []float32

	if weight != nil {
		wShape := weight.Shape()
		if len(wShape) != 1 || wShape[0] != channels {
			return nil, fmt.Errorf("ops: groupnorm weight shape %v does not match channels %d", wShape, channels)
		}

		weightData = weight.RawData()
	}

	if bias != nil {
		bShape := bias.Shape()
		if len(bShape) != 1 || bShape[0] != channels {
			return nil, fmt.Errorf("ops: groupnorm bias shape %v does not match channels %d", bShape, channels)
		}

		biasData = bias.RawData()
	}

	out := x.Clone()
	data := out.RawData()

	chPerGroup := channels / groups
	groupSpan := int(chPerGroup * length)
	lenI := int(length)

	for b := range batch {
		for g := range groups {
			base := int((b*channels+g*chPerGroup)*length)
			span := data[base : base+groupSpan]

			var mean float64
			for _, v := range span {
				mean += float64(v)
			}

			mean /= float64(groupSpan)
			var variance float64

			for _, v := range span {
				diff := float64(v) - mean
				variance += diff * diff
			}

			variance /= float64(groupSpan)
			inv := float32(1.0 / math.Sqrt(variance+eps))

			for c := range chPerGroup {
				ch := g*chPerGroup + c

				scale := inv
				shift := float32(-mean) * inv

				if weightData != nil {
					scale *= weightData[ch]
					shift *= weightData[ch]
				}

				if biasData != nil {
					shift += biasData[ch]
				}

				row := span[int(c)*lenI : (int(c)+1)*lenI]
				for i, v := range row {
					row[i] = v*scale + shift
				}
			}
		}
	}

	return out, nil
}
