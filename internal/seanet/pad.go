package seanet

import (
	"errors"
	"fmt"

	"github.com/example/go-seanet/internal/runtime/tensor"
)

// PadMode selects how convolutions extend the signal past its edges.
type PadMode string

const (
	PadConstant  PadMode = "constant"
	PadReflect   PadMode = "reflect"
	PadReplicate PadMode = "replicate"
)

func (m PadMode) valid() bool {
	switch m {
	case PadConstant, PadReflect, PadReplicate:
		return true
	}

	return false
}

// pad1d pads the time axis of a [batch, channels, time] tensor. Reflect
// padding cannot reach past the signal edge, so inputs shorter than the
// larger pad are zero-extended before mirroring and the extension is cut
// back off the end, which keeps short first chunks working.
func pad1d(x *tensor.Tensor, left, right int64, mode PadMode) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("seanet: pad requires non-nil input")
	}

	if left < 0 || right < 0 {
		return nil, fmt.Errorf("seanet: negative padding (%d, %d)", left, right)
	}

	if !mode.valid() {
		return nil, fmt.Errorf("seanet: unknown pad mode %q", mode)
	}

	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("seanet: pad expects input rank 3, got %v", shape)
	}

	if left == 0 && right == 0 {
		return x, nil
	}

	batch, channels, length := shape[0], shape[1], shape[2]

	if mode == PadReplicate && length == 0 {
		return nil, errors.New("seanet: cannot replicate-pad an empty sequence")
	}

	extra := int64(0)
	if mode == PadReflect {
		if maxPad := max(left, right); length <= maxPad {
			extra = maxPad - length + 1
		}
	}

	ext := length + extra
	outLen := left + length + right

	out, err := tensor.Zeros([]int64{batch, channels, outLen})
	if err != nil {
		return nil, err
	}

	src := x.RawData()
	dst := out.RawData()

	for bc := range batch * channels {
		srcRow := src[bc*length : (bc+1)*length]
		dstRow := dst[bc*outLen : (bc+1)*outLen]

		copy(dstRow[left:], srcRow)

		// at reads the zero-extended signal.
		at := func(p int64) float32 {
			if p < length {
				return srcRow[p]
			}

			return 0
		}

		switch mode {
		case PadConstant:
			// Zeros are already in place.
		case PadReplicate:
			for i := range left {
				dstRow[i] = srcRow[0]
			}

			for i := left + length; i < outLen; i++ {
				dstRow[i] = srcRow[length-1]
			}
		case PadReflect:
			for i := range left {
				dstRow[i] = at(left - i)
			}

			for j := range right {
				p := length + j
				if p >= ext {
					p = 2*ext - 2 - p
				}

				dstRow[left+length+j] = at(p)
			}
		}
	}

	return out, nil
}

// unpad1d trims samples off both ends of the time axis.
func unpad1d(x *tensor.Tensor, left, right int64) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("seanet: unpad requires non-nil input")
	}

	if left < 0 || right < 0 {
		return nil, fmt.Errorf("seanet: negative trim (%d, %d)", left, right)
	}

	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("seanet: unpad expects input rank 3, got %v", shape)
	}

	if left+right > shape[2] {
		return nil, fmt.Errorf("seanet: cannot trim %d+%d samples from length %d", left, right, shape[2])
	}

	if left == 0 && right == 0 {
		return x, nil
	}

	return x.Narrow(2, left, shape[2]-left-right)
}
