package tensor

import (
	"errors"
	"fmt"
)

func shapeElemCount(shape []int64) (int, error) {
	total := int64(1)

	for _, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("tensor: negative dimension %d in shape %v", dim, shape)
		}

		total *= dim
	}

	if total > int64(^uint(0)>>1) {
		return 0, fmt.Errorf("tensor: shape %v element count overflows int", shape)
	}

	return int(total), nil
}

func normalizeDim(dim, rank int) (int, error) {
	if rank == 0 {
		return 0, errors.New("tensor: operation requires rank >= 1")
	}

	if dim < 0 {
		dim += rank
	}

	if dim < 0 || dim >= rank {
		return 0, fmt.Errorf("tensor: dimension %d out of range for rank %d", dim, rank)
	}

	return dim, nil
}
