package ops

import "fmt"

// Tolerance defines acceptable numeric drift versus reference outputs.
type Tolerance struct {
	Abs float64
	Rel float64
}

// KernelTolerances defines per-kernel parity targets used when validating the
// runtime against recorded reference tensors.
var KernelTolerances = map[string]Tolerance{
	"conv1d":          {Abs: 2e-4, Rel: 2e-4},
	"convtranspose1d": {Abs: 2e-4, Rel: 2e-4},
	"group_norm":      {Abs: 1e-4, Rel: 1e-4},
	"resblock":        {Abs: 2e-4, Rel: 2e-4},
	"encoder":         {Abs: 5e-4, Rel: 5e-4},
	"decoder":         {Abs: 5e-4, Rel: 5e-4},
}

func KernelTolerance(name string) (Tolerance, error) {
	t, ok := KernelTolerances[name]
	if !ok {
		return Tolerance{}, fmt.Errorf("ops: no tolerance configured for kernel %q", name)
	}

	return t, nil
}
