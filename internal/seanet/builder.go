package seanet

// towerEntry pairs a layer with its pipeline slot. The slot doubles as the
// checkpoint path segment ("model.<index>") during weight loading, so every
// appended unit, activations included, consumes one.
type towerEntry struct {
	index int
	layer Layer
}

// towerBuilder accumulates the ordered pipeline of one tower while the
// assembly loops track channel multipliers and norm budgets.
type towerBuilder struct {
	entries []towerEntry
	next    int
}

func (b *towerBuilder) add(layers ...Layer) {
	for _, l := range layers {
		b.entries = append(b.entries, towerEntry{index: b.next, layer: l})
		b.next++
	}
}

func powInt64(base, exp int64) int64 {
	out := int64(1)
	for range exp {
		out *= base
	}

	return out
}
