package training

// ---------------------------------------------------------------------------
// DepList: append-only dependency sets
// ---------------------------------------------------------------------------

// DepList records an N-to-M dependency relation, possibly cyclic.
// It has set semantics (no duplicate edges) and is append-only: edges are
// discovered incrementally while the program runs and are never removed.
// All mutation happens under the registry lock.
type DepList[E comparable] struct {
	deps []E
}

// Len returns the number of recorded dependencies.
func (dl *DepList[E]) Len() int { return len(dl.deps) }

// At returns the i-th dependency in discovery order.
func (dl *DepList[E]) At(i int) E { return dl.deps[i] }

// Contains reports whether dep was already recorded.
func (dl *DepList[E]) Contains(dep E) bool {
	for _, d := range dl.deps {
		if d == dep {
			return true
		}
	}
	return false
}

// AppendIfMissing adds dep unless it is already present.
// Returns true if the edge was new.
func (dl *DepList[E]) AppendIfMissing(dep E) bool {
	if dl.Contains(dep) {
		return false
	}
	if dl.deps == nil {
		dl.deps = make([]E, 0, 10)
	}
	dl.deps = append(dl.deps, dep)
	return true
}

// Each calls fn for every dependency in discovery order.
func (dl *DepList[E]) Each(fn func(E)) {
	for _, d := range dl.deps {
		fn(d)
	}
}
