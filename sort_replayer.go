package pipeline

import (
	"cmp"
	"slices"
)

// SortReplayer records the permutation produced by sorting a slice of
// Ordered values, so that a transformation computed over the sorted order
// can be "replayed" back into the original, pre-sort order (spec §4.4 step
// 4, the aggregate action's SortReplayer).
type SortReplayer[T cmp.Ordered] struct {
	// order[i] is the index into the original (unsorted) slice that ended
	// up at position i of the sorted slice: sorted[i] == original[order[i]].
	order []int
}

// SortWithReplayer stably sorts a copy of unsorted using T's natural order
// and returns both the sorted slice and the SortReplayer needed to restore
// the original arrival order later.
func SortWithReplayer[T cmp.Ordered](unsorted []T) ([]T, *SortReplayer[T]) {
	order := make([]int, len(unsorted))
	for i := range order {
		order[i] = i
	}
	// Stable sort on the index permutation, comparing through the backing
	// values, so equal keys keep their original relative (arrival) order —
	// spec §4.4's "equal keys delivered in original arrival order".
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(unsorted[a], unsorted[b])
	})

	sorted := make([]T, len(unsorted))
	for i, srcIdx := range order {
		sorted[i] = unsorted[srcIdx]
	}
	return sorted, &SortReplayer[T]{order: order}
}

// Reverse maps a slice aligned with the sorted order back to alignment with
// the original (pre-sort) order: if sortedOutputs[i] corresponds to
// sorted[i], Reverse(sortedOutputs)[order[i]] == sortedOutputs[i].
func (r *SortReplayer[T]) Reverse(sortedOutputs []T) []T {
	original := make([]T, len(sortedOutputs))
	for i, srcIdx := range r.order {
		original[srcIdx] = sortedOutputs[i]
	}
	return original
}
