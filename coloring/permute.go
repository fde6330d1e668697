package coloring

// Reorder permutes s in place so that s[i] becomes the old s[perm[i]].
// perm must be a permutation of [0, len(s)). Empty slices are left alone so
// optional per-constraint arrays can be passed unconditionally.
func Reorder[T any](s []T, perm []int) {
	if len(s) == 0 {
		return
	}
	tmp := make([]T, len(perm))
	for i, p := range perm {
		tmp[i] = s[p]
	}
	copy(s, tmp)
}

// Shrink returns a slice of newSize elements where element mapping[i] is the
// old s[i]. Entries mapped to a negative index are dropped.
func Shrink[T any](s []T, mapping []int, newSize int) []T {
	if len(s) == 0 {
		return s
	}
	out := make([]T, newSize)
	for i, m := range mapping {
		if m >= 0 {
			out[m] = s[i]
		}
	}
	return out
}

// KeepMapping builds an old-to-new index mapping keeping the entries for
// which keep returns true. It returns the mapping and the number kept.
func KeepMapping(n int, keep func(i int) bool) ([]int, int) {
	mapping := make([]int, n)
	kept := 0
	for i := 0; i < n; i++ {
		if keep(i) {
			mapping[i] = kept
			kept++
		} else {
			mapping[i] = -1
		}
	}
	return mapping, kept
}
