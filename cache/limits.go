package cache

// Limits bounds the cache on behalf of one consumer. The engine enforces
// the field-wise maximum over all limits suggested by live Use handles.
type Limits struct {
	// MaxKeys is the maximum number of rows that may exist at the same
	// time. The cache footprint grows at least linearly in the row count.
	MaxKeys uint32

	// MaxValueSize is the maximum size of each individual value in bytes.
	MaxValueSize uint32

	// MaxTotalValueSize is the maximum sum of all stored value sizes. It
	// covers only the values, not keys or index overhead.
	MaxTotalValueSize uint64
}

// Normalize guards against misconfigured limits. Any zero field collapses
// the whole value to the all-zero "disabled" triple, and MaxValueSize is
// clamped so it never exceeds MaxTotalValueSize.
func (l Limits) Normalize() Limits {
	if l.MaxKeys == 0 || l.MaxValueSize == 0 || l.MaxTotalValueSize == 0 {
		return Limits{}
	}
	maxValue := uint64(l.MaxValueSize)
	if maxValue > l.MaxTotalValueSize {
		maxValue = l.MaxTotalValueSize
	}
	return Limits{
		MaxKeys:           l.MaxKeys,
		MaxValueSize:      uint32(maxValue),
		MaxTotalValueSize: l.MaxTotalValueSize,
	}
}

// maxLimits returns the field-wise maximum of a and b.
func maxLimits(a, b Limits) Limits {
	return Limits{
		MaxKeys:           max(a.MaxKeys, b.MaxKeys),
		MaxValueSize:      max(a.MaxValueSize, b.MaxValueSize),
		MaxTotalValueSize: max(a.MaxTotalValueSize, b.MaxTotalValueSize),
	}
}

// limitSet tracks the multiset of limits suggested by live Use handles.
// Limits is comparable, so the multiset is a counted map. All methods are
// called with the engine lock held.
type limitSet struct {
	counts map[Limits]int
}

func newLimitSet() *limitSet {
	return &limitSet{counts: make(map[Limits]int)}
}

// add records one occurrence of l and reports whether l was already
// present. Adding a known limit cannot change the effective limits.
func (s *limitSet) add(l Limits) (known bool) {
	known = s.counts[l] > 0
	s.counts[l]++
	return known
}

// remove erases exactly one occurrence of l. Removing a limit that was
// never suggested indicates an unbalanced suggest/unsuggest pair.
func (s *limitSet) remove(l Limits) {
	n, ok := s.counts[l]
	if !ok {
		panic("cache: unsuggest without matching suggest")
	}
	if n == 1 {
		delete(s.counts, l)
	} else {
		s.counts[l] = n - 1
	}
}

// effective computes the field-wise maximum over all normalized
// suggestions. An empty set yields the all-zero (disabled) triple.
func (s *limitSet) effective() Limits {
	var eff Limits
	for l := range s.counts {
		eff = maxLimits(eff, l.Normalize())
	}
	return eff
}
