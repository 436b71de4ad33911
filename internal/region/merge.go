package region

// Mode selects how Merge collapses overlapping regions.
type Mode string

const (
	// SinglePass makes one forward pass. Each unconsumed region grows by
	// absorbing later overlapping regions, so chains merge, but a region
	// finalized earlier is never revisited when a later union grows into it.
	SinglePass Mode = "single_pass"

	// Fixpoint repeats single passes until no pair in the output overlaps.
	Fixpoint Mode = "fixpoint"
)

// ParseMode maps a config value to a Mode, defaulting to SinglePass.
func ParseMode(s string) Mode {
	if Mode(s) == Fixpoint {
		return Fixpoint
	}
	return SinglePass
}

// Merge collapses overlapping regions according to mode. Inputs with zero or
// one element are returned unchanged.
func Merge(regions []Region, mode Mode) []Region {
	if mode == Fixpoint {
		return MergeFixpoint(regions)
	}
	return MergeSinglePass(regions)
}

// MergeSinglePass is the order-dependent forward merge. The accumulator is
// compared against each later region after every absorption, so overlap
// chains that run forward through the list collapse into one region.
func MergeSinglePass(regions []Region) []Region {
	if len(regions) <= 1 {
		return regions
	}

	merged := make([]Region, 0, len(regions))
	used := make([]bool, len(regions))

	for i := range regions {
		if used[i] {
			continue
		}
		current := regions[i]
		used[i] = true

		for j := i + 1; j < len(regions); j++ {
			if used[j] {
				continue
			}
			if current.Overlaps(regions[j]) {
				current = current.Union(regions[j])
				used[j] = true
			}
		}

		merged = append(merged, current)
	}

	return merged
}

// MergeFixpoint runs MergeSinglePass until the region count stops shrinking,
// which leaves no overlapping pair regardless of input order.
func MergeFixpoint(regions []Region) []Region {
	current := regions
	for {
		next := MergeSinglePass(current)
		if len(next) == len(current) {
			return next
		}
		current = next
	}
}

// Disjoint reports whether no pair of regions overlaps.
func Disjoint(regions []Region) bool {
	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			if regions[i].Overlaps(regions[j]) {
				return false
			}
		}
	}
	return true
}
