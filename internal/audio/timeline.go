package audio

import "fmt"

// OrderingPolicy selects how the two channels' segments are linearized.
type OrderingPolicy string

const (
	// Chronological orders segments by source start time; on ties the left
	// channel goes first.
	Chronological OrderingPolicy = "chronological"
	// Alternating takes left, right, left, right... and appends whatever is
	// left of the longer list once the shorter one runs out.
	Alternating OrderingPolicy = "alternating"
)

// IsValid returns true if the policy is known.
func (p OrderingPolicy) IsValid() bool {
	return p == Chronological || p == Alternating
}

// Assemble merges the per-channel segment lists into one timeline.
// Two empty lists yield an empty timeline. The inputs are not modified.
func Assemble(left, right []Segment, policy OrderingPolicy) ([]Segment, error) {
	switch policy {
	case Chronological:
		return mergeChronological(left, right), nil
	case Alternating:
		return interleaveAlternating(left, right), nil
	default:
		return nil, fmt.Errorf("%w: unknown ordering policy %q", ErrInvalidOption, policy)
	}
}

// mergeChronological is a stable two-way merge. Each list is already in
// source order, so only the heads need comparing.
func mergeChronological(left, right []Segment) []Segment {
	out := make([]Segment, 0, len(left)+len(right))
	i, j := 0, 0
	for i < len(left) && j < len(right) {
		if left[i].SourceStart <= right[j].SourceStart {
			out = append(out, left[i])
			i++
		} else {
			out = append(out, right[j])
			j++
		}
	}
	out = append(out, left[i:]...)
	out = append(out, right[j:]...)
	return out
}

func interleaveAlternating(left, right []Segment) []Segment {
	out := make([]Segment, 0, len(left)+len(right))
	n := min(len(left), len(right))
	for k := 0; k < n; k++ {
		out = append(out, left[k], right[k])
	}
	out = append(out, left[n:]...)
	out = append(out, right[n:]...)
	return out
}
