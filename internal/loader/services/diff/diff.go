// Package diff partitions two domain sets into added, removed and unchanged.
package diff

import "github.com/haukened/blocklist-loader/internal/loader/domain"

// Result is the partition of previous ∪ current. The three sets are pairwise
// disjoint and their union is exactly previous ∪ current.
type Result struct {
	Added     domain.DomainSet // current \ previous
	Removed   domain.DomainSet // previous \ current
	Unchanged domain.DomainSet // previous ∩ current
}

// Changed reports whether anything was added or removed.
func (r Result) Changed() bool {
	return !r.Added.IsEmpty() || !r.Removed.IsEmpty()
}

// LogFields returns partition sizes for log lines.
func (r Result) LogFields() map[string]any {
	return map[string]any{
		"added":     r.Added.Len(),
		"removed":   r.Removed.Len(),
		"unchanged": r.Unchanged.Len(),
	}
}

// Compute walks both sorted sets once in merge order.
func Compute(previous, current domain.DomainSet) Result {
	var added, removed, unchanged []domain.Domain
	i, j := 0, 0
	for i < previous.Len() && j < current.Len() {
		p, c := previous.At(i), current.At(j)
		switch cmp := p.Compare(c); {
		case cmp < 0:
			removed = append(removed, p)
			i++
		case cmp > 0:
			added = append(added, c)
			j++
		default:
			unchanged = append(unchanged, p)
			i++
			j++
		}
	}
	for ; i < previous.Len(); i++ {
		removed = append(removed, previous.At(i))
	}
	for ; j < current.Len(); j++ {
		added = append(added, current.At(j))
	}

	return Result{
		Added:     domain.NewDomainSet(added...),
		Removed:   domain.NewDomainSet(removed...),
		Unchanged: domain.NewDomainSet(unchanged...),
	}
}
