package domain

import (
	"cmp"
	"slices"
	"time"
)

// HistoricalList is one point of replay history: a snapshot URL and the
// commit time it was published at, in epoch seconds.
type HistoricalList struct {
	URL         string `json:"url"`
	CommitEpoch int64  `json:"commitEpoch"`
}

// CommitTime returns the commit epoch as a UTC time.
func (h HistoricalList) CommitTime() time.Time {
	return time.Unix(h.CommitEpoch, 0).UTC()
}

// Compare orders by commit epoch ascending.
func (h HistoricalList) Compare(other HistoricalList) int {
	return cmp.Compare(h.CommitEpoch, other.CommitEpoch)
}

// SortHistorical returns a copy of lists ordered by commit epoch ascending.
// Entries with equal epochs keep their manifest order.
func SortHistorical(lists []HistoricalList) []HistoricalList {
	out := slices.Clone(lists)
	slices.SortStableFunc(out, HistoricalList.Compare)
	return out
}
