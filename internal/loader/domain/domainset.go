package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// Domain is a canonical (lowercase, no trailing dot) host name.
// Canonicalization is the parser's job; Domain only orders and compares.
type Domain string

// Compare orders domains lexicographically by bytes.
func (d Domain) Compare(other Domain) int {
	return strings.Compare(string(d), string(other))
}

func (d Domain) String() string { return string(d) }

// DomainSet is an immutable, sorted, duplicate-free collection of domains.
// The zero value is the empty set.
type DomainSet struct {
	items []Domain
}

// NewDomainSet copies domains, sorts them and collapses duplicates.
func NewDomainSet(domains ...Domain) DomainSet {
	if len(domains) == 0 {
		return DomainSet{}
	}
	items := slices.Clone(domains)
	slices.Sort(items)
	items = slices.Compact(items)
	return DomainSet{items: items}
}

// NewDomainSetFromStrings is NewDomainSet for plain strings.
func NewDomainSetFromStrings(names ...string) DomainSet {
	domains := make([]Domain, len(names))
	for i, n := range names {
		domains[i] = Domain(n)
	}
	return NewDomainSet(domains...)
}

// Len returns the number of domains.
func (s DomainSet) Len() int { return len(s.items) }

// IsEmpty reports whether the set holds no domains.
func (s DomainSet) IsEmpty() bool { return len(s.items) == 0 }

// At returns the i-th domain in sort order.
func (s DomainSet) At(i int) Domain { return s.items[i] }

// Items returns a copy of the domains in sort order.
func (s DomainSet) Items() []Domain { return slices.Clone(s.items) }

// Contains reports membership using binary search.
func (s DomainSet) Contains(d Domain) bool {
	_, ok := slices.BinarySearch(s.items, d)
	return ok
}

// Strings returns the domains as plain strings, in sort order.
func (s DomainSet) Strings() []string {
	out := make([]string, len(s.items))
	for i, d := range s.items {
		out[i] = string(d)
	}
	return out
}

// Hash returns the hex sha256 of the sorted domains, each terminated by '\n'.
// Two sets hash equal exactly when they hold the same domains.
func (s DomainSet) Hash() string {
	h := sha256.New()
	for _, d := range s.items {
		h.Write([]byte(d))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
