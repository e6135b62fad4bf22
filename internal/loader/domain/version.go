package domain

import (
	"time"

	"github.com/google/uuid"
)

// ParsedList is the result of fetching and parsing one blocklist snapshot.
type ParsedList struct {
	Domains      DomainSet
	RawSHA256    string // hex sha256 of the downloaded bytes
	ParsedSHA256 string // hex sha256 of the canonical sorted domain set
}

// NewParsedList builds a ParsedList, deriving ParsedSHA256 from the set.
func NewParsedList(domains DomainSet, rawSHA256 string) ParsedList {
	return ParsedList{
		Domains:      domains,
		RawSHA256:    rawSHA256,
		ParsedSHA256: domains.Hash(),
	}
}

// Version is the backend's record of a blocklist's domain set as of one fetch.
//
// NumEntries, RawSHA256 and ParsedSHA256 are fixed at creation. Only
// ParsedSHA256 and LastSeen change afterwards (heartbeat). CreatedOn is set
// only for historical replay; the backend stamps current syncs itself.
type Version struct {
	ID           uuid.UUID  `json:"id,omitzero"`
	BlocklistID  uuid.UUID  `json:"blocklistId"`
	NumEntries   int64      `json:"numEntries"`
	RawSHA256    string     `json:"rawSha256"`
	ParsedSHA256 string     `json:"parsedSha256"`
	CreatedOn    *time.Time `json:"createdOn,omitempty"`
	LastSeen     *time.Time `json:"lastSeen,omitempty"`
	FullyLoaded  bool       `json:"fullyLoaded"`
}

// NewVersion describes a not-yet-loaded version for parsed content.
// createdOn is nil for current syncs.
func NewVersion(blocklistID uuid.UUID, parsed ParsedList, createdOn *time.Time) Version {
	v := Version{
		BlocklistID:  blocklistID,
		NumEntries:   int64(parsed.Domains.Len()),
		RawSHA256:    parsed.RawSHA256,
		ParsedSHA256: parsed.ParsedSHA256,
	}
	if createdOn != nil {
		c := createdOn.UTC()
		v.CreatedOn = &c
		v.LastSeen = &c
	}
	return v
}

// IsHistorical reports whether the version carries an explicit creation time.
func (v Version) IsHistorical() bool { return v.CreatedOn != nil }

// Promoted returns a copy marked fully loaded.
func (v Version) Promoted() Version {
	v.FullyLoaded = true
	return v
}

// Heartbeat returns a copy recording that unchanged content was seen again.
func (v Version) Heartbeat(parsedSHA256 string, seen time.Time) Version {
	s := seen.UTC()
	v.ParsedSHA256 = parsedSHA256
	v.LastSeen = &s
	return v
}

// LogFields returns the fields used to identify the version in log lines.
func (v Version) LogFields() map[string]any {
	return map[string]any{
		"version_id":   v.ID.String(),
		"blocklist_id": v.BlocklistID.String(),
		"entries":      v.NumEntries,
		"fully_loaded": v.FullyLoaded,
	}
}
