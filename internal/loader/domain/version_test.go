package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVersion_Current(t *testing.T) {
	bl := uuid.New()
	parsed := NewParsedList(NewDomainSetFromStrings("a.com", "b.com"), "rawsha")
	v := NewVersion(bl, parsed, nil)

	assert.Equal(t, uuid.Nil, v.ID)
	assert.Equal(t, bl, v.BlocklistID)
	assert.EqualValues(t, 2, v.NumEntries)
	assert.Equal(t, "rawsha", v.RawSHA256)
	assert.Equal(t, parsed.Domains.Hash(), v.ParsedSHA256)
	assert.False(t, v.IsHistorical())
	assert.Nil(t, v.LastSeen)
	assert.False(t, v.FullyLoaded)
}

func TestNewVersion_Historical(t *testing.T) {
	commit := time.Unix(1600000000, 0)
	v := NewVersion(uuid.New(), NewParsedList(DomainSet{}, "r"), &commit)

	require.True(t, v.IsHistorical())
	assert.True(t, v.CreatedOn.Equal(commit))
	assert.True(t, v.LastSeen.Equal(commit))
	assert.EqualValues(t, 0, v.NumEntries)
}

func TestVersion_PromotedAndHeartbeat(t *testing.T) {
	v := Version{ID: uuid.New(), ParsedSHA256: "old"}
	p := v.Promoted()
	assert.True(t, p.FullyLoaded)
	assert.False(t, v.FullyLoaded, "Promoted must not mutate the receiver")

	seen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := p.Heartbeat("new", seen)
	assert.Equal(t, "new", h.ParsedSHA256)
	require.NotNil(t, h.LastSeen)
	assert.True(t, h.LastSeen.Equal(seen))
	assert.Equal(t, "old", p.ParsedSHA256)
}

func TestVersion_JSONWireNames(t *testing.T) {
	v := Version{BlocklistID: uuid.MustParse("11111111-2222-3333-4444-555555555555"), NumEntries: 3, RawSHA256: "r", ParsedSHA256: "p"}
	raw, err := json.Marshal(v)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.NotContains(t, m, "id", "unassigned id must be omitted")
	assert.NotContains(t, m, "createdOn")
	assert.NotContains(t, m, "lastSeen")
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", m["blocklistId"])
	assert.EqualValues(t, 3, m["numEntries"])
	assert.Equal(t, "r", m["rawSha256"])
	assert.Equal(t, "p", m["parsedSha256"])
	assert.Equal(t, false, m["fullyLoaded"])

	var back Version
	require.NoError(t, json.Unmarshal([]byte(`{"id":"aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee","fullyLoaded":true,"lastSeen":"2026-10-19T00:00:00Z"}`), &back))
	assert.Equal(t, "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee", back.ID.String())
	assert.True(t, back.FullyLoaded)
	require.NotNil(t, back.LastSeen)
}
