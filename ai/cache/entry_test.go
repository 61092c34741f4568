package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryRecord(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	e := &Entry{
		Text:                   "Schalte das Licht an",
		Intent:                 "HassTurnOn",
		Embedding:              []float32{0.5, 0.25},
		LastHit:                time.Date(2025, 6, 1, 12, 30, 0, 123456789, berlin),
		DisambiguationOptions:  map[string]string{"light.a": "Licht A"},
		RequiredDisambiguation: false,
	}
	r := e.record()
	assert.Equal(t, "2025-06-01T11:30:00.123Z", r.LastHit)
	assert.Equal(t, []string{}, r.EntityIDs)
	assert.Equal(t, map[string]any{}, r.Slots)
	assert.Nil(t, r.DisambiguationOptions, "options are only kept when disambiguation was required")
}

func TestDecodeEntry(t *testing.T) {
	raw := json.RawMessage(`{
		"text": "Öffne die Rollläden",
		"intent": "HassOpenCover",
		"embedding": [1, 0, 0],
		"entity_ids": ["cover.wohnzimmer"],
		"slots": {"area": "Wohnzimmer"},
		"hits": 3,
		"last_hit": "2024-11-05T08:15:00",
		"required_disambiguation": true,
		"disambiguation_options": {"cover.a": "Links"},
		"verified": true
	}`)
	e, err := decodeEntry(raw)
	require.NoError(t, err)
	assert.Equal(t, "HassOpenCover", e.Intent)
	assert.Equal(t, 3, e.Hits)
	assert.Equal(t, time.Date(2024, 11, 5, 8, 15, 0, 0, time.UTC), e.LastHit)
	assert.Equal(t, "Links", e.DisambiguationOptions["cover.a"])

	_, err = decodeEntry(json.RawMessage(`{"text":"x","intent":"y"}`))
	assert.Error(t, err)
	_, err = decodeEntry(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestParseLastHit(t *testing.T) {
	for _, s := range []string{"2025-01-02T03:04:05.000Z", "2025-01-02T03:04:05Z", "2025-01-02T04:04:05+01:00", "2025-01-02T03:04:05"} {
		got, err := parseLastHit(s)
		require.NoError(t, err, s)
		assert.True(t, got.Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)), s)
	}
	got, err := parseLastHit("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseLastHit("yesterday")
	assert.Error(t, err)
}
