package cache

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// lastHitLayout is fixed-width so persisted timestamps sort lexically.
const lastHitLayout = "2006-01-02T15:04:05.000Z07:00"

// Entry is one cached resolution.
type Entry struct {
	LastHit                time.Time
	Slots                  map[string]any
	DisambiguationOptions  map[string]string
	Text                   string
	Intent                 string
	EntityIDs              []string
	Embedding              []float32
	Hits                   int
	RequiredDisambiguation bool
	Verified               bool
	// Generated marks anchors produced by the bootstrapper. Anchors with no
	// EntityIDs defer target resolution to the area and domain slots.
	Generated bool
}

// record is the persisted form of an Entry.
type record struct {
	Slots                  map[string]any    `json:"slots"`
	DisambiguationOptions  map[string]string `json:"disambiguation_options,omitempty"`
	Text                   string            `json:"text"`
	Intent                 string            `json:"intent"`
	LastHit                string            `json:"last_hit"`
	EntityIDs              []string          `json:"entity_ids"`
	Embedding              []float32         `json:"embedding"`
	Hits                   int               `json:"hits"`
	RequiredDisambiguation bool              `json:"required_disambiguation"`
	Verified               bool              `json:"verified"`
	Generated              bool              `json:"generated"`
}

func (e *Entry) record() record {
	r := record{
		Text:                   e.Text,
		Embedding:              e.Embedding,
		Intent:                 e.Intent,
		EntityIDs:              e.EntityIDs,
		Slots:                  e.Slots,
		RequiredDisambiguation: e.RequiredDisambiguation,
		Hits:                   e.Hits,
		Verified:               e.Verified,
		Generated:              e.Generated,
	}
	if r.EntityIDs == nil {
		r.EntityIDs = []string{}
	}
	if r.Slots == nil {
		r.Slots = map[string]any{}
	}
	if e.RequiredDisambiguation {
		r.DisambiguationOptions = e.DisambiguationOptions
	}
	if !e.LastHit.IsZero() {
		r.LastHit = e.LastHit.UTC().Format(lastHitLayout)
	}
	return r
}

// decodeEntry parses one persisted record. Records missing text, intent or
// embedding are rejected.
func decodeEntry(raw json.RawMessage) (*Entry, error) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errors.Wrap(err, "malformed record")
	}
	if r.Text == "" || r.Intent == "" || len(r.Embedding) == 0 {
		return nil, errors.New("record missing text, intent or embedding")
	}
	lastHit, err := parseLastHit(r.LastHit)
	if err != nil {
		return nil, err
	}
	e := &Entry{
		Text:                   r.Text,
		Embedding:              r.Embedding,
		Intent:                 r.Intent,
		EntityIDs:              r.EntityIDs,
		Slots:                  r.Slots,
		RequiredDisambiguation: r.RequiredDisambiguation,
		Hits:                   r.Hits,
		LastHit:                lastHit,
		Verified:               r.Verified,
		Generated:              r.Generated,
	}
	if e.RequiredDisambiguation {
		e.DisambiguationOptions = r.DisambiguationOptions
	}
	if e.Slots == nil {
		e.Slots = map[string]any{}
	}
	return e, nil
}

// parseLastHit accepts the current layout, RFC 3339, and the zone-less
// layout written by older versions (read as UTC).
func parseLastHit(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{lastHitLayout, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unparseable last_hit %q", s)
}

func copySlots(slots map[string]any) map[string]any {
	out := make(map[string]any, len(slots))
	for k, v := range slots {
		out[k] = v
	}
	return out
}
