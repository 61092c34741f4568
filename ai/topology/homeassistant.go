package topology

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// snapshotTemplate renders areas and enabled entities as JSON. Disabled
// entities have no state object, so they never appear.
const snapshotTemplate = `{%- set ns = namespace(areas=[], entities=[]) -%}
{%- for a in areas() -%}
{%- set ns.areas = ns.areas + [{"id": a, "name": area_name(a)}] -%}
{%- endfor -%}
{%- for s in states -%}
{%- set ns.entities = ns.entities + [{"entity_id": s.entity_id, "name": s.name, "area_id": area_id(s.entity_id)}] -%}
{%- endfor -%}
{{ {"areas": ns.areas, "entities": ns.entities} | tojson }}`

// HomeAssistant reads the topology from a Home Assistant instance through
// its template API.
type HomeAssistant struct {
	client  *http.Client
	baseURL string
}

// NewHomeAssistant creates a provider. token is a long-lived access token.
func NewHomeAssistant(baseURL, token string, timeout time.Duration) *HomeAssistant {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	// The oauth2 transport sends the token as a bearer credential.
	client := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	client.Timeout = timeout
	return &HomeAssistant{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (h *HomeAssistant) Snapshot(ctx context.Context) (*Snapshot, error) {
	body, err := json.Marshal(map[string]string{"template": snapshotTemplate})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/template", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "home assistant template request")
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // cleanup

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read template response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("home assistant template API error: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("home assistant template did not render JSON")
	}

	return parseSnapshot(gjson.ParseBytes(raw)), nil
}

func parseSnapshot(doc gjson.Result) *Snapshot {
	s := &Snapshot{}
	doc.Get("areas").ForEach(func(_, v gjson.Result) bool {
		s.Areas = append(s.Areas, Area{
			ID:   v.Get("id").String(),
			Name: v.Get("name").String(),
		})
		return true
	})
	doc.Get("entities").ForEach(func(_, v gjson.Result) bool {
		s.Entities = append(s.Entities, Entity{
			ID:     v.Get("entity_id").String(),
			Name:   v.Get("name").String(),
			AreaID: v.Get("area_id").String(),
		})
		return true
	})
	return s
}
