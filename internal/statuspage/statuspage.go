// Package statuspage reads an Atlassian Statuspage v2 JSON API and turns it
// into a Snapshot: the page indicator plus the incident list.
package statuspage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MattIPv4/Discord-Status/internal/httpclient"
)

// Indicator is the page's top-level status ("none", "minor", "major",
// "critical", "maintenance").
type Indicator string

// Update is one narrative entry within an incident.
type Update struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Incident as reported by the feed.
type Incident struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	Impact     string     `json:"impact"`
	Shortlink  string     `json:"shortlink"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
	Updates    []Update   `json:"incident_updates"`
}

// Resolved reports whether the feed marks the incident resolved.
func (i Incident) Resolved() bool {
	return i.ResolvedAt != nil && !i.ResolvedAt.IsZero()
}

// SortedUpdates returns the updates ascending by creation time. The feed
// lists them newest first; ties keep feed order reversed.
func (i Incident) SortedUpdates() []Update {
	out := make([]Update, len(i.Updates))
	copy(out, i.Updates)
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

// Snapshot is one poll of the feed.
type Snapshot struct {
	Indicator   Indicator
	Description string
	Incidents   []Incident
	FetchedAt   time.Time
}

// SourceFetchError aborts a cycle: nothing may be written against a partial snapshot.
type SourceFetchError struct {
	URL string
	Err error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("status source %s: %v", e.URL, e.Err)
}

func (e *SourceFetchError) Unwrap() error {
	return e.Err
}

// Client polls a Statuspage instance.
type Client struct {
	baseURL string
	http    *httpclient.Client
	now     func() time.Time
}

// NewClient builds a client for baseURL (e.g. https://discordstatus.com/api/v2).
func NewClient(baseURL string, hc *httpclient.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    hc,
		now:     time.Now,
	}
}

type incidentsDoc struct {
	Incidents []Incident `json:"incidents"`
}

type statusDoc struct {
	Status struct {
		Indicator   Indicator `json:"indicator"`
		Description string    `json:"description"`
	} `json:"status"`
}

// Fetch reads incidents.json and status.json. Any failure is a *SourceFetchError.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	var incs incidentsDoc
	if err := c.getJSON(ctx, "/incidents.json", &incs); err != nil {
		return Snapshot{}, err
	}
	var st statusDoc
	if err := c.getJSON(ctx, "/status.json", &st); err != nil {
		return Snapshot{}, err
	}
	if strings.TrimSpace(string(st.Status.Indicator)) == "" {
		return Snapshot{}, &SourceFetchError{URL: c.baseURL + "/status.json", Err: fmt.Errorf("missing status indicator")}
	}
	for _, inc := range incs.Incidents {
		if strings.TrimSpace(inc.ID) == "" {
			return Snapshot{}, &SourceFetchError{URL: c.baseURL + "/incidents.json", Err: fmt.Errorf("incident without id")}
		}
	}
	return Snapshot{
		Indicator:   st.Status.Indicator,
		Description: st.Status.Description,
		Incidents:   incs.Incidents,
		FetchedAt:   c.now().UTC(),
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, into any) error {
	u := c.baseURL + path
	body, err := c.http.Get(ctx, u)
	if err != nil {
		return &SourceFetchError{URL: u, Err: err}
	}
	if err := json.Unmarshal(body, into); err != nil {
		return &SourceFetchError{URL: u, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
