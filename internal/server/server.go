package server

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MattIPv4/Discord-Status/internal/config"
	"github.com/MattIPv4/Discord-Status/internal/ledger"
	"github.com/MattIPv4/Discord-Status/internal/version"
)

type ListIncidentsParams struct {
	Limit *int `json:"limit,omitempty"`
}

type GetIncidentParams struct {
	ID            string `json:"id"`
	IncludeBodies bool   `json:"include_bodies"`
}

type handlers struct {
	load config.ConfigLoad
}

// Run serves read-only ledger tools over MCP stdio.
func Run(ctx context.Context, load config.ConfigLoad) error {
	server := mcp.NewServer(&mcp.Implementation{Name: "discord-status", Version: version.Version}, nil)
	h := &handlers{load: load}

	mcp.AddTool(server, &mcp.Tool{Name: "list_incidents", Description: "List relayed incidents, most recently updated first"}, h.listIncidents)
	mcp.AddTool(server, &mcp.Tool{Name: "get_incident", Description: "Get one relayed incident with its updates and downstream posts"}, h.getIncident)

	return server.Run(ctx, &mcp.StdioTransport{})
}

// open returns the store, or a friendly payload explaining why it is unavailable.
func (h *handlers) open() (*ledger.Store, map[string]any, error) {
	cfg, err := h.load()
	if err != nil {
		return nil, nil, err
	}
	if !fileExists(cfg.DatabasePath) {
		return nil, map[string]any{
			"ok":      false,
			"message": fmt.Sprintf("Ledger not found at %s", cfg.DatabasePath),
			"hint":    "Run 'discord-status run' to create/populate the ledger, or set database_path in ~/.config/discord-status/config.yaml.",
			"db_path": cfg.DatabasePath,
		}, nil
	}
	store, err := ledger.Open(cfg.DatabasePath)
	if err != nil {
		return nil, map[string]any{
			"ok":      false,
			"message": "Failed opening the ledger",
			"error":   err.Error(),
			"db_path": cfg.DatabasePath,
		}, nil
	}
	return store, nil, nil
}

type incidentItem struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdateAt time.Time `json:"last_update_at"`
	Posts        []postDTO `json:"posts"`
}

type postDTO struct {
	Channel    string `json:"channel"`
	Target     string `json:"target"`
	ExternalID string `json:"external_id"`
	Link       string `json:"link,omitempty"`
}

type updateDTO struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Status      string    `json:"status"`
	Disposition string    `json:"disposition"`
	Body        string    `json:"body,omitempty"`
}

func (h *handlers) listIncidents(ctx context.Context, req *mcp.CallToolRequest, p ListIncidentsParams) (*mcp.CallToolResult, any, error) {
	lim := 20
	if p.Limit != nil && *p.Limit > 0 {
		lim = *p.Limit
	}
	store, unavailable, err := h.open()
	if err != nil || unavailable != nil {
		return nil, unavailable, err
	}
	defer store.Close()

	incs, err := store.Incidents(ctx, lim)
	if err != nil {
		return nil, map[string]any{
			"ok":      false,
			"message": "Query failed while reading from the ledger",
			"error":   err.Error(),
		}, nil
	}
	items := make([]incidentItem, 0, len(incs))
	for _, inc := range incs {
		posts, err := store.PostsFor(ctx, inc.ID)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, incidentItem{
			ID:           inc.ID,
			Name:         inc.Name,
			CreatedAt:    inc.CreatedAt,
			LastUpdateAt: inc.LastUpdateAt,
			Posts:        toPostDTOs(posts),
		})
	}
	return nil, map[string]any{"count": len(items), "items": items}, nil
}

func (h *handlers) getIncident(ctx context.Context, req *mcp.CallToolRequest, p GetIncidentParams) (*mcp.CallToolResult, any, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return nil, map[string]any{"ok": false, "message": "id is required"}, nil
	}
	store, unavailable, err := h.open()
	if err != nil || unavailable != nil {
		return nil, unavailable, err
	}
	defer store.Close()

	known, err := store.KnownIncidents(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := known[id]; !ok {
		return nil, map[string]any{"ok": false, "message": fmt.Sprintf("incident %s is not in the ledger", id)}, nil
	}
	updates, err := store.UpdatesFor(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	posts, err := store.PostsFor(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	out := make([]updateDTO, 0, len(updates))
	for _, u := range updates {
		d := updateDTO{ID: u.UpdateID, CreatedAt: u.CreatedAt, Status: u.Status, Disposition: string(u.Disposition)}
		if p.IncludeBodies {
			d.Body = u.Body
		}
		out = append(out, d)
	}
	return nil, map[string]any{
		"ok":             true,
		"id":             id,
		"last_update_at": known[id],
		"updates":        out,
		"posts":          toPostDTOs(posts),
	}, nil
}

func toPostDTOs(posts []ledger.Post) []postDTO {
	out := make([]postDTO, 0, len(posts))
	for _, p := range posts {
		out = append(out, postDTO{Channel: p.ChannelKind, Target: p.Target, ExternalID: p.ExternalID, Link: p.Link})
	}
	return out
}

// Check if a file exists, validating the p search path
func fileExists(p string) bool {
	if p == "" {
		return false
	}
	if _, err := os.Stat(p); err == nil {
		return true
	}
	return false
}
