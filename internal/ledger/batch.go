package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type op struct {
	name  string
	query string
	args  []any
}

// Batch collects the writes of one logical event. Invalid operations poison
// the batch so Apply rejects it before anything is written.
type Batch struct {
	ops []op
	err error
}

// Len reports how many writes the batch holds.
func (b *Batch) Len() int {
	return len(b.ops)
}

func (b *Batch) add(name, query string, args ...any) {
	b.ops = append(b.ops, op{name: name, query: query, args: args})
}

func (b *Batch) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// RecordIncident inserts an incident once; later calls are no-ops.
func (b *Batch) RecordIncident(id, name string, createdAt time.Time) {
	if strings.TrimSpace(id) == "" {
		b.fail(errors.New("record incident: missing id"))
		return
	}
	ts := formatTime(createdAt)
	b.add("record incident", `INSERT INTO incidents (id, name, created_at, last_update_at) VALUES (?, ?, ?, ?)
        ON CONFLICT(id) DO NOTHING`, id, name, ts, ts)
}

// SetWatermark moves the incident's last seen updatedAt.
func (b *Batch) SetWatermark(id string, at time.Time) {
	if strings.TrimSpace(id) == "" {
		b.fail(errors.New("set watermark: missing id"))
		return
	}
	b.add("set watermark", `UPDATE incidents SET last_update_at = ? WHERE id = ?`, formatTime(at), id)
}

// RecordUpdate marks an update as known for its incident.
func (b *Batch) RecordUpdate(u Update) {
	if strings.TrimSpace(u.IncidentID) == "" || strings.TrimSpace(u.UpdateID) == "" {
		b.fail(errors.New("record update: missing incident or update id"))
		return
	}
	switch u.Disposition {
	case Summary, Folded, Dropped:
	default:
		b.fail(fmt.Errorf("record update %s: unknown disposition %q", u.UpdateID, u.Disposition))
		return
	}
	b.add("record update", `INSERT OR IGNORE INTO incident_updates (incident_id, update_id, created_at, status, body, disposition)
        VALUES (?, ?, ?, ?, ?, ?)`, u.IncidentID, u.UpdateID, formatTime(u.CreatedAt), u.Status, u.Body, string(u.Disposition))
}

// RecordPost stores a successful initial publish.
func (b *Batch) RecordPost(p Post) {
	if strings.TrimSpace(p.IncidentID) == "" || strings.TrimSpace(p.ExternalID) == "" || strings.TrimSpace(p.ChannelKind) == "" {
		b.fail(errors.New("record post: missing incident, channel kind or external id"))
		return
	}
	b.add("record post", `INSERT OR IGNORE INTO posts (incident_id, channel_kind, target, external_id, link)
        VALUES (?, ?, ?, ?, ?)`, p.IncidentID, p.ChannelKind, p.Target, p.ExternalID, nullIfEmpty(p.Link))
}

// SetStatus overwrites the single stored indicator.
func (b *Batch) SetStatus(indicator string) {
	b.add("set status", `INSERT INTO status (key, indicator, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(key) DO UPDATE SET indicator=excluded.indicator, updated_at=excluded.updated_at`, statusKey, indicator)
}

// RecordCorrection marks a correction reply as applied.
func (b *Batch) RecordCorrection(channelKind, replyID, incidentID, author string) {
	if strings.TrimSpace(replyID) == "" || strings.TrimSpace(incidentID) == "" {
		b.fail(errors.New("record correction: missing reply or incident id"))
		return
	}
	b.add("record correction", `INSERT OR IGNORE INTO corrections (channel_kind, reply_id, incident_id, author)
        VALUES (?, ?, ?, ?)`, channelKind, replyID, incidentID, author)
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
