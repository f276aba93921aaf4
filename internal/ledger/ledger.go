// Package ledger is the durable record of what has already been published:
// incidents and their watermarks, folded update ids, downstream posts, the
// last seen status indicator and applied moderator corrections.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Disposition records how an incident update reached the ledger.
type Disposition string

const (
	// Summary updates were folded into the initial post body.
	Summary Disposition = "summary"
	// Folded updates were appended to every known post.
	Folded Disposition = "folded"
	// Dropped updates were backlog at discovery time and never appended.
	Dropped Disposition = "dropped"
)

const statusKey = "indicator"

// Incident is a ledgered incident row.
type Incident struct {
	ID           string
	Name         string
	CreatedAt    time.Time
	LastUpdateAt time.Time
}

// Update is a ledgered incident update row.
type Update struct {
	IncidentID  string
	UpdateID    string
	CreatedAt   time.Time
	Status      string
	Body        string
	Disposition Disposition
}

// Post locates an incident on one downstream target.
type Post struct {
	IncidentID  string
	ChannelKind string
	Target      string
	ExternalID  string
	Link        string
}

// Store wraps the SQLite handle. Callers are expected to be the only writer.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at dbPath and ensures the schema.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// KnownIncidents maps every ledgered incident id to its watermark.
func (s *Store) KnownIncidents(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, last_update_at FROM incidents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		ts, err := parseTime(raw)
		if err != nil {
			return nil, fmt.Errorf("incident %s watermark: %w", id, err)
		}
		out[id] = ts
	}
	return out, rows.Err()
}

// KnownUpdateIDs returns the set of update ids recorded for an incident.
func (s *Store) KnownUpdateIDs(ctx context.Context, incidentID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT update_id FROM incident_updates WHERE incident_id = ?`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// UpdatesFor lists recorded updates of an incident in creation order.
func (s *Store) UpdatesFor(ctx context.Context, incidentID string) ([]Update, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT incident_id, update_id, created_at, status, body, disposition
FROM incident_updates WHERE incident_id = ? ORDER BY created_at ASC, update_id ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Update
	for rows.Next() {
		var u Update
		var created, disp string
		if err := rows.Scan(&u.IncidentID, &u.UpdateID, &created, &u.Status, &u.Body, &disp); err != nil {
			return nil, err
		}
		if u.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		u.Disposition = Disposition(disp)
		out = append(out, u)
	}
	return out, rows.Err()
}

// PostsFor lists every downstream post recorded for an incident.
func (s *Store) PostsFor(ctx context.Context, incidentID string) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT incident_id, channel_kind, target, external_id, link
FROM posts WHERE incident_id = ? ORDER BY rowid ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Post
	for rows.Next() {
		var p Post
		var link sql.NullString
		if err := rows.Scan(&p.IncidentID, &p.ChannelKind, &p.Target, &p.ExternalID, &link); err != nil {
			return nil, err
		}
		p.Link = link.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// IncidentForPost reverse-maps a post's external id to its incident.
// The boolean is false when no such post was recorded.
func (s *Store) IncidentForPost(ctx context.Context, channelKind, externalID string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT incident_id FROM posts WHERE channel_kind = ? AND external_id = ? LIMIT 1`,
		channelKind, externalID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return id, true, nil
}

// Incidents lists ledgered incidents, most recently updated first.
func (s *Store) Incidents(ctx context.Context, limit int) ([]Incident, error) {
	q := `SELECT id, name, created_at, last_update_at FROM incidents ORDER BY last_update_at DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Incident
	for rows.Next() {
		var inc Incident
		var created, last string
		if err := rows.Scan(&inc.ID, &inc.Name, &created, &last); err != nil {
			return nil, err
		}
		if inc.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if inc.LastUpdateAt, err = parseTime(last); err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// GetStatus returns the last stored indicator, if any.
func (s *Store) GetStatus(ctx context.Context) (string, bool, error) {
	var ind string
	err := s.db.QueryRowContext(ctx, `SELECT indicator FROM status WHERE key = ?`, statusKey).Scan(&ind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return ind, true, nil
}

// SetStatus overwrites the stored indicator.
func (s *Store) SetStatus(ctx context.Context, indicator string) error {
	var b Batch
	b.SetStatus(indicator)
	return s.Apply(ctx, &b)
}

// HasCorrection reports whether a correction reply was already applied.
func (s *Store) HasCorrection(ctx context.Context, channelKind, replyID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM corrections WHERE channel_kind = ? AND reply_id = ?`,
		channelKind, replyID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RecordIncident inserts the incident row, using createdAt as the initial watermark.
func (s *Store) RecordIncident(ctx context.Context, id, name string, createdAt time.Time) error {
	var b Batch
	b.RecordIncident(id, name, createdAt)
	return s.Apply(ctx, &b)
}

// RecordUpdateWatermark moves an incident's watermark.
func (s *Store) RecordUpdateWatermark(ctx context.Context, id string, lastUpdateAt time.Time) error {
	var b Batch
	b.SetWatermark(id, lastUpdateAt)
	return s.Apply(ctx, &b)
}

// RecordUpdateID marks an incident update as known.
func (s *Store) RecordUpdateID(ctx context.Context, u Update) error {
	var b Batch
	b.RecordUpdate(u)
	return s.Apply(ctx, &b)
}

// RecordPost stores where an incident was published.
func (s *Store) RecordPost(ctx context.Context, p Post) error {
	var b Batch
	b.RecordPost(p)
	return s.Apply(ctx, &b)
}

// RecordCorrection marks a correction reply as applied.
func (s *Store) RecordCorrection(ctx context.Context, channelKind, replyID, incidentID, author string) error {
	var b Batch
	b.RecordCorrection(channelKind, replyID, incidentID, author)
	return s.Apply(ctx, &b)
}

// Apply commits every operation of the batch in one transaction.
func (s *Store) Apply(ctx context.Context, b *Batch) error {
	if b == nil {
		return nil
	}
	if b.err != nil {
		return b.err
	}
	if b.Len() == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, o := range b.ops {
		if _, err := tx.ExecContext(ctx, o.query, o.args...); err != nil {
			return fmt.Errorf("ledger %s: %w", o.name, err)
		}
	}
	return tx.Commit()
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
}
