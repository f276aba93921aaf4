package ledger

import "database/sql"

// InitSchema ensures the DB has the tables the relay needs.
func InitSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS incidents (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            created_at TEXT NOT NULL,
            last_update_at TEXT NOT NULL,
            recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS incident_updates (
            incident_id TEXT NOT NULL REFERENCES incidents(id),
            update_id TEXT NOT NULL,
            created_at TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT '',
            body TEXT NOT NULL DEFAULT '',
            disposition TEXT NOT NULL,
            recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (incident_id, update_id)
        )`,
		`CREATE TABLE IF NOT EXISTS posts (
            incident_id TEXT NOT NULL REFERENCES incidents(id),
            channel_kind TEXT NOT NULL,
            target TEXT NOT NULL,
            external_id TEXT NOT NULL,
            link TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (channel_kind, target, external_id)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_posts_incident ON posts(incident_id)`,
		`CREATE TABLE IF NOT EXISTS status (
            key TEXT PRIMARY KEY,
            indicator TEXT NOT NULL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS corrections (
            channel_kind TEXT NOT NULL,
            reply_id TEXT NOT NULL,
            incident_id TEXT NOT NULL,
            author TEXT NOT NULL DEFAULT '',
            recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (channel_kind, reply_id)
        )`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
