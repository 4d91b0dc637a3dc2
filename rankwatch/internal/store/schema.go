package store

import "database/sql"

// Schema holds snapshots and the items owned by successful ones. Instants
// are RFC 3339 text with their original offset; captured_at_ms orders rows
// across offsets.
const Schema = `
CREATE TABLE IF NOT EXISTS ranking_snapshot (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id          TEXT NOT NULL,
    source          TEXT NOT NULL,
    captured_at     TEXT NOT NULL,
    captured_at_ms  INTEGER NOT NULL,
    hour_bucket_at  TEXT NOT NULL,
    hour_bucket_key TEXT NOT NULL,
    raw_url         TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL CHECK (status IN ('SUCCESS', 'FAILED')),
    error_message   TEXT,
    item_count      INTEGER NOT NULL DEFAULT 0,
    duration_ms     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_snapshot_source_time ON ranking_snapshot(source, captured_at_ms DESC);
CREATE INDEX IF NOT EXISTS idx_snapshot_bucket ON ranking_snapshot(hour_bucket_key);
CREATE INDEX IF NOT EXISTS idx_snapshot_status ON ranking_snapshot(status, captured_at_ms DESC);

CREATE TABLE IF NOT EXISTS ranking_item (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    snapshot_id INTEGER NOT NULL REFERENCES ranking_snapshot(id) ON DELETE CASCADE,
    rank_no     INTEGER NOT NULL,
    brand       TEXT NOT NULL,
    product     TEXT NOT NULL,
    price       INTEGER NOT NULL CHECK (price >= 0),
    product_url TEXT,
    image_url   TEXT
);
CREATE INDEX IF NOT EXISTS idx_item_snapshot ON ranking_item(snapshot_id, rank_no);
`

// ApplySchema creates all tables and indexes on db.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
