package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/rankcap/rankwatch/ranking"
)

// ErrNotFound is returned when a requested snapshot does not exist.
var ErrNotFound = errors.New("store: snapshot not found")

// Store wraps the rankwatch database.
type Store struct {
	DB *sql.DB
}

// New creates a Store from an already-opened database with the schema applied.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Filter narrows ListSnapshots. Zero values match everything.
type Filter struct {
	Source string
	Status ranking.Status
	// Limit defaults to 50 and is capped at 500.
	Limit int
}

// saveWaits are the pauses between Save attempts while another writer
// holds the database.
var saveWaits = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}

// Save writes snap and, for a SUCCESS snapshot, its items in one
// transaction. snap.ID and the item IDs are assigned on success; on any
// error nothing is persisted. A snapshot that hits SQLITE_BUSY is written
// again from scratch, up to len(saveWaits) more times.
func (s *Store) Save(ctx context.Context, snap *ranking.Snapshot) error {
	if err := check(snap); err != nil {
		return err
	}
	id, items := snap.ID, cloneItems(snap.Items)
	err := retryBusy(ctx, saveWaits, func() error {
		snap.ID, snap.Items = id, cloneItems(items)
		return s.saveTx(ctx, snap)
	})
	if err != nil {
		snap.ID, snap.Items = id, items
	}
	return err
}

func (s *Store) saveTx(ctx context.Context, snap *ranking.Snapshot) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if _, err := s.SaveSnapshot(ctx, tx, snap); err != nil {
		tx.Rollback()
		return err
	}
	if snap.Succeeded() {
		if err := s.SaveItems(ctx, tx, snap.ID, snap.Items); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit snapshot: %w", err)
	}
	return nil
}

// retryBusy runs fn, then once more after each wait while fn reports
// SQLITE_BUSY. Other errors return at once.
func retryBusy(ctx context.Context, waits []time.Duration, fn func() error) error {
	for i := 0; ; i++ {
		err := fn()
		if !isBusy(err) || i == len(waits) {
			return err
		}
		t := time.NewTimer(waits[i])
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("store: save interrupted while database busy: %w", ctx.Err())
		case <-t.C:
		}
	}
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func check(snap *ranking.Snapshot) error {
	switch {
	case !snap.Status.Valid():
		return fmt.Errorf("store: invalid status %q", snap.Status)
	case snap.Succeeded() && len(snap.Items) == 0:
		return errors.New("store: success snapshot without items")
	case snap.Succeeded() && snap.ItemCount != len(snap.Items):
		return fmt.Errorf("store: item count %d does not match %d items", snap.ItemCount, len(snap.Items))
	case !snap.Succeeded() && len(snap.Items) > 0:
		return errors.New("store: failed snapshot with items")
	case !snap.Succeeded() && snap.ErrorMessage == "":
		return errors.New("store: failed snapshot without error message")
	}
	return nil
}

func cloneItems(items []ranking.Item) []ranking.Item {
	if items == nil {
		return nil
	}
	return append([]ranking.Item(nil), items...)
}

// SaveSnapshot inserts the snapshot row inside tx and assigns snap.ID.
func (s *Store) SaveSnapshot(ctx context.Context, tx *sql.Tx, snap *ranking.Snapshot) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO ranking_snapshot (run_id, source, captured_at, captured_at_ms,
		hour_bucket_at, hour_bucket_key, raw_url, status, error_message, item_count, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.RunID, snap.Source,
		formatTime(snap.CapturedAt), snap.CapturedAt.UnixMilli(),
		formatTime(snap.HourBucketAt), snap.HourBucketKey,
		snap.RawURL, string(snap.Status), nullString(snap.ErrorMessage),
		snap.ItemCount, snap.DurationMs,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: snapshot id: %w", err)
	}
	snap.ID = id
	return id, nil
}

// SaveItems inserts items for snapshotID inside tx, setting their
// SnapshotID and ID in place.
func (s *Store) SaveItems(ctx context.Context, tx *sql.Tx, snapshotID int64, items []ranking.Item) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ranking_item (snapshot_id, rank_no, brand, product, price, product_url, image_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare item insert: %w", err)
	}
	defer stmt.Close()

	for i := range items {
		it := &items[i]
		it.SnapshotID = snapshotID
		res, err := stmt.ExecContext(ctx, snapshotID, it.Rank, it.Brand, it.Product, it.Price,
			nullString(it.ProductURL), nullString(it.ImageURL))
		if err != nil {
			return fmt.Errorf("store: insert item rank %d: %w", it.Rank, err)
		}
		if it.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("store: item id: %w", err)
		}
	}
	return nil
}

const snapshotColumns = `id, run_id, source, captured_at, hour_bucket_at, hour_bucket_key,
	raw_url, status, error_message, item_count, duration_ms`

// GetSnapshot returns the snapshot with its items.
func (s *Store) GetSnapshot(ctx context.Context, id int64) (*ranking.Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM ranking_snapshot WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if err != nil {
		return nil, err
	}
	if snap.Items, err = s.Items(ctx, snap.ID); err != nil {
		return nil, err
	}
	return snap, nil
}

// ListSnapshots returns snapshots without items, newest first.
func (s *Store) ListSnapshots(ctx context.Context, f Filter) ([]*ranking.Snapshot, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var (
		where []string
		args  []any
	)
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, f.Source)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	q := `SELECT ` + snapshotColumns + ` FROM ranking_snapshot`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY captured_at_ms DESC, id DESC LIMIT ?`
	args = append(args, limit)

	return s.querySnapshots(ctx, q, args...)
}

// SnapshotsByBucket returns every snapshot of an hour bucket, oldest first.
func (s *Store) SnapshotsByBucket(ctx context.Context, key string) ([]*ranking.Snapshot, error) {
	return s.querySnapshots(ctx,
		`SELECT `+snapshotColumns+` FROM ranking_snapshot
		WHERE hour_bucket_key = ? ORDER BY captured_at_ms, id`, key)
}

// LatestSuccess returns the newest SUCCESS snapshot of source, items included.
func (s *Store) LatestSuccess(ctx context.Context, source string) (*ranking.Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM ranking_snapshot
		WHERE source = ? AND status = ?
		ORDER BY captured_at_ms DESC, id DESC LIMIT 1`, source, string(ranking.StatusSuccess))
	snap, err := scanSnapshot(row)
	if err != nil {
		return nil, err
	}
	if snap.Items, err = s.Items(ctx, snap.ID); err != nil {
		return nil, err
	}
	return snap, nil
}

// Items returns the items of a snapshot ordered by rank.
func (s *Store) Items(ctx context.Context, snapshotID int64) ([]ranking.Item, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, snapshot_id, rank_no, brand, product, price, product_url, image_url
		FROM ranking_item WHERE snapshot_id = ? ORDER BY rank_no, id`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("store: query items: %w", err)
	}
	defer rows.Close()

	var items []ranking.Item
	for rows.Next() {
		var (
			it       ranking.Item
			url, img sql.NullString
		)
		if err := rows.Scan(&it.ID, &it.SnapshotID, &it.Rank, &it.Brand, &it.Product,
			&it.Price, &url, &img); err != nil {
			return nil, fmt.Errorf("store: scan item: %w", err)
		}
		it.ProductURL, it.ImageURL = url.String, img.String
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) querySnapshots(ctx context.Context, q string, args ...any) ([]*ranking.Snapshot, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query snapshots: %w", err)
	}
	defer rows.Close()

	var out []*ranking.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(sc scanner) (*ranking.Snapshot, error) {
	var (
		snap               ranking.Snapshot
		captured, bucketAt string
		status             string
		errMsg             sql.NullString
	)
	err := sc.Scan(&snap.ID, &snap.RunID, &snap.Source, &captured, &bucketAt,
		&snap.HourBucketKey, &snap.RawURL, &status, &errMsg, &snap.ItemCount, &snap.DurationMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan snapshot: %w", err)
	}
	if snap.CapturedAt, err = parseTime(captured); err != nil {
		return nil, err
	}
	if snap.HourBucketAt, err = parseTime(bucketAt); err != nil {
		return nil, err
	}
	snap.Status = ranking.Status(status)
	snap.ErrorMessage = errMsg.String
	return &snap, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse time %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
