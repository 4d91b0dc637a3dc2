// Package ranking holds the data model shared by the rankwatch pipeline:
// extracted candidates, the immutable snapshot produced by one collection
// run, and the items a successful snapshot owns.
//
// ranking carries no behaviour beyond small invariants. Fetching, parsing
// and persistence live in rankwatch/internal.
package ranking

import (
	"encoding/json"
	"time"
)

// Status is the terminal outcome of a collection run.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Valid reports whether s is one of the two terminal statuses.
func (s Status) Valid() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Candidate is a ranking record extracted from a page, before persistence.
// Brand, Product and Price are mandatory; extractors drop records missing
// any of them. ProductURL and ImageURL are empty when absent.
type Candidate struct {
	Rank       int    `json:"rank"`
	Brand      string `json:"brand"`
	Product    string `json:"product"`
	Price      int64  `json:"price"`
	ProductURL string `json:"product_url,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
}

// Snapshot is one capture of a source at a point in time.
// ErrorMessage is set iff Status is FAILED; Items is non-empty iff Status
// is SUCCESS.
type Snapshot struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id"`
	Source        string    `json:"source"`
	CapturedAt    time.Time `json:"captured_at"`
	HourBucketAt  time.Time `json:"hour_bucket_at"`
	HourBucketKey string    `json:"hour_bucket_key"`
	RawURL        string    `json:"raw_url"`
	Status        Status    `json:"status"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	ItemCount     int       `json:"item_count"`
	DurationMs    int64     `json:"duration_ms"`
	Items         []Item    `json:"items,omitempty"`
}

// Item is one ranked product owned by a SUCCESS snapshot.
type Item struct {
	ID         int64  `json:"id"`
	SnapshotID int64  `json:"snapshot_id"`
	Rank       int    `json:"rank"`
	Brand      string `json:"brand"`
	Product    string `json:"product"`
	Price      int64  `json:"price"`
	ProductURL string `json:"product_url,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
}

// ItemFromCandidate binds a candidate to its owning snapshot.
func ItemFromCandidate(snapshotID int64, c Candidate) Item {
	return Item{
		SnapshotID: snapshotID,
		Rank:       c.Rank,
		Brand:      c.Brand,
		Product:    c.Product,
		Price:      c.Price,
		ProductURL: c.ProductURL,
		ImageURL:   c.ImageURL,
	}
}

// Succeeded reports whether the snapshot carries items.
func (s *Snapshot) Succeeded() bool {
	return s.Status == StatusSuccess
}

// MarshalSnapshot encodes a snapshot, items included, as a bare JSON object.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return json.Marshal(s)
}
