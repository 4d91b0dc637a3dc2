// Package rankwatch captures e-commerce ranking pages on a schedule and keeps
// one snapshot per capture, SUCCESS with its ranked items or FAILED with the
// reason.
//
// A Service wires a source registry, a fetcher (headless Chrome, plain HTTP
// or a combination), the ranking extractor, a SQLite store and optional
// snapshot sinks. It is driven by its scheduler, the admin HTTP API or MCP
// tools.
package rankwatch

import (
	"github.com/hazyhaar/rankcap/rankwatch/internal/source"
	"github.com/hazyhaar/rankcap/rankwatch/internal/store"
	"github.com/hazyhaar/rankcap/rankwatch/ranking"
)

// Re-export the types callers outside the module tree need.
type (
	Snapshot = ranking.Snapshot
	Item     = ranking.Item
	Status   = ranking.Status
	Filter   = store.Filter
)

var (
	// ErrNotFound is returned for unknown snapshot ids.
	ErrNotFound = store.ErrNotFound
	// ErrUnsupported is wrapped when a source id is not configured.
	ErrUnsupported = source.ErrUnsupported
)
