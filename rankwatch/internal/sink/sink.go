// Package sink defines output backends for persisted ranking snapshots.
package sink

import (
	"context"

	"github.com/hazyhaar/rankcap/rankwatch/ranking"
)

// Sink delivers snapshots to one backend (stdout, webhook, Redis, Kafka).
type Sink interface {
	Publish(ctx context.Context, snap *ranking.Snapshot) error
	Close() error
}

// envelope is the JSON shape every serialising sink emits.
type envelope struct {
	Type string            `json:"type"`
	Data *ranking.Snapshot `json:"data"`
}

func wrap(snap *ranking.Snapshot) envelope {
	return envelope{Type: "snapshot", Data: snap}
}
