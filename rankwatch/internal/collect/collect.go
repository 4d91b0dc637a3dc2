// Package collect runs one capture of a source: fetch, extract, dedupe,
// bucket, classify, persist, publish.
//
// Every run ends in exactly one persisted snapshot, SUCCESS or FAILED,
// unless the source id is unknown or persistence itself fails.
package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hazyhaar/rankcap/rankwatch/internal/bucket"
	"github.com/hazyhaar/rankcap/rankwatch/internal/fetch"
	"github.com/hazyhaar/rankcap/rankwatch/internal/source"
	"github.com/hazyhaar/rankcap/rankwatch/ranking"
)

const instrumentationName = "github.com/hazyhaar/rankcap/rankwatch/collect"

const (
	msgUnexpected = "unexpected error"
	msgNoItems    = "no items parsed"
)

// Resolver looks up a source by id.
type Resolver interface {
	Resolve(id string) (source.Config, error)
}

// Extractor turns a fetched page into candidates.
type Extractor interface {
	Extract(contentType, body string) ([]ranking.Candidate, error)
}

// Saver persists a snapshot and its items atomically, assigning IDs.
type Saver interface {
	Save(ctx context.Context, snap *ranking.Snapshot) error
}

// Publisher receives every persisted snapshot.
type Publisher interface {
	Publish(ctx context.Context, snap *ranking.Snapshot) error
}

// Pipeline collects snapshots. It holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	sources   Resolver
	fetcher   fetch.Fetcher
	extractor Extractor
	saver     Saver
	publisher Publisher

	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	snapshots      metric.Int64Counter
	duration       metric.Float64Histogram
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithPublisher sets where persisted snapshots are published.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDGenerator overrides run id generation (UUIDv7 by default).
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) { p.newID = fn }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) { p.tracerProvider = tp }
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *Pipeline) { p.meterProvider = mp }
}

// New creates a Pipeline.
func New(sources Resolver, fetcher fetch.Fetcher, extractor Extractor, saver Saver, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		sources:        sources,
		fetcher:        fetcher,
		extractor:      extractor,
		saver:          saver,
		logger:         slog.Default(),
		now:            time.Now,
		newID:          newRunID,
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, o := range opts {
		o(p)
	}

	p.tracer = p.tracerProvider.Tracer(instrumentationName)
	meter := p.meterProvider.Meter(instrumentationName)

	var err error
	p.snapshots, err = meter.Int64Counter("rankwatch.collect.snapshots",
		metric.WithDescription("Snapshots persisted, by status."))
	if err != nil {
		return nil, fmt.Errorf("collect: counter: %w", err)
	}
	p.duration, err = meter.Float64Histogram("rankwatch.collect.duration_ms",
		metric.WithDescription("Wall time of one collection run."),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("collect: histogram: %w", err)
	}
	return p, nil
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Collect captures sourceID once. An unknown source returns an error
// wrapping source.ErrUnsupported and no snapshot. A persistence failure is
// returned together with the snapshot that could not be saved.
func (p *Pipeline) Collect(ctx context.Context, sourceID string) (*ranking.Snapshot, error) {
	src, err := p.sources.Resolve(sourceID)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}

	start := p.now()
	capturedAt := start.In(src.Offset)
	hb := bucket.Of(capturedAt, src.Offset, src.ID)

	snap := &ranking.Snapshot{
		RunID:         p.newID(),
		Source:        src.ID,
		CapturedAt:    capturedAt,
		HourBucketAt:  hb.At,
		HourBucketKey: hb.Key,
		RawURL:        src.ResolveURL(),
	}

	ctx, span := p.tracer.Start(ctx, "rankwatch.collect", trace.WithAttributes(
		attribute.String("rankwatch.source", src.ID),
		attribute.String("rankwatch.run_id", snap.RunID),
		attribute.String("rankwatch.bucket", hb.Key),
	))
	defer span.End()

	log := p.logger.With("run_id", snap.RunID, "source", src.ID, "bucket", hb.Key)

	p.capture(ctx, src, snap, log, span)
	snap.DurationMs = p.now().Sub(start).Milliseconds()

	statusAttr := metric.WithAttributes(attribute.String("status", string(snap.Status)))
	p.duration.Record(ctx, float64(snap.DurationMs), statusAttr)
	span.SetAttributes(
		attribute.String("rankwatch.status", string(snap.Status)),
		attribute.Int("rankwatch.item_count", snap.ItemCount),
	)

	if err := p.saver.Save(ctx, snap); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist snapshot")
		log.Error("collect: persist snapshot", "status", snap.Status, "error", err)
		return snap, fmt.Errorf("collect: persist snapshot: %w", err)
	}
	p.snapshots.Add(ctx, 1, statusAttr)

	log.Info("collect: snapshot saved",
		"snapshot_id", snap.ID, "status", snap.Status,
		"item_count", snap.ItemCount, "duration_ms", snap.DurationMs)

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, snap); err != nil {
			log.Warn("collect: publish snapshot", "snapshot_id", snap.ID, "error", err)
		}
	}
	return snap, nil
}

// capture fills snap's outcome. It never returns an error: every failure
// becomes a FAILED snapshot.
func (p *Pipeline) capture(ctx context.Context, src source.Config, snap *ranking.Snapshot, log *slog.Logger, span trace.Span) {
	resp, err := p.fetcher.Fetch(ctx, src)
	if err != nil {
		p.fail(snap, err, log, span)
		return
	}
	if resp.URL != "" {
		snap.RawURL = resp.URL
	}

	candidates, err := p.extractor.Extract(resp.ContentType, resp.Body)
	if err != nil {
		p.fail(snap, err, log, span)
		return
	}

	candidates = DedupeByRank(candidates)
	if len(candidates) == 0 {
		p.fail(snap, errors.New(msgNoItems), log, span)
		return
	}

	snap.Status = ranking.StatusSuccess
	snap.ItemCount = len(candidates)
	snap.Items = make([]ranking.Item, len(candidates))
	for i, c := range candidates {
		snap.Items[i] = ranking.ItemFromCandidate(0, c)
	}
}

func (p *Pipeline) fail(snap *ranking.Snapshot, err error, log *slog.Logger, span trace.Span) {
	snap.Status = ranking.StatusFailed
	snap.ErrorMessage = failureMessage(err)
	snap.ItemCount = 0
	snap.Items = nil

	span.RecordError(err)
	span.SetStatus(codes.Error, snap.ErrorMessage)

	attrs := []any{"error", snap.ErrorMessage}
	if fe, ok := fetch.AsError(err); ok {
		attrs = append(attrs, "kind", fe.Kind.String(), "url", fe.URL)
		span.SetAttributes(attribute.String("rankwatch.fetch.kind", fe.Kind.String()))
		if fe.HasMetadata() {
			attrs = append(attrs,
				"http_status", fe.Status,
				"content_type", fe.ContentType,
				"title", fe.Title,
				"body_prefix", fe.BodyPrefix)
			span.SetAttributes(
				attribute.Int("rankwatch.fetch.http_status", fe.Status),
				attribute.String("rankwatch.fetch.content_type", fe.ContentType),
				attribute.String("rankwatch.fetch.title", fe.Title),
			)
		}
	}
	if fetch.IsBlocked(err) {
		log.Warn("collect: source blocked automated access", attrs...)
		return
	}
	log.Warn("collect: capture failed", attrs...)
}

func failureMessage(err error) string {
	if err == nil || err.Error() == "" {
		return msgUnexpected
	}
	return err.Error()
}

// DedupeByRank keeps the first candidate of each rank, preserving order.
func DedupeByRank(in []ranking.Candidate) []ranking.Candidate {
	seen := make(map[int]struct{}, len(in))
	out := make([]ranking.Candidate, 0, len(in))
	for _, c := range in {
		if _, dup := seen[c.Rank]; dup {
			continue
		}
		seen[c.Rank] = struct{}{}
		out = append(out, c)
	}
	return out
}
