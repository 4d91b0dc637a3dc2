package rankwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hazyhaar/rankcap/rankwatch/internal/browser"
	"github.com/hazyhaar/rankcap/rankwatch/internal/collect"
	"github.com/hazyhaar/rankcap/rankwatch/internal/extract"
	"github.com/hazyhaar/rankcap/rankwatch/internal/fetch"
	"github.com/hazyhaar/rankcap/rankwatch/internal/schedule"
	"github.com/hazyhaar/rankcap/rankwatch/internal/sink"
	"github.com/hazyhaar/rankcap/rankwatch/internal/source"
	"github.com/hazyhaar/rankcap/rankwatch/internal/store"
	"github.com/hazyhaar/rankcap/rankwatch/ranking"
)

// Service is the rankwatch orchestrator.
type Service struct {
	cfg       *Config
	sources   *source.Registry
	store     *store.Store
	ownsStore bool
	sinks     *sink.Router
	pipeline  *collect.Pipeline
	scheduler *schedule.Scheduler
	logger    *slog.Logger
}

type serviceOptions struct {
	logger      *slog.Logger
	fetcher     fetch.Fetcher
	store       *store.Store
	sinks       []sink.Sink
	sinksSet    bool
	collectOpts []collect.Option
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*serviceOptions)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = l }
}

// WithFetcher replaces the fetcher built from Config.Fetch and Config.Browser.
func WithFetcher(f fetch.Fetcher) ServiceOption {
	return func(o *serviceOptions) { o.fetcher = f }
}

// WithStore uses an already-open store instead of opening Config.Store.Path.
// The caller keeps ownership: Close does not close it.
func WithStore(s *store.Store) ServiceOption {
	return func(o *serviceOptions) { o.store = s }
}

// WithSinks replaces the sinks built from Config.Sinks.
func WithSinks(sinks ...sink.Sink) ServiceOption {
	return func(o *serviceOptions) { o.sinks, o.sinksSet = sinks, true }
}

// WithCollectOptions passes options through to the collection pipeline.
func WithCollectOptions(opts ...collect.Option) ServiceOption {
	return func(o *serviceOptions) { o.collectOpts = append(o.collectOpts, opts...) }
}

// New creates a Service. cfg is defaulted and validated; it is not copied.
func New(cfg *Config, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("rankwatch: nil config")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	registry, err := cfg.registry()
	if err != nil {
		return nil, fmt.Errorf("rankwatch: %w", err)
	}

	svc := &Service{cfg: cfg, sources: registry, logger: logger}

	svc.store = o.store
	if svc.store == nil {
		svc.store, err = store.Open(cfg.Store.Path,
			store.WithMkdirAll(), store.WithBusyTimeout(cfg.Store.BusyTimeoutMs))
		if err != nil {
			return nil, fmt.Errorf("rankwatch: %w", err)
		}
		svc.ownsStore = true
	}

	fetcher := o.fetcher
	if fetcher == nil {
		if fetcher, err = buildFetcher(cfg, logger); err != nil {
			svc.closeStore()
			return nil, err
		}
	}

	sinks := o.sinks
	if !o.sinksSet {
		if sinks, err = buildSinks(cfg.Sinks, logger); err != nil {
			svc.closeStore()
			return nil, err
		}
	}
	svc.sinks = sink.NewRouter(logger, sinks...)

	collectOpts := append([]collect.Option{
		collect.WithLogger(logger),
		collect.WithPublisher(svc.sinks),
	}, o.collectOpts...)
	svc.pipeline, err = collect.New(registry, fetcher, extract.New(), svc.store, collectOpts...)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("rankwatch: %w", err)
	}

	svc.scheduler, err = schedule.New(schedule.Config{
		Interval:     cfg.Schedule.Interval,
		InitialDelay: cfg.Schedule.InitialDelay,
		Spec:         cfg.Schedule.Cron,
	}, svc.runScheduled, logger)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("rankwatch: %w", err)
	}
	return svc, nil
}

func buildFetcher(cfg *Config, logger *slog.Logger) (fetch.Fetcher, error) {
	mode, err := fetch.ParseMode(cfg.Fetch.Mode)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.Fetch.TimeoutMs) * time.Millisecond
	policy := fetch.Policy{
		MaxAttempts: cfg.Fetch.Retry.MaxAttempts,
		Backoff:     cfg.Fetch.Retry.backoff(),
	}

	rendered := fetch.NewRendered(fetch.RenderConfig{
		Browser: browser.Config{
			Bin:              cfg.Browser.Bin,
			NoSandbox:        cfg.Browser.NoSandbox,
			Stealth:          cfg.Browser.Stealth == nil || *cfg.Browser.Stealth,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Logger:           logger,
		},
		Timeout:       timeout,
		ReadySelector: cfg.Fetch.ReadySelector,
	}, policy, fetch.WithLogger(logger))

	plain, err := fetch.NewHTTP(fetch.HTTPConfig{
		Timeout:          timeout,
		UserAgent:        cfg.Fetch.UserAgent,
		CloudflareBypass: cfg.Fetch.CloudflareBypass,
	}, policy, fetch.WithHTTPLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("rankwatch: %w", err)
	}
	return fetch.ForMode(mode, rendered, plain, logger)
}

func buildSinks(cfgs []SinkConfig, logger *slog.Logger) ([]sink.Sink, error) {
	out := make([]sink.Sink, 0, len(cfgs))
	for i, sc := range cfgs {
		switch strings.ToLower(sc.Type) {
		case "stdout":
			out = append(out, sink.NewStdout(os.Stdout))
		case "webhook":
			opts := []sink.WebhookOption{sink.WithWebhookLogger(logger)}
			if sc.Retries > 0 {
				opts = append(opts, sink.WithWebhookRetries(sc.Retries))
			}
			for k, v := range sc.Headers {
				opts = append(opts, sink.WithWebhookHeader(k, v))
			}
			out = append(out, sink.NewWebhook(sc.URL, opts...))
		case "redis":
			out = append(out, sink.NewRedis(sink.RedisConfig{
				Addr:      sc.Addr,
				Password:  sc.Password,
				DB:        sc.DB,
				Channel:   sc.Channel,
				LatestTTL: sc.LatestTTL,
			}))
		case "kafka":
			k, err := sink.NewKafka(sink.KafkaConfig{Brokers: sc.Brokers, Topic: sc.Topic})
			if err != nil {
				for _, s := range out {
					s.Close()
				}
				return nil, fmt.Errorf("rankwatch: sinks[%d]: %w", i, err)
			}
			out = append(out, k)
		default:
			return nil, fmt.Errorf("rankwatch: sinks[%d]: unknown type %q", i, sc.Type)
		}
		logger.Info("rankwatch: sink enabled", "type", sc.Type)
	}
	return out, nil
}

// Config returns the effective configuration.
func (svc *Service) Config() *Config { return svc.cfg }

// Sources returns the configured source ids in lexical order.
func (svc *Service) Sources() []string { return svc.sources.IDs() }

// Collect captures one source now. See collect.Pipeline.Collect.
func (svc *Service) Collect(ctx context.Context, sourceID string) (*Snapshot, error) {
	return svc.pipeline.Collect(ctx, sourceID)
}

// CollectAll captures every unpaused source in configuration order. A
// failing source does not stop the others; errors are joined. FAILED
// captures are not errors.
func (svc *Service) CollectAll(ctx context.Context) ([]*Snapshot, error) {
	return svc.collectIDs(ctx, svc.cfg.scheduled())
}

// CollectSources captures the given sources in order, or every unpaused
// source when ids is empty.
func (svc *Service) CollectSources(ctx context.Context, ids ...string) ([]*Snapshot, error) {
	if len(ids) == 0 {
		return svc.CollectAll(ctx)
	}
	return svc.collectIDs(ctx, ids)
}

func (svc *Service) collectIDs(ctx context.Context, ids []string) ([]*Snapshot, error) {
	var (
		snaps []*Snapshot
		errs  []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		snap, err := svc.pipeline.Collect(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, errors.Join(errs...)
}

func (svc *Service) runScheduled(ctx context.Context) {
	snaps, err := svc.CollectAll(ctx)
	if err != nil {
		svc.logger.Error("rankwatch: scheduled collection", "error", err)
	}
	failed := 0
	for _, s := range snaps {
		if !s.Succeeded() {
			failed++
		}
	}
	svc.logger.Info("rankwatch: scheduled collection done",
		"snapshots", len(snaps), "failed", failed, "next", svc.scheduler.Next())
}

// Start arms the scheduler. Non-blocking.
func (svc *Service) Start(ctx context.Context) {
	svc.scheduler.Start(ctx)
	svc.logger.Info("rankwatch: started", "sources", svc.cfg.scheduled(), "sinks", svc.sinks.Len())
}

// Stop halts the scheduler and waits for a running collection.
func (svc *Service) Stop() {
	svc.scheduler.Stop()
}

// Snapshots lists snapshots newest first, without items.
func (svc *Service) Snapshots(ctx context.Context, f Filter) ([]*Snapshot, error) {
	return svc.store.ListSnapshots(ctx, f)
}

// Snapshot returns one snapshot with its items, or ErrNotFound.
func (svc *Service) Snapshot(ctx context.Context, id int64) (*Snapshot, error) {
	return svc.store.GetSnapshot(ctx, id)
}

// BucketSnapshots returns every capture of one hour bucket, oldest first.
func (svc *Service) BucketSnapshots(ctx context.Context, key string) ([]*Snapshot, error) {
	return svc.store.SnapshotsByBucket(ctx, key)
}

// LatestSuccess returns the newest SUCCESS snapshot of a source, or ErrNotFound.
func (svc *Service) LatestSuccess(ctx context.Context, sourceID string) (*Snapshot, error) {
	if _, err := svc.sources.Resolve(sourceID); err != nil {
		return nil, err
	}
	return svc.store.LatestSuccess(ctx, sourceID)
}

// Close stops the scheduler and releases sinks and the owned store.
func (svc *Service) Close() error {
	if svc.scheduler != nil {
		svc.scheduler.Stop()
	}
	var errs []error
	if svc.sinks != nil {
		errs = append(errs, svc.sinks.Close())
	}
	errs = append(errs, svc.closeStore())
	svc.logger.Info("rankwatch: closed")
	return errors.Join(errs...)
}

func (svc *Service) closeStore() error {
	if !svc.ownsStore || svc.store == nil {
		return nil
	}
	svc.ownsStore = false
	return svc.store.Close()
}

// parseStatus accepts SUCCESS/FAILED in any case; empty matches all.
func parseStatus(s string) (ranking.Status, error) {
	switch st := ranking.Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case "":
		return "", nil
	case ranking.StatusSuccess, ranking.StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}
