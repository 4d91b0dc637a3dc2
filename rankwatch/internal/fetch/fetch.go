// Package fetch retrieves a source's ranking page.
//
// The primary path renders the page in a disposable headless Chrome,
// classifies the outcome (blocked, HTTP error, render timeout, fault) and
// retries render timeouts. A plain HTTP path backs it up. Both return the
// same Response and the same tagged *Error.
package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/rankcap/rankwatch/internal/source"
)

// Response is the outcome of one successful fetch attempt.
type Response struct {
	ContentType string
	Body        string
	URL         string
}

// Fetcher retrieves the list page of a source.
type Fetcher interface {
	Fetch(ctx context.Context, src source.Config) (*Response, error)
}

// Attempter performs exactly one isolated fetch attempt of url.
type Attempter interface {
	Attempt(ctx context.Context, url string) (*Response, error)
}

// AttempterFunc adapts a function to Attempter.
type AttempterFunc func(ctx context.Context, url string) (*Response, error)

func (f AttempterFunc) Attempt(ctx context.Context, url string) (*Response, error) {
	return f(ctx, url)
}

// Rendered runs attempts under a retry Policy.
type Rendered struct {
	attempter Attempter
	policy    Policy
	logger    *slog.Logger
	sleep     func(context.Context, time.Duration) error
}

// Option configures a Rendered fetcher.
type Option func(*Rendered)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Rendered) { r.logger = l }
}

// WithAttempter replaces the browser-backed attempter.
func WithAttempter(a Attempter) Option {
	return func(r *Rendered) { r.attempter = a }
}

// NewRendered builds a fetcher whose attempts drive a fresh browser session
// configured by cfg.
func NewRendered(cfg RenderConfig, policy Policy, opts ...Option) *Rendered {
	r := &Rendered{
		policy: policy,
		logger: slog.Default(),
		sleep:  sleepCtx,
	}
	for _, o := range opts {
		o(r)
	}
	if r.attempter == nil {
		cfg.Browser.Logger = r.logger
		r.attempter = newBrowserAttempter(cfg)
	}
	return r
}

// Fetch resolves the list URL and runs attempts until one succeeds or the
// policy gives up. The last attempt's error is returned.
func (r *Rendered) Fetch(ctx context.Context, src source.Config) (*Response, error) {
	url := src.ResolveURL()
	log := r.logger.With("source", src.ID, "url", url)

	for attempt := 1; ; attempt++ {
		resp, err := r.attempter.Attempt(ctx, url)
		if err == nil {
			if attempt > 1 {
				log.Info("fetch: rendered after retry", "attempt", attempt)
			}
			return resp, nil
		}

		d := r.policy.Decide(attempt, err)
		if !d.Retry {
			return nil, err
		}
		log.Warn("fetch: attempt failed, retrying",
			"attempt", attempt, "max_attempts", r.policy.attempts(),
			"backoff", d.After, "error", err)
		if serr := r.sleep(ctx, d.After); serr != nil {
			return nil, err
		}
	}
}
