package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/rankcap/rankwatch/internal/source"
)

// Mode selects how the rendered and HTTP fetchers are combined.
type Mode string

const (
	ModeRendered Mode = "rendered"
	ModeHTTP     Mode = "http"
	ModeFallback Mode = "fallback"
	ModeAuto     Mode = "auto"
)

// ParseMode validates s. Empty means ModeRendered.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeRendered, nil
	case ModeRendered, ModeHTTP, ModeFallback, ModeAuto:
		return m, nil
	default:
		return "", fmt.Errorf("fetch: unknown mode %q", s)
	}
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, src source.Config) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, src source.Config) (*Response, error) {
	return f(ctx, src)
}

// Fallback tries Primary and, unless it was blocked, Secondary. When both
// fail the primary error is returned.
type Fallback struct {
	Primary   Fetcher
	Secondary Fetcher
	Logger    *slog.Logger
}

func (f *Fallback) Fetch(ctx context.Context, src source.Config) (*Response, error) {
	resp, err := f.Primary.Fetch(ctx, src)
	if err == nil {
		return resp, nil
	}
	if IsBlocked(err) || ctx.Err() != nil {
		return nil, err
	}
	logger(f.Logger).Warn("fetch: primary failed, falling back", "source", src.ID, "error", err)

	resp, serr := f.Secondary.Fetch(ctx, src)
	if serr != nil {
		logger(f.Logger).Warn("fetch: fallback failed", "source", src.ID, "error", serr)
		return nil, err
	}
	return resp, nil
}

// Auto fetches over plain HTTP first and escalates to the browser when the
// HTTP path fails without being blocked or returns an unrendered shell.
type Auto struct {
	HTTP     Fetcher
	Rendered Fetcher
	Logger   *slog.Logger
}

func (a *Auto) Fetch(ctx context.Context, src source.Config) (*Response, error) {
	resp, err := a.HTTP.Fetch(ctx, src)
	switch {
	case err != nil && (IsBlocked(err) || ctx.Err() != nil):
		return nil, err
	case err != nil:
		logger(a.Logger).Info("fetch: http failed, escalating to browser", "source", src.ID, "error", err)
	case IsSufficient(resp):
		return resp, nil
	default:
		logger(a.Logger).Info("fetch: http body insufficient, escalating to browser", "source", src.ID)
	}
	return a.Rendered.Fetch(ctx, src)
}

// ForMode composes rendered and plain according to mode.
func ForMode(mode Mode, rendered, plain Fetcher, l *slog.Logger) (Fetcher, error) {
	switch mode {
	case ModeRendered, "":
		return rendered, nil
	case ModeHTTP:
		return plain, nil
	case ModeFallback:
		return &Fallback{Primary: rendered, Secondary: plain, Logger: l}, nil
	case ModeAuto:
		return &Auto{HTTP: plain, Rendered: rendered, Logger: l}, nil
	default:
		return nil, fmt.Errorf("fetch: unknown mode %q", mode)
	}
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
