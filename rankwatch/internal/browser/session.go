// Package browser launches disposable headless Chrome sessions through Rod.
//
// Every Session owns its own Chrome process and a throwaway profile
// directory. Nothing is shared between sessions: cookies, cache and storage
// die with Close. Callers open one Session per fetch attempt.
package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures session launches.
type Config struct {
	// Bin is the Chrome binary. Empty lets the launcher find or download one.
	Bin string

	// NoSandbox disables the Chrome sandbox (containers running as root).
	NoSandbox bool

	// Stealth applies go-rod/stealth evasions to every page.
	Stealth bool

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is one isolated Chrome process.
type Session struct {
	cfg     Config
	browser *rod.Browser
	lnch    *launcher.Launcher
	routers []*rod.HijackRouter
}

// Launch starts a fresh headless Chrome bound to ctx. The caller must Close
// the session on every path.
func Launch(ctx context.Context, cfg Config) (*Session, error) {
	cfg.defaults()

	l := launcher.New().
		Context(ctx).
		Headless(true).
		Leakless(true).
		Set("disable-blink-features", "AutomationControlled")
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.NoSandbox {
		l = l.NoSandbox(true)
	}

	u, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	b := rod.New().Context(ctx).ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		cfg.Logger.Debug("browser: ignore cert errors failed", "error", err)
	}

	cfg.Logger.Debug("browser: session launched", "control_url", u)
	return &Session{cfg: cfg, browser: b, lnch: l}, nil
}

// NewPage opens a blank tab with stealth and resource blocking applied.
func (s *Session) NewPage() (*rod.Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if s.cfg.Stealth {
		page, err = stealth.Page(s.browser)
	} else {
		page, err = s.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	if len(s.cfg.ResourceBlocking) > 0 {
		s.routers = append(s.routers, applyResourceBlocking(page, s.cfg.ResourceBlocking))
	}
	return page, nil
}

// Close stops request interception, closes Chrome and removes its profile
// directory. Safe to call more than once.
func (s *Session) Close() error {
	for _, r := range s.routers {
		if err := r.Stop(); err != nil {
			s.cfg.Logger.Debug("browser: stop hijack router", "error", err)
		}
	}
	s.routers = nil

	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Kill()
		s.lnch.Cleanup()
		s.lnch = nil
	}
	return err
}
