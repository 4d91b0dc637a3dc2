package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/rankcap/rankwatch/internal/browser"
)

// ReadySelector matches any element proving the ranking list rendered.
const ReadySelector = "li:has(.tx_name), li:has(.tx_brand), [data-prd-name], [data-goods-name], [data-brand-name]"

const (
	networkIdle       = 500 * time.Millisecond
	diagnosticTimeout = 2 * time.Second
)

// RenderConfig configures browser-backed attempts.
type RenderConfig struct {
	Browser browser.Config

	// Timeout bounds navigation and, separately, the ready-selector wait. Default: 5s.
	Timeout time.Duration

	// ReadySelector overrides the default ranking-list marker.
	ReadySelector string
}

func (c *RenderConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.ReadySelector == "" {
		c.ReadySelector = ReadySelector
	}
}

type browserAttempter struct {
	cfg RenderConfig
}

func newBrowserAttempter(cfg RenderConfig) *browserAttempter {
	cfg.defaults()
	return &browserAttempter{cfg: cfg}
}

// Attempt launches a dedicated Chrome, renders url and classifies the
// result. The session is torn down before Attempt returns.
func (a *browserAttempter) Attempt(ctx context.Context, url string) (resp *Response, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, newError(KindRenderFault, "render error", url, fmt.Errorf("panic: %v", r))
		}
	}()

	sess, err := browser.Launch(ctx, a.cfg.Browser)
	if err != nil {
		return nil, newError(KindRenderFault, "render error", url, err)
	}
	defer sess.Close()

	page, err := sess.NewPage()
	if err != nil {
		return nil, newError(KindRenderFault, "render error", url, err)
	}
	page = page.Context(ctx)

	doc := watchDocument(page)

	navCtx, navCancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer navCancel()
	nav := page.Context(navCtx)

	idle := nav.WaitRequestIdle(networkIdle, nil, nil, nil)
	if err := nav.Navigate(url); err != nil {
		return nil, newError(KindRenderFault, "render error", url, err)
	}
	idle()
	if err := navCtx.Err(); err != nil {
		return nil, newError(KindRenderFault, "render error", url, err)
	}

	status, contentType := doc.get()

	if status >= 400 {
		title, html := readDiagnostics(ctx, page)
		return nil, classifyStatus(url, status, contentType, title, html)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer waitCancel()
	if _, err := page.Context(waitCtx).Element(a.cfg.ReadySelector); err != nil {
		title, html := readDiagnostics(ctx, page)
		kind, msg := KindRenderFault, "render error"
		if isTimeout(err) {
			kind, msg = KindRenderTimeout, "render timeout"
		}
		return nil, &Error{
			Kind:        kind,
			Message:     msg,
			URL:         url,
			Status:      status,
			ContentType: contentType,
			Title:       title,
			BodyPrefix:  trimPrefix(html),
			Err:         err,
		}
	}

	title, html := readDiagnostics(ctx, page)
	if isBlocked(html, title) {
		return nil, &Error{
			Kind:        KindBlocked,
			Message:     "blocked content detected",
			URL:         url,
			Status:      status,
			ContentType: contentType,
			Title:       title,
			BodyPrefix:  trimPrefix(html),
		}
	}

	return &Response{ContentType: contentType, Body: html, URL: url}, nil
}

// readDiagnostics reads the page title and HTML. Read failures yield empty
// values so they never mask the error being reported.
func readDiagnostics(ctx context.Context, page *rod.Page) (title, html string) {
	dctx, cancel := context.WithTimeout(ctx, diagnosticTimeout)
	defer cancel()
	p := page.Context(dctx)

	if res, err := p.Eval(`() => document.title`); err == nil {
		title = res.Value.Str()
	}
	if h, err := p.HTML(); err == nil {
		html = h
	}
	return title, html
}

// documentResponse records the status and content type of the first
// main-document response seen on a page.
type documentResponse struct {
	mu          sync.Mutex
	status      int
	contentType string
}

func watchDocument(page *rod.Page) *documentResponse {
	d := &documentResponse{}
	_ = proto.NetworkEnable{}.Call(page)

	wait := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
			return false
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		d.status = e.Response.Status
		d.contentType = headerValue(e.Response.Headers, "content-type")
		if d.contentType == "" {
			d.contentType = e.Response.MIMEType
		}
		return true
	})
	go wait()

	return d
}

func (d *documentResponse) get() (int, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status, d.contentType
}

func headerValue(h proto.NetworkHeaders, name string) string {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v.Str()
		}
	}
	return ""
}
