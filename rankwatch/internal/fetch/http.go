package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"

	"github.com/hazyhaar/rankcap/rankwatch/internal/source"
)

const (
	// DefaultUserAgent identifies the HTTP path to the source.
	DefaultUserAgent = "Mozilla/5.0 (compatible; OYRankBot/1.0)"

	acceptHeader   = "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8"
	acceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"

	maxBodyBytes = 10 << 20
)

// HTTPConfig configures the non-rendering fetcher.
type HTTPConfig struct {
	// Timeout bounds each request. Default: 5s.
	Timeout time.Duration
	// UserAgent defaults to DefaultUserAgent.
	UserAgent string
	// CloudflareBypass wraps the transport with browser-like TLS and headers.
	CloudflareBypass bool
}

func (c *HTTPConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
}

// HTTP fetches list pages without a browser.
type HTTP struct {
	client *resty.Client
	policy Policy
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

// HTTPOption configures an HTTP fetcher.
type HTTPOption func(*HTTP)

// WithHTTPLogger sets a custom logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTP) { h.logger = l }
}

// NewHTTP builds a resty-backed fetcher with a public-suffix aware cookie jar.
func NewHTTP(cfg HTTPConfig, policy Policy, opts ...HTTPOption) (*HTTP, error) {
	cfg.defaults()

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	client.SetCookieJar(jar)
	client.SetHeader("User-Agent", cfg.UserAgent)
	client.SetHeader("Accept", acceptHeader)
	client.SetHeader("Accept-Language", acceptLanguage)
	if cfg.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	h := &HTTP{
		client: client,
		policy: policy,
		logger: slog.Default(),
		sleep:  sleepCtx,
	}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// Fetch GETs the resolved list URL. Status failures are final; transport
// timeouts are retried under the policy.
func (h *HTTP) Fetch(ctx context.Context, src source.Config) (*Response, error) {
	target := src.ResolveURL()
	origin := originOf(src.BaseURL, target)
	log := h.logger.With("source", src.ID, "url", target)

	for attempt := 1; ; attempt++ {
		resp, err := h.attempt(ctx, target, origin)
		if err == nil {
			return resp, nil
		}
		d := h.policy.Decide(attempt, err)
		if !d.Retry {
			return nil, err
		}
		log.Warn("fetch: http attempt failed, retrying", "attempt", attempt, "error", err)
		if serr := h.sleep(ctx, d.After); serr != nil {
			return nil, err
		}
	}
}

func (h *HTTP) attempt(ctx context.Context, target, origin string) (*Response, error) {
	req := h.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if origin != "" {
		req.SetHeader("Referer", origin+"/")
		req.SetHeader("Origin", origin)
	}

	res, err := req.Get(target)
	if err != nil {
		return nil, newError(KindRenderFault, "http request error", target, err)
	}
	raw := res.RawBody()
	defer raw.Close()

	body, err := io.ReadAll(io.LimitReader(raw, maxBodyBytes))
	if err != nil {
		return nil, newError(KindRenderFault, "http request error", target, err)
	}

	contentType := res.Header().Get("Content-Type")
	if status := res.StatusCode(); status < 200 || status > 299 {
		return nil, classifyStatus(target, status, contentType, "", string(body))
	}

	final := target
	if res.RawResponse != nil && res.RawResponse.Request != nil && res.RawResponse.Request.URL != nil {
		final = res.RawResponse.Request.URL.String()
	}
	return &Response{ContentType: contentType, Body: string(body), URL: final}, nil
}

// originOf returns scheme://host of base, or of target when base is empty.
func originOf(base, target string) string {
	raw := strings.TrimSpace(base)
	if raw == "" {
		raw = target
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
