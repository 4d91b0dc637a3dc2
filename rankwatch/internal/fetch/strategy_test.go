package fetch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/rankcap/rankwatch/internal/source"
)

type countingFetcher struct {
	resp  *Response
	err   error
	calls int
}

func (c *countingFetcher) Fetch(context.Context, source.Config) (*Response, error) {
	c.calls++
	return c.resp, c.err
}

var (
	spaShell = &Response{ContentType: "text/html", Body: `<!DOCTYPE html><html><head><title>App</title></head><body><div id="root"></div>` +
		`<script src="/static/js/main.js"></script>` + strings.Repeat("<!-- pad -->", 30) + `</body></html>`}
	rendered = &Response{ContentType: "text/html", Body: `<ul><li><span class="tx_name">Toner</span></li></ul>`}
)

func TestFallback(t *testing.T) {
	t.Run("primary success", func(t *testing.T) {
		p, s := &countingFetcher{resp: rendered}, &countingFetcher{resp: spaShell}
		resp, err := (&Fallback{Primary: p, Secondary: s}).Fetch(context.Background(), testSource)
		require.NoError(t, err)
		assert.Same(t, rendered, resp)
		assert.Equal(t, 0, s.calls)
	})

	t.Run("falls back on render failure", func(t *testing.T) {
		p := &countingFetcher{err: timeoutErr()}
		s := &countingFetcher{resp: rendered}
		resp, err := (&Fallback{Primary: p, Secondary: s}).Fetch(context.Background(), testSource)
		require.NoError(t, err)
		assert.Same(t, rendered, resp)
		assert.Equal(t, 1, s.calls)
	})

	t.Run("never falls back after block", func(t *testing.T) {
		p := &countingFetcher{err: &Error{Kind: KindBlocked, Message: "access denied"}}
		s := &countingFetcher{resp: rendered}
		_, err := (&Fallback{Primary: p, Secondary: s}).Fetch(context.Background(), testSource)
		assert.True(t, IsBlocked(err))
		assert.Equal(t, 0, s.calls)
	})

	t.Run("both fail returns primary error", func(t *testing.T) {
		primary := timeoutErr()
		p := &countingFetcher{err: primary}
		s := &countingFetcher{err: errors.New("secondary")}
		_, err := (&Fallback{Primary: p, Secondary: s}).Fetch(context.Background(), testSource)
		assert.Same(t, primary, err)
	})
}

func TestAuto(t *testing.T) {
	t.Run("sufficient http body kept", func(t *testing.T) {
		h := &countingFetcher{resp: &Response{ContentType: "application/json", Body: `{"list":[]}`}}
		r := &countingFetcher{resp: rendered}
		resp, err := (&Auto{HTTP: h, Rendered: r}).Fetch(context.Background(), testSource)
		require.NoError(t, err)
		assert.Equal(t, `{"list":[]}`, resp.Body)
		assert.Equal(t, 0, r.calls)
	})

	t.Run("spa shell escalates", func(t *testing.T) {
		h := &countingFetcher{resp: spaShell}
		r := &countingFetcher{resp: rendered}
		resp, err := (&Auto{HTTP: h, Rendered: r}).Fetch(context.Background(), testSource)
		require.NoError(t, err)
		assert.Same(t, rendered, resp)
		assert.Equal(t, 1, r.calls)
	})

	t.Run("http error escalates", func(t *testing.T) {
		h := &countingFetcher{err: &Error{Kind: KindHTTPError, Message: "http error", Status: 503}}
		r := &countingFetcher{resp: rendered}
		_, err := (&Auto{HTTP: h, Rendered: r}).Fetch(context.Background(), testSource)
		require.NoError(t, err)
		assert.Equal(t, 1, r.calls)
	})

	t.Run("blocked stops", func(t *testing.T) {
		h := &countingFetcher{err: &Error{Kind: KindBlocked, Message: "access denied", Status: 403}}
		r := &countingFetcher{resp: rendered}
		_, err := (&Auto{HTTP: h, Rendered: r}).Fetch(context.Background(), testSource)
		assert.True(t, IsBlocked(err))
		assert.Equal(t, 0, r.calls)
	})
}

func TestParseModeAndForMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeRendered, m)

	m, err = ParseMode(" Auto ")
	require.NoError(t, err)
	assert.Equal(t, ModeAuto, m)

	_, err = ParseMode("crawl")
	assert.Error(t, err)

	r, h := &countingFetcher{}, &countingFetcher{}
	f, err := ForMode(ModeRendered, r, h, nil)
	require.NoError(t, err)
	assert.Same(t, r, f)

	f, err = ForMode(ModeHTTP, r, h, nil)
	require.NoError(t, err)
	assert.Same(t, h, f)

	f, err = ForMode(ModeFallback, r, h, nil)
	require.NoError(t, err)
	assert.IsType(t, &Fallback{}, f)

	_, err = ForMode("nope", r, h, nil)
	assert.Error(t, err)
}
