package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/rankcap/rankwatch/internal/browser"
)

// chromeAttempter returns an attempter bound to a locally installed Chrome,
// skipping the test when none is available.
func chromeAttempter(t *testing.T, timeout time.Duration) *browserAttempter {
	t.Helper()
	if testing.Short() {
		t.Skip("renders with Chrome")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no Chrome found")
	}
	return newBrowserAttempter(RenderConfig{
		Browser: browser.Config{Bin: bin, NoSandbox: true},
		Timeout: timeout,
	})
}

func renderServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	page := func(status int, body string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}
	}
	mux.HandleFunc("/ranking", page(http.StatusOK,
		`<html><head><title>Best</title></head><body><ul><li><span class="tx_brand">A</span><p class="tx_name">Toner</p><span class="tx_cur">1,000</span></li></ul></body></html>`))
	mux.HandleFunc("/error", page(http.StatusInternalServerError,
		`<html><head><title>Oops</title></head><body>server error</body></html>`))
	mux.HandleFunc("/denied", page(http.StatusForbidden,
		`<html><head><title>Forbidden</title></head><body>go away</body></html>`))
	mux.HandleFunc("/empty", page(http.StatusOK,
		`<html><head><title>Maintenance</title></head><body><p>back soon</p></body></html>`))
	mux.HandleFunc("/guarded", page(http.StatusOK,
		`<html><head><title>Access Denied</title></head><body><ul><li><p class="tx_name">x</p></li></ul></body></html>`))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBrowserAttempt(t *testing.T) {
	a := chromeAttempter(t, 3*time.Second)
	srv := renderServer(t)
	ctx := context.Background()

	t.Run("rendered ranking list", func(t *testing.T) {
		resp, err := a.Attempt(ctx, srv.URL+"/ranking")
		require.NoError(t, err)
		assert.Contains(t, resp.Body, `class="tx_name"`)
		assert.Contains(t, resp.ContentType, "text/html")
		assert.Equal(t, srv.URL+"/ranking", resp.URL)
	})

	t.Run("server error status", func(t *testing.T) {
		_, err := a.Attempt(ctx, srv.URL+"/error")
		fe, ok := AsError(err)
		require.True(t, ok, "%v", err)
		assert.Equal(t, KindHTTPError, fe.Kind)
		assert.Equal(t, http.StatusInternalServerError, fe.Status)
		assert.Equal(t, "Oops", fe.Title)
	})

	t.Run("forbidden status is blocked", func(t *testing.T) {
		_, err := a.Attempt(ctx, srv.URL+"/denied")
		assert.True(t, IsBlocked(err), "%v", err)
	})

	t.Run("missing list times out with page metadata", func(t *testing.T) {
		_, err := a.Attempt(ctx, srv.URL+"/empty")
		fe, ok := AsError(err)
		require.True(t, ok, "%v", err)
		assert.Equal(t, KindRenderTimeout, fe.Kind)
		assert.True(t, fe.Timeout())
		assert.True(t, fe.HasMetadata())
		assert.Equal(t, "Maintenance", fe.Title)
		assert.Contains(t, fe.BodyPrefix, "back soon")
	})

	t.Run("block page with list markers", func(t *testing.T) {
		_, err := a.Attempt(ctx, srv.URL+"/guarded")
		fe, ok := AsError(err)
		require.True(t, ok, "%v", err)
		assert.Equal(t, KindBlocked, fe.Kind)
		assert.Equal(t, "blocked content detected", fe.Message)
		assert.Equal(t, http.StatusOK, fe.Status)
	})
}
