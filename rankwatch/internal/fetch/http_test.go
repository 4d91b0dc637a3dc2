package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/rankcap/rankwatch/internal/source"
)

func serverSource(url string) source.Config {
	return source.Config{ID: "S", BaseURL: url, ListPath: "best", Offset: time.UTC}
}

func TestHTTP_FetchSendsSourceHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		assert.Equal(t, "/best", r.URL.Path)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"list":[]}`))
	}))
	defer srv.Close()

	h, err := NewHTTP(HTTPConfig{}, Policy{MaxAttempts: 1})
	require.NoError(t, err)

	resp, err := h.Fetch(context.Background(), serverSource(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, `{"list":[]}`, resp.Body)
	assert.Equal(t, "application/json; charset=utf-8", resp.ContentType)
	assert.Equal(t, srv.URL+"/best", resp.URL)

	assert.Equal(t, DefaultUserAgent, got.Get("User-Agent"))
	assert.Equal(t, acceptLanguage, got.Get("Accept-Language"))
	assert.Equal(t, srv.URL+"/", got.Get("Referer"))
	assert.Equal(t, srv.URL, got.Get("Origin"))
}

func TestHTTP_StatusFailuresNotRetried(t *testing.T) {
	cases := []struct {
		status  int
		kind    Kind
		blocked bool
	}{
		{http.StatusForbidden, KindBlocked, true},
		{http.StatusUnauthorized, KindBlocked, true},
		{http.StatusInternalServerError, KindHTTPError, false},
		{http.StatusNotFound, KindHTTPError, false},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte("<html>nope</html>"))
			}))
			defer srv.Close()

			h, err := NewHTTP(HTTPConfig{}, Policy{MaxAttempts: 3})
			require.NoError(t, err)

			_, err = h.Fetch(context.Background(), serverSource(srv.URL))
			require.Error(t, err)
			assert.Equal(t, int32(1), calls.Load())
			assert.Equal(t, tc.blocked, IsBlocked(err))

			fe, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, tc.kind, fe.Kind)
			assert.Equal(t, tc.status, fe.Status)
			assert.Equal(t, "<html>nope</html>", fe.BodyPrefix)
		})
	}
}

func TestHTTP_TimeoutRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	h, err := NewHTTP(HTTPConfig{Timeout: 50 * time.Millisecond}, Policy{MaxAttempts: 2})
	require.NoError(t, err)

	_, err = h.Fetch(context.Background(), serverSource(srv.URL))
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())

	fe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindRenderFault, fe.Kind)
	assert.Equal(t, "http request error", fe.Message)
	assert.True(t, fe.Timeout())
}

func TestOriginOf(t *testing.T) {
	assert.Equal(t, "https://a.example", originOf("https://a.example/shop/", "ignored"))
	assert.Equal(t, "https://b.example", originOf("", "https://b.example/x?y=1"))
	assert.Equal(t, "", originOf("", "not a url"))
}
