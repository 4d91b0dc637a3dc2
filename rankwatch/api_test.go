package rankwatch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/rankcap/rankwatch/internal/collect"
	"github.com/hazyhaar/rankcap/rankwatch/ranking"
)

func doJSON(t *testing.T, h http.Handler, method, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestAPI_Health(t *testing.T) {
	svc, _ := newTestService(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, doJSON(t, svc.Handler(), "GET", "/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAPI_Sources(t *testing.T) {
	svc, _ := newTestService(t)
	var views []sourceView
	require.Equal(t, http.StatusOK, doJSON(t, svc.Handler(), "GET", "/api/sources", &views))
	require.Len(t, views, 3)
	assert.Equal(t, "OLIVEYOUNG_KR", views[0].ID)
	assert.Equal(t, "https://shop.example/ranking/best", views[0].URL)
	assert.Equal(t, "+09:00", views[0].Offset)
	assert.True(t, views[2].Paused)
}

func TestAPI_CollectAndRead(t *testing.T) {
	clock := time.Date(2024, 3, 1, 1, 47, 0, 0, time.UTC)
	svc, _ := newTestService(t, WithCollectOptions(collect.WithClock(func() time.Time { return clock })))
	h := svc.Handler()

	var snap ranking.Snapshot
	require.Equal(t, http.StatusOK, doJSON(t, h, "POST", "/api/sources/OLIVEYOUNG_KR/collect", &snap))
	assert.Equal(t, ranking.StatusSuccess, snap.Status)
	assert.Equal(t, "OLIVEYOUNG_KR|2024030110+0900", snap.HourBucketKey)

	var blocked ranking.Snapshot
	require.Equal(t, http.StatusOK, doJSON(t, h, "POST", "/api/sources/BLOCKED_KR/collect", &blocked))
	assert.Equal(t, ranking.StatusFailed, blocked.Status)

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, doJSON(t, h, "POST", "/api/sources/NOPE/collect", &errBody))
	assert.Contains(t, errBody["error"], "NOPE")

	var one ranking.Snapshot
	require.Equal(t, http.StatusOK, doJSON(t, h, "GET", "/api/snapshots/"+strconv.FormatInt(snap.ID, 10), &one))
	assert.Len(t, one.Items, 2)

	assert.Equal(t, http.StatusNotFound, doJSON(t, h, "GET", "/api/snapshots/999", nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, h, "GET", "/api/snapshots/abc", nil))

	var failed []ranking.Snapshot
	require.Equal(t, http.StatusOK, doJSON(t, h, "GET", "/api/snapshots?status=failed", &failed))
	require.Len(t, failed, 1)
	assert.Equal(t, "BLOCKED_KR", failed[0].Source)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, h, "GET", "/api/snapshots?status=partial", nil))

	var bucket []ranking.Snapshot
	path := "/api/buckets/" + url.PathEscape("OLIVEYOUNG_KR|2024030110+0900") + "/snapshots"
	require.Equal(t, http.StatusOK, doJSON(t, h, "GET", path, &bucket))
	require.Len(t, bucket, 1)
	assert.Equal(t, snap.ID, bucket[0].ID)

	var latest ranking.Snapshot
	require.Equal(t, http.StatusOK, doJSON(t, h, "GET", "/api/sources/OLIVEYOUNG_KR/latest", &latest))
	assert.Equal(t, snap.ID, latest.ID)
	assert.Equal(t, http.StatusNotFound, doJSON(t, h, "GET", "/api/sources/BLOCKED_KR/latest", nil))
}
