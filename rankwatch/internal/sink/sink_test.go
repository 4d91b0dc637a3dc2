package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/rankcap/rankwatch/ranking"
)

func testSnapshot(status ranking.Status) *ranking.Snapshot {
	s := &ranking.Snapshot{
		ID:            7,
		RunID:         "0190f2c4-run",
		Source:        "OLIVEYOUNG_KR",
		CapturedAt:    time.Date(2024, 3, 1, 10, 47, 0, 0, time.FixedZone("", 9*3600)),
		HourBucketKey: "OLIVEYOUNG_KR|2024030110+0900",
		Status:        status,
	}
	if status == ranking.StatusSuccess {
		s.ItemCount = 1
		s.Items = []ranking.Item{{ID: 1, SnapshotID: 7, Rank: 1, Brand: "B", Product: "P", Price: 1000}}
	} else {
		s.ErrorMessage = "blocked content detected"
	}
	return s
}

type stubSink struct {
	err    error
	calls  int
	closed bool
}

func (s *stubSink) Publish(context.Context, *ranking.Snapshot) error { s.calls++; return s.err }
func (s *stubSink) Close() error                                     { s.closed = true; return nil }

func TestRouter_FansOutAndReturnsFirstError(t *testing.T) {
	first := errors.New("first")
	a, b, c := &stubSink{}, &stubSink{err: first}, &stubSink{err: errors.New("second")}
	r := NewRouter(nil, a, b, c)

	err := r.Publish(context.Background(), testSnapshot(ranking.StatusSuccess))
	assert.ErrorIs(t, err, first)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, c.calls)
	assert.Equal(t, 3, r.Len())

	require.NoError(t, r.Close())
	assert.True(t, a.closed && b.closed && c.closed)
}

func TestStdout_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)

	require.NoError(t, s.Publish(context.Background(), testSnapshot(ranking.StatusSuccess)))
	require.NoError(t, s.Publish(context.Background(), testSnapshot(ranking.StatusFailed)))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var env struct {
		Type string           `json:"type"`
		Data ranking.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(lines[1], &env))
	assert.Equal(t, "snapshot", env.Type)
	assert.Equal(t, ranking.StatusFailed, env.Data.Status)
	assert.Equal(t, "blocked content detected", env.Data.ErrorMessage)
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"hour_bucket_key":"OLIVEYOUNG_KR|2024030110+0900"`)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL,
		WithWebhookBackoff(time.Millisecond),
		WithWebhookHeader("Authorization", "Bearer t0k"))
	require.NoError(t, w.Publish(context.Background(), testSnapshot(ranking.StatusSuccess)))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "Bearer t0k", gotAuth)
}

func TestWebhook_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	err := w.Publish(context.Background(), testSnapshot(ranking.StatusSuccess))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhook_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(2), WithWebhookBackoff(time.Millisecond))
	require.Error(t, w.Publish(context.Background(), testSnapshot(ranking.StatusSuccess)))
	assert.Equal(t, int32(3), calls.Load())
}

type fakeRedis struct {
	published map[string][][]byte
	set       map[string][]byte
	ttl       time.Duration
	pubErr    error
	closed    bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{published: map[string][][]byte{}, set: map[string][]byte{}}
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.pubErr != nil {
		return redis.NewIntResult(0, f.pubErr)
	}
	f.published[channel] = append(f.published[channel], message.([]byte))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.set[key] = value.([]byte)
	f.ttl = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Close() error { f.closed = true; return nil }

func TestRedis_PublishesAndStoresLatestSuccess(t *testing.T) {
	fake := newFakeRedis()
	r := newRedis(fake, RedisConfig{LatestTTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, r.Publish(ctx, testSnapshot(ranking.StatusSuccess)))
	require.NoError(t, r.Publish(ctx, testSnapshot(ranking.StatusFailed)))

	assert.Len(t, fake.published[DefaultRedisChannel], 2)
	require.Contains(t, fake.set, LatestKey("OLIVEYOUNG_KR"))
	var latest ranking.Snapshot
	require.NoError(t, json.Unmarshal(fake.set["rankwatch:latest:OLIVEYOUNG_KR"], &latest))
	assert.Equal(t, ranking.StatusSuccess, latest.Status)
	assert.Equal(t, "OLIVEYOUNG_KR|2024030110+0900", latest.HourBucketKey)
	assert.Contains(t, string(fake.published[DefaultRedisChannel][0]), `"type":"snapshot"`)
	assert.Equal(t, time.Hour, fake.ttl)

	require.NoError(t, r.Close())
	assert.True(t, fake.closed)
}

func TestRedis_PublishError(t *testing.T) {
	fake := newFakeRedis()
	fake.pubErr = errors.New("connection refused")
	r := newRedis(fake, RedisConfig{Channel: "custom"})

	err := r.Publish(context.Background(), testSnapshot(ranking.StatusSuccess))
	require.Error(t, err)
	assert.Empty(t, fake.set)
}

func TestKafka_KeyedByBucket(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "rankings" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "OLIVEYOUNG_KR|2024030110+0900" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	k := NewKafkaWithProducer(producer, "rankings")
	require.NoError(t, k.Publish(context.Background(), testSnapshot(ranking.StatusSuccess)))

	err := k.Publish(context.Background(), testSnapshot(ranking.StatusFailed))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	require.NoError(t, k.Close())
}

func TestKafka_DefaultTopic(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	k := NewKafkaWithProducer(producer, "")
	assert.Equal(t, DefaultKafkaTopic, k.topic)
	require.NoError(t, k.Close())
}
