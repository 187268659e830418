package devtools

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"

	"github.com/vango-dev/reactor/pkg/reactive"
)

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorderObservesRuntime(t *testing.T) {
	rec := NewRecorder()
	rt := reactive.New(reactive.WithObserver(rec), reactive.WithLogger(discardLogger()))

	count := reactive.NewRef(rt, 0)
	rt.Watch(count, func(_, _ any, _ reactive.OnCleanup) {})
	count.Set(1)
	rt.Flush()
	rt.Readonly(reactive.NewObject()).Set("a", 1)

	events := rec.Snapshot()
	assert.Equal(t, []EventType{
		EventEffect,
		EventFlushStart,
		EventEffect,
		EventFlushEnd,
		EventWarning,
	}, eventTypes(events))

	assert.Equal(t, string(reactive.KindWatcher), events[0].Kind)
	require.NotNil(t, events[3].Stats)
	assert.Equal(t, 1, events[3].Stats.Passes)
	assert.Equal(t, 1, events[3].Stats.Jobs)
	assert.Equal(t, "R101", events[4].Code)

	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
}

func TestRecorderRing(t *testing.T) {
	rec := NewRecorder(WithBufferSize(3))

	rec.Warned("R100")
	rec.Warned("R101")
	assert.Len(t, rec.Snapshot(), 2)

	rec.Warned("R102")
	rec.Warned("R103")
	rec.Warned("R104")

	events := rec.Snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, "R102", events[0].Code)
	assert.Equal(t, "R104", events[2].Code)
	assert.Equal(t, uint64(5), events[2].Seq)

	stats := rec.Stats()
	assert.Equal(t, uint64(5), stats.Total)
	assert.Equal(t, 3, stats.Buffered)
}

func TestRecorderOptions(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := NewRecorder(WithSkipEffects(true), WithClock(func() time.Time { return at }))

	rec.EffectRun(reactive.KindEffect)
	rec.ErrorReported(reactive.LabelEffect)

	events := rec.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Equal(t, "effect", events[0].Label)
	assert.Equal(t, at, events[0].Time)
}

func TestRecorderSubscribe(t *testing.T) {
	rec := NewRecorder(WithSubscriberBuffer(2))
	sub := rec.Subscribe()
	other := rec.Subscribe()
	assert.NotEqual(t, sub.ID, other.ID)
	assert.Equal(t, 2, rec.Stats().Subscribers)

	other.Close()
	other.Close()
	assert.Equal(t, 1, rec.Stats().Subscribers)
	_, open := <-other.Events
	assert.False(t, open, "closed subscription channel")

	rec.FlushStarted(0)
	rec.FlushStarted(1)
	rec.FlushStarted(2)

	first := <-sub.Events
	assert.Equal(t, EventFlushStart, first.Type)
	assert.Equal(t, 0, first.Depth)
	second := <-sub.Events
	assert.Equal(t, 1, second.Depth)
	assert.Equal(t, uint64(1), rec.Stats().Dropped, "third event overflows the buffer")

	sub.Close()
	rec.Warned("R100")
	assert.Equal(t, 0, rec.Stats().Subscribers)
}

func TestFrameCodec(t *testing.T) {
	data, err := EncodeFrame(&Frame{Type: FrameEvent, Event: &Event{
		Seq:   7,
		Type:  EventFlushEnd,
		Stats: &FlushSummary{Passes: 2, Jobs: 5},
	}})
	require.NoError(t, err)

	f, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, FrameEvent, f.Type)
	require.NotNil(t, f.Event)
	assert.Equal(t, uint64(7), f.Event.Seq)
	assert.Equal(t, 5, f.Event.Stats.Jobs)

	bad, err := EncodeFrame(&Frame{Type: "bogus"})
	require.NoError(t, err)
	_, err = DecodeFrame(bad)
	assert.Error(t, err)

	_, err = DecodeFrame([]byte{0xc1})
	assert.Error(t, err)
}

func newTestServer(t *testing.T, rec *Recorder) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "devtools_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := NewServer(Config{Recorder: rec, Gatherer: reg, Logger: discardLogger()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServerEndpoints(t *testing.T) {
	rec := NewRecorder()
	rec.Warned("R100")
	rec.Warned("R101")
	rec.Warned("R102")
	ts := newTestServer(t, rec)

	t.Run("healthz", func(t *testing.T) {
		code, body := get(t, ts.URL+"/healthz")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body)
	})

	t.Run("metrics", func(t *testing.T) {
		code, body := get(t, ts.URL+"/metrics")
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, "devtools_test_total 1")
	})

	t.Run("snapshot", func(t *testing.T) {
		code, body := get(t, ts.URL+"/snapshot?limit=2")
		require.Equal(t, http.StatusOK, code)

		var snap SnapshotResponse
		require.NoError(t, json.Unmarshal([]byte(body), &snap))
		require.Len(t, snap.Events, 2)
		assert.Equal(t, "R101", snap.Events[0].Code)
		assert.Equal(t, uint64(3), snap.Stats.Total)
	})

	t.Run("snapshot bad limit", func(t *testing.T) {
		code, _ := get(t, ts.URL+"/snapshot?limit=-1")
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("unknown route", func(t *testing.T) {
		code, _ := get(t, ts.URL+"/nope")
		assert.Equal(t, http.StatusNotFound, code)
	})
}

func readFrame(t *testing.T, conn *websocket.Conn) *Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)
	f, err := DecodeFrame(data)
	require.NoError(t, err)
	return f
}

func TestServerEventStream(t *testing.T) {
	rec := NewRecorder()
	rec.Warned("R100")
	ts := newTestServer(t, rec)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readFrame(t, conn)
	assert.Equal(t, FrameHello, hello.Type)
	assert.NotEmpty(t, hello.ClientID)
	assert.Equal(t, uint64(1), hello.Seq)

	rec.FlushCompleted(reactive.FlushStats{Passes: 1, Jobs: 2})
	rec.ErrorReported(reactive.LabelWatchCallback)

	f := readFrame(t, conn)
	require.Equal(t, FrameEvent, f.Type)
	assert.Equal(t, EventFlushEnd, f.Event.Type)
	assert.Equal(t, 2, f.Event.Stats.Jobs)

	f = readFrame(t, conn)
	assert.Equal(t, EventError, f.Event.Type)
	assert.Equal(t, uint64(3), f.Event.Seq)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return rec.Stats().Subscribers == 0 },
		2*time.Second, 10*time.Millisecond, "subscription released after disconnect")
}

func TestServerSpeaksH2C(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(Config{Logger: discardLogger(), Gatherer: prometheus.NewRegistry()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, resp.ProtoMajor)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
