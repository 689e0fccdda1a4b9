package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chart-hub/src/logger"
	"chart-hub/src/models"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHub is a scripted hub: it records client messages and lets the test
// push frames or drop connections.
type testHub struct {
	srv      *httptest.Server
	reject   atomic.Bool
	received chan models.MClientMessage
	dials    atomic.Int32

	mu    sync.Mutex
	conns []*ws.Conn
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()

	h := &testHub{received: make(chan models.MClientMessage, 64)}
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.dials.Add(1)
		if h.reject.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.mu.Lock()
		h.conns = append(h.conns, conn)
		h.mu.Unlock()

		go func() {
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var msg models.MClientMessage
				if json.Unmarshal(raw, &msg) == nil {
					h.received <- msg
				}
			}
		}()
	}))
	t.Cleanup(func() {
		h.dropAll()
		h.srv.Close()
	})
	return h
}

func (h *testHub) url() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http")
}

func (h *testHub) push(t *testing.T, frame string) {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.conns)
	require.NoError(t, h.conns[len(h.conns)-1].WriteMessage(ws.TextMessage, []byte(frame)))
}

func (h *testHub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		c.Close()
	}
	h.conns = nil
}

func (h *testHub) next(t *testing.T) models.MClientMessage {
	t.Helper()
	select {
	case msg := <-h.received:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message from client")
		return models.MClientMessage{}
	}
}

func (h *testHub) assertSilent(t *testing.T) {
	t.Helper()
	select {
	case msg := <-h.received:
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(30 * time.Millisecond):
	}
}

// -----------------------------------------------------------------------------

func newTestClient(t *testing.T, hub *testHub, opts Options) *Client {
	t.Helper()
	opts.URL = hub.url()
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 20 * time.Millisecond
	}
	c := NewClient(opts, logger.NewLoggerWithOutput(nil, "client", io.Discard))
	t.Cleanup(func() { c.Close() })
	return c
}

func waitForState(t *testing.T, c *Client, state State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == state }, 2*time.Second, time.Millisecond,
		"want state %s, have %s", state, c.State())
}

const dataFrame = `{"type":"data","data":[
	{"id":"a","chart_name":"CPU","chart_type":"line","category":"system","metadata":{"color":"#fff","unit":"%"},"data_points":[{"x":0,"y":1}],"bounds":{"minX":0,"maxX":0,"minY":1,"maxY":1},"pointCount":1},
	{"id":"b","chart_name":"Mem","chart_type":"area","category":"memory","metadata":{"color":"#000","unit":"MB"},"data_points":[],"bounds":null,"pointCount":0}
],"timestamp":1700000000000,"source":"fresh"}`

// -----------------------------------------------------------------------------

func TestClient_ConnectRequestsData(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub, Options{})

	assert.Equal(t, StateDisconnected, c.State())
	assert.True(t, c.View().Loading)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.State())

	msg := hub.next(t)
	assert.Equal(t, models.MsgRequestData, msg.Type)
	assert.False(t, msg.Force())

	hub.push(t, dataFrame)
	require.Eventually(t, func() bool { return len(c.View().Charts) == 2 }, time.Second, time.Millisecond)

	view := c.View()
	assert.False(t, view.Loading)
	assert.Empty(t, view.Error)
	assert.Equal(t, models.SourceFresh, view.Source)
	assert.Equal(t, time.UnixMilli(1700000000000), view.LastUpdated)

	chart, ok := view.ByID("b")
	require.True(t, ok)
	assert.Nil(t, chart.Bounds)
	_, ok = view.ByID("zzz")
	assert.False(t, ok)
	assert.Len(t, view.ByCategory("system"), 1)
	assert.Empty(t, view.ByCategory("nope"))
}

func TestClient_DataWithoutRecordsIsEmptyList(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub, Options{})
	require.NoError(t, c.Connect(context.Background()))
	hub.next(t)

	hub.push(t, dataFrame)
	require.Eventually(t, func() bool { return len(c.View().Charts) == 2 }, time.Second, time.Millisecond)

	hub.push(t, `{"type":"data","timestamp":1,"source":"cache"}`)
	require.Eventually(t, func() bool { return c.View().Source == models.SourceCache }, time.Second, time.Millisecond)
	assert.NotNil(t, c.View().Charts)
	assert.Empty(t, c.View().Charts)
}

func TestClient_ErrorKeepsData(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub, Options{})
	require.NoError(t, c.Connect(context.Background()))
	hub.next(t)

	hub.push(t, dataFrame)
	require.Eventually(t, func() bool { return len(c.View().Charts) == 2 }, time.Second, time.Millisecond)

	require.NoError(t, c.Refresh(false))
	assert.True(t, c.View().Loading)

	hub.push(t, `{"type":"error","error":"source unreachable","timestamp":1}`)
	require.Eventually(t, func() bool { return c.View().Error != "" }, time.Second, time.Millisecond)

	view := c.View()
	assert.Equal(t, "source unreachable", view.Error)
	assert.False(t, view.Loading)
	assert.Len(t, view.Charts, 2)

	// the next data message clears the error
	hub.push(t, dataFrame)
	require.Eventually(t, func() bool { return c.View().Error == "" }, time.Second, time.Millisecond)
}

func TestClient_PongOnlyUpdatesConnections(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub, Options{})
	require.NoError(t, c.Connect(context.Background()))
	hub.next(t)

	before := c.View()
	hub.push(t, `{"type":"pong","connections":4,"cacheStatus":"loaded","lastFetch":5,"timestamp":6}`)
	require.Eventually(t, func() bool { return c.View().Connections == 4 }, time.Second, time.Millisecond)

	after := c.View()
	after.Connections = before.Connections
	assert.Equal(t, before, after)
}

func TestClient_IgnoresUnknownAndMalformed(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub, Options{})
	require.NoError(t, c.Connect(context.Background()))
	hub.next(t)

	var changes atomic.Int32
	c.Subscribe(func(View) { changes.Add(1) })

	hub.push(t, `{"type":"mystery"}`)
	hub.push(t, `not json`)
	hub.push(t, `{"type":"pong","connections":1}`)

	require.Eventually(t, func() bool { return c.View().Connections == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), changes.Load())
	assert.Equal(t, StateConnected, c.State())
}

func TestClient_RefreshWhenNotConnected(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub, Options{})

	assert.ErrorIs(t, c.Refresh(true), ErrNotConnected)
	hub.assertSilent(t)
	assert.Equal(t, int32(0), hub.dials.Load())
}

func TestClient_RefreshForce(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub, Options{})
	require.NoError(t, c.Connect(context.Background()))
	hub.next(t)

	require.NoError(t, c.Refresh(true))

	msg := hub.next(t)
	assert.Equal(t, models.MsgRequestData, msg.Type)
	assert.True(t, msg.Force())
	assert.True(t, c.View().Loading)
	assert.Empty(t, c.View().Error)
}

func TestClient_VisibilityRefresh(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub, Options{})
	require.NoError(t, c.Connect(context.Background()))
	hub.next(t)

	// already visible, nothing to do
	c.SetVisible(true)
	hub.assertSilent(t)

	c.SetVisible(false)
	hub.assertSilent(t)

	c.SetVisible(true)
	msg := hub.next(t)
	assert.Equal(t, models.MsgRequestData, msg.Type)
	assert.True(t, msg.Force())
}

func TestClient_PingsOnInterval(t *testing.T) {
	hub := newTestHub(t)
	clock := clockwork.NewFakeClock()
	c := newTestClient(t, hub, Options{Clock: clock, PingInterval: 30 * time.Second})
	require.NoError(t, c.Connect(context.Background()))
	hub.next(t)

	clock.BlockUntil(1)
	clock.Advance(29 * time.Second)
	hub.assertSilent(t)

	clock.Advance(time.Second)
	assert.Equal(t, models.MsgPing, hub.next(t).Type)

	clock.Advance(30 * time.Second)
	assert.Equal(t, models.MsgPing, hub.next(t).Type)
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub, Options{})
	require.NoError(t, c.Connect(context.Background()))
	hub.next(t)

	hub.push(t, dataFrame)
	require.Eventually(t, func() bool { return len(c.View().Charts) == 2 }, time.Second, time.Millisecond)

	var states []State
	var mu sync.Mutex
	c.Subscribe(func(v View) {
		mu.Lock()
		states = append(states, v.State)
		mu.Unlock()
	})

	hub.dropAll()

	// reconnect re-requests data on the new connection
	msg := hub.next(t)
	assert.Equal(t, models.MsgRequestData, msg.Type)
	waitForState(t, c, StateConnected)
	assert.Len(t, c.View().Charts, 2, "records survive a reconnect")

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, StateReconnecting)
	assert.Contains(t, states, StateConnecting)
}

func TestClient_ReconnectResumesPinging(t *testing.T) {
	hub := newTestHub(t)
	clock := clockwork.NewFakeClock()
	c := newTestClient(t, hub, Options{
		Clock:          clock,
		ReconnectDelay: 5 * time.Second,
		PingInterval:   30 * time.Second,
	})
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, models.MsgRequestData, hub.next(t).Type)

	hub.dropAll()
	waitForState(t, c, StateReconnecting)

	clock.Advance(5*time.Second - time.Millisecond)
	hub.assertSilent(t)
	assert.Equal(t, int32(1), hub.dials.Load())

	// one retry interval later the client is back and asks for data
	clock.Advance(time.Millisecond)
	assert.Equal(t, models.MsgRequestData, hub.next(t).Type)
	waitForState(t, c, StateConnected)
	assert.Equal(t, int32(2), hub.dials.Load())

	clock.Advance(30 * time.Second)
	assert.Equal(t, models.MsgPing, hub.next(t).Type)
	assert.Equal(t, StateConnected, c.State())
}

func TestClient_SilentHubTimesOut(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub, Options{PingInterval: 20 * time.Millisecond})

	var timedOut atomic.Bool
	c.Subscribe(func(v View) {
		if v.State == StateReconnecting && strings.Contains(v.Error, "timeout") {
			timedOut.Store(true)
		}
	})

	require.NoError(t, c.Connect(context.Background()))

	// the hub reads pings but never answers
	require.Eventually(t, timedOut.Load, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return hub.dials.Load() >= 2 }, 2*time.Second, time.Millisecond)
	c.Close()
}

func TestClient_ViewIsDetached(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub, Options{})
	require.NoError(t, c.Connect(context.Background()))
	hub.next(t)

	hub.push(t, dataFrame)
	require.Eventually(t, func() bool { return len(c.View().Charts) == 2 }, time.Second, time.Millisecond)

	view := c.View()
	view.Charts[0].ChartName = "changed"
	view.Charts[0].DataPoints[0].Y = 99
	view.Charts[0].Bounds.MaxY = 99

	again := c.View()
	assert.Equal(t, "CPU", again.Charts[0].ChartName)
	assert.Equal(t, 1.0, again.Charts[0].DataPoints[0].Y)
	assert.Equal(t, 1.0, again.Charts[0].Bounds.MaxY)
}

func TestClient_RetriesFailedDial(t *testing.T) {
	hub := newTestHub(t)
	hub.reject.Store(true)
	c := newTestClient(t, hub, Options{})

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateReconnecting, c.State())
	assert.NotEmpty(t, c.View().Error)

	require.Eventually(t, func() bool { return hub.dials.Load() >= 2 }, 2*time.Second, time.Millisecond)

	hub.reject.Store(false)
	waitForState(t, c, StateConnected)
	assert.Equal(t, models.MsgRequestData, hub.next(t).Type)
}

func TestClient_CloseStopsEverything(t *testing.T) {
	hub := newTestHub(t)
	c := newTestClient(t, hub, Options{})
	require.NoError(t, c.Connect(context.Background()))
	hub.next(t)

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	var changes atomic.Int32
	c.Subscribe(func(View) { changes.Add(1) })

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, StateDisconnected, c.State())

	c.handleMessage(gen, []byte(dataFrame))
	assert.Empty(t, c.View().Charts)
	assert.Equal(t, int32(0), changes.Load())

	assert.ErrorIs(t, c.Refresh(false), ErrClosed)
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClosed)

	dials := hub.dials.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, dials, hub.dials.Load(), "no reconnect after Close")
}

func TestClient_BackoffDelay(t *testing.T) {
	fixed := NewClient(Options{ReconnectDelay: time.Second}, nil)
	for i := 0; i < 4; i++ {
		fixed.attempts = i
		assert.Equal(t, time.Second, fixed.nextDelay())
	}

	capped := NewClient(Options{ReconnectDelay: time.Second, MaxReconnectDelay: 5 * time.Second}, nil)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, d := range want {
		capped.attempts = i
		assert.Equal(t, d, capped.nextDelay(), "attempt %d", i)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "state(9)", State(9).String())
}
