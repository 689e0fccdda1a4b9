package server

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chart-hub/src/logger"
	"chart-hub/src/models"

	"github.com/jonboulle/clockwork"
)

// fakeSource returns charts (or err) and counts calls. When gate is set,
// FetchCharts waits for it to be closed.
type fakeSource struct {
	mu     sync.Mutex
	charts []models.MRawChart
	err    error
	gate   chan struct{}
	calls  atomic.Int32
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchCharts(ctx context.Context) ([]models.MRawChart, error) {
	f.calls.Add(1)

	f.mu.Lock()
	gate, charts, err := f.gate, f.charts, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return charts, nil
}

func (f *fakeSource) set(charts []models.MRawChart, err error) {
	f.mu.Lock()
	f.charts, f.err = charts, err
	f.mu.Unlock()
}

func (f *fakeSource) block() chan struct{} {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	return gate
}

// -----------------------------------------------------------------------------

// fakeConn records every message it is sent. failSend makes Send fail.
type fakeConn struct {
	id       string
	mu       sync.Mutex
	msgs     []*models.MServerMessage
	failSend atomic.Bool
	closed   atomic.Bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg *models.MServerMessage) error {
	if c.failSend.Load() || c.closed.Load() {
		return errors.New("send failed")
	}
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) messages() []*models.MServerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.MServerMessage, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func (c *fakeConn) messagesOfType(typ string) []*models.MServerMessage {
	var out []*models.MServerMessage
	for _, m := range c.messages() {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

// -----------------------------------------------------------------------------

func sampleCharts() []models.MRawChart {
	return []models.MRawChart{
		{
			ID:         "a",
			ChartName:  "CPU",
			ChartType:  models.ChartTypeLine,
			Category:   "system",
			DataPoints: []models.MDataPoint{{X: 0, Y: 5}, {X: 1, Y: -2}, {X: 2, Y: 9}},
		},
		{
			ID:         "b",
			ChartName:  "Empty",
			ChartType:  models.ChartTypeBar,
			Category:   "memory",
			DataPoints: []models.MDataPoint{},
		},
	}
}

func testLogger() *logger.Logger {
	return logger.NewLoggerWithOutput(nil, "hub", io.Discard)
}

// newTestHub builds a hub on a fake clock with default TTL and refresh.
func newTestHub(t *testing.T, source *fakeSource) (*Hub, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	hub := NewHub(source, testLogger(), HubOptions{
		CacheTTL:        30 * time.Second,
		RefreshInterval: 60 * time.Second,
		FetchTimeout:    time.Second,
		Clock:           clock,
	})
	t.Cleanup(hub.Stop)
	return hub, clock
}
