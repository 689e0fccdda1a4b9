package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"chart-hub/src/interfaces"
	"chart-hub/src/logger"
	"chart-hub/src/metrics"
	"chart-hub/src/models"

	"github.com/bytedance/sonic"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL        = 30 * time.Second
	DefaultRefreshInterval = 60 * time.Second
	DefaultFetchTimeout    = 15 * time.Second

	// every caller shares one in-flight fetch
	fetchKey = "charts"
)

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

type HubOptions struct {
	CacheTTL        time.Duration
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	Clock           clockwork.Clock
}

// HubOptionsFromConfig converts the hub section of the config; zero values
// fall back to the defaults.
func HubOptionsFromConfig(cfg *models.MConfig) HubOptions {
	return HubOptions{
		CacheTTL:        time.Duration(cfg.Hub.CacheTTLSeconds) * time.Second,
		RefreshInterval: time.Duration(cfg.Hub.RefreshIntervalSeconds) * time.Second,
		FetchTimeout:    time.Duration(cfg.Hub.FetchTimeoutSeconds) * time.Second,
	}
}

func (o *HubOptions) applyDefaults() {
	if o.CacheTTL <= 0 {
		o.CacheTTL = DefaultCacheTTL
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = DefaultRefreshInterval
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
}

// -----------------------------------------------------------------------------
// Command types
// -----------------------------------------------------------------------------

type hubCmd interface{ hubCmd() }

type cmdJoin struct {
	conn interfaces.IConnection
	done chan struct{}
}

func (cmdJoin) hubCmd() {}

type cmdLeave struct {
	conn interfaces.IConnection
	done chan struct{}
}

func (cmdLeave) hubCmd() {}

type cmdBroadcast struct {
	msg  *models.MServerMessage
	done chan struct{}
}

func (cmdBroadcast) hubCmd() {}

type cmdCount struct {
	replyCh chan int
}

func (cmdCount) hubCmd() {}

// -----------------------------------------------------------------------------
// Hub
// -----------------------------------------------------------------------------

// Hub owns the shared chart snapshot and the connection registry. The
// registry and the refresh scheduler handle belong to the run goroutine; the
// snapshot is swapped atomically and may be read from anywhere.
type Hub struct {
	Logger *logger.Logger

	source interfaces.IChartSource
	opts   HubOptions
	clock  clockwork.Clock

	snapshot atomic.Pointer[models.MSnapshot]
	fetches  singleflight.Group

	cmdCh   chan hubCmd
	clients map[string]interfaces.IConnection

	refreshStop chan struct{}
	refreshWg   sync.WaitGroup

	observersMu sync.RWMutex
	observers   []func(*models.MSnapshot)

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// -----------------------------------------------------------------------------

func NewHub(source interfaces.IChartSource, log *logger.Logger, opts HubOptions) *Hub {
	opts.applyDefaults()

	h := &Hub{
		Logger:  log,
		source:  source,
		opts:    opts,
		clock:   opts.Clock,
		cmdCh:   make(chan hubCmd),
		clients: make(map[string]interfaces.IConnection),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go h.run()
	return h
}

// -----------------------------------------------------------------------------

// run is the registry loop. Commands are processed to completion, in order.
func (h *Hub) run() {
	defer close(h.doneCh)

	for {
		select {
		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case cmdJoin:
				h.handleJoin(c.conn)
				close(c.done)
			case cmdLeave:
				h.handleLeave(c.conn)
				close(c.done)
			case cmdBroadcast:
				h.handleBroadcast(c.msg)
				close(c.done)
			case cmdCount:
				c.replyCh <- len(h.clients)
			}

		case <-h.stopCh:
			h.stopRefresh()
			for id, conn := range h.clients {
				conn.Close()
				delete(h.clients, id)
			}
			metrics.ConnectionsCurrent.Set(0)
			return
		}
	}
}

// -----------------------------------------------------------------------------

// exec hands cmd to the loop and waits for done. It returns false once the
// hub is stopped.
func (h *Hub) exec(cmd hubCmd, done <-chan struct{}) bool {
	select {
	case h.cmdCh <- cmd:
	case <-h.doneCh:
		return false
	}
	select {
	case <-done:
		return true
	case <-h.doneCh:
		return false
	}
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// Join registers conn and, when a snapshot exists, replays it to conn only.
func (h *Hub) Join(conn interfaces.IConnection) {
	done := make(chan struct{})
	if !h.exec(cmdJoin{conn: conn, done: done}, done) {
		conn.Close()
	}
}

func (h *Hub) handleJoin(conn interfaces.IConnection) {
	h.clients[conn.ID()] = conn
	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsCurrent.Set(float64(len(h.clients)))
	h.Logger.Info("Connection %s joined (total: %d)", conn.ID(), len(h.clients))

	if len(h.clients) == 1 {
		h.startRefresh()
	}

	if snap := h.snapshot.Load(); snap != nil {
		if err := conn.Send(models.NewDataMessage(snap, models.SourceCache)); err != nil {
			h.Logger.Warning("Replay to %s failed, removing: %v", conn.ID(), err)
			metrics.SendFailuresTotal.Inc()
			h.remove(conn)
		}
	}
}

// -----------------------------------------------------------------------------

// Leave unregisters conn. Unknown connections are ignored.
func (h *Hub) Leave(conn interfaces.IConnection) {
	done := make(chan struct{})
	h.exec(cmdLeave{conn: conn, done: done}, done)
}

func (h *Hub) handleLeave(conn interfaces.IConnection) {
	if _, ok := h.clients[conn.ID()]; !ok {
		return
	}
	h.remove(conn)
	h.Logger.Info("Connection %s left (total: %d)", conn.ID(), len(h.clients))
}

// remove must run on the loop goroutine.
func (h *Hub) remove(conn interfaces.IConnection) {
	delete(h.clients, conn.ID())
	conn.Close()
	metrics.ConnectionsCurrent.Set(float64(len(h.clients)))

	if len(h.clients) == 0 {
		h.stopRefresh()
	}
}

// -----------------------------------------------------------------------------

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	replyCh := make(chan int, 1)
	select {
	case h.cmdCh <- cmdCount{replyCh: replyCh}:
	case <-h.doneCh:
		return 0
	}
	return <-replyCh
}

// -----------------------------------------------------------------------------
// Broadcast
// -----------------------------------------------------------------------------

// Broadcast delivers snap to every registered connection. A connection whose
// send fails is removed; the others still receive the message.
func (h *Hub) Broadcast(snap *models.MSnapshot, source models.DataSource) {
	msg := models.NewDataMessage(snap, source)
	done := make(chan struct{})
	h.exec(cmdBroadcast{msg: msg, done: done}, done)
}

func (h *Hub) handleBroadcast(msg *models.MServerMessage) {
	metrics.BroadcastsTotal.Inc()

	for _, conn := range h.clients {
		if err := conn.Send(msg); err != nil {
			h.Logger.Warning("Send to %s failed, removing: %v", conn.ID(), err)
			metrics.SendFailuresTotal.Inc()
			h.remove(conn)
		}
	}
}

// -----------------------------------------------------------------------------
// Snapshot
// -----------------------------------------------------------------------------

// Snapshot returns the current snapshot, or nil before the first fetch.
func (h *Hub) Snapshot() *models.MSnapshot {
	return h.snapshot.Load()
}

// OnSnapshot registers fn to run after every snapshot replacement.
func (h *Hub) OnSnapshot(fn func(*models.MSnapshot)) {
	h.observersMu.Lock()
	h.observers = append(h.observers, fn)
	h.observersMu.Unlock()
}

func (h *Hub) publish(snap *models.MSnapshot) {
	h.snapshot.Store(snap)
	metrics.SnapshotCharts.Set(float64(snap.Len()))

	h.observersMu.RLock()
	observers := h.observers
	h.observersMu.RUnlock()
	for _, fn := range observers {
		fn(snap)
	}
}

// -----------------------------------------------------------------------------

// cacheStatus returns the pong fields describing the snapshot.
func (h *Hub) cacheStatus() (string, int64) {
	snap := h.snapshot.Load()
	if snap == nil {
		return models.CacheStatusEmpty, 0
	}
	if snap.Fallback {
		return models.CacheStatusLoaded, 0
	}
	return models.CacheStatusLoaded, snap.FetchedAt.UnixMilli()
}

// -----------------------------------------------------------------------------
// Message handling
// -----------------------------------------------------------------------------

// HandleMessage processes one inbound frame from conn. Malformed or unknown
// frames are logged and dropped.
func (h *Hub) HandleMessage(ctx context.Context, conn interfaces.IConnection, raw []byte) {
	var msg models.MClientMessage
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		metrics.MessagesReceived.WithLabelValues("invalid").Inc()
		h.Logger.Warning("Ignoring malformed message from %s: %v", conn.ID(), err)
		return
	}

	switch msg.Type {
	case models.MsgRequestData:
		metrics.MessagesReceived.WithLabelValues(models.MsgRequestData).Inc()
		snap, source, err := h.GetData(ctx, msg.Force())
		if err != nil {
			h.Logger.Error("No data for %s: %v", conn.ID(), err)
			if sendErr := conn.Send(models.NewErrorMessage(err.Error(), h.clock.Now().UnixMilli())); sendErr != nil {
				h.Logger.Debug("Error reply to %s failed: %v", conn.ID(), sendErr)
			}
			return
		}
		h.Broadcast(snap, source)

	case models.MsgPing:
		metrics.MessagesReceived.WithLabelValues(models.MsgPing).Inc()
		status, lastFetch := h.cacheStatus()
		pong := models.NewPongMessage(h.ConnectionCount(), status, lastFetch, h.clock.Now().UnixMilli())
		if err := conn.Send(pong); err != nil {
			h.Logger.Debug("Pong to %s failed: %v", conn.ID(), err)
		}

	default:
		metrics.MessagesReceived.WithLabelValues("invalid").Inc()
		h.Logger.Warning("Ignoring unknown message type %q from %s", msg.Type, conn.ID())
	}
}

// -----------------------------------------------------------------------------
// Refresh scheduler
// -----------------------------------------------------------------------------

// startRefresh and stopRefresh run on the loop goroutine only.
func (h *Hub) startRefresh() {
	if h.refreshStop != nil {
		return
	}
	stop := make(chan struct{})
	h.refreshStop = stop

	// cancelled with the scheduler so Stop never waits out a slow fetch
	ctx, cancel := context.WithCancel(context.Background())

	h.refreshWg.Add(1)
	go func() {
		defer h.refreshWg.Done()
		defer cancel()

		ticker := h.clock.NewTicker(h.opts.RefreshInterval)
		defer ticker.Stop()

		go func() {
			select {
			case <-stop:
				cancel()
			case <-ctx.Done():
			}
		}()

		for {
			select {
			case <-ticker.Chan():
				// a tick can race with a stop; the stop wins
				select {
				case <-stop:
					return
				default:
				}
				h.Logger.Debug("Auto-refreshing charts")
				snap, source, err := h.GetData(ctx, true)
				if ctx.Err() != nil {
					return
				}
				if err == nil {
					h.Broadcast(snap, source)
				}
			case <-stop:
				return
			}
		}
	}()
	h.Logger.Debug("Refresh scheduler started (every %v)", h.opts.RefreshInterval)
}

func (h *Hub) stopRefresh() {
	if h.refreshStop == nil {
		return
	}
	close(h.refreshStop)
	h.refreshStop = nil
	h.Logger.Debug("Refresh scheduler stopped")
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Stop closes every connection and stops the scheduler. Safe to call twice.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	<-h.doneCh
	h.refreshWg.Wait()
}
