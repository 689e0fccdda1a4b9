package server

import (
	"context"
	"fmt"
	"math"
	"time"

	"chart-hub/src/metrics"
	"chart-hub/src/models"
)

// fetchResult is what a coalesced fetch hands every waiter.
type fetchResult struct {
	snapshot *models.MSnapshot
	source   models.DataSource
}

// -----------------------------------------------------------------------------
// GetData
// -----------------------------------------------------------------------------

// GetData returns the snapshot to deliver. A non-forced call within the TTL
// is served from memory; anything else joins or starts the single in-flight
// fetch. Fetch failures never surface here: the previous snapshot (or a
// fallback) is returned instead. The only error is ctx ending while no
// snapshot of any kind exists.
func (h *Hub) GetData(ctx context.Context, force bool) (*models.MSnapshot, models.DataSource, error) {
	if !force {
		if snap := h.snapshot.Load(); snap != nil && !snap.Fallback && h.clock.Since(snap.FetchedAt) < h.opts.CacheTTL {
			metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
			return snap, models.SourceCache, nil
		}
		metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
	} else {
		metrics.CacheRequestsTotal.WithLabelValues("forced").Inc()
	}

	resCh := h.fetches.DoChan(fetchKey, func() (interface{}, error) {
		return h.fetch(), nil
	})

	select {
	case res := <-resCh:
		r := res.Val.(fetchResult)
		return r.snapshot, r.source, nil
	case <-ctx.Done():
		if snap := h.snapshot.Load(); snap != nil {
			return snap, models.SourceCache, nil
		}
		return nil, "", fmt.Errorf("waiting for chart data: %w", ctx.Err())
	}
}

// -----------------------------------------------------------------------------

// fetch runs detached from any caller so a departing requester cannot cancel
// the fetch the others are waiting on.
func (h *Hub) fetch() fetchResult {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.FetchTimeout)
	defer cancel()

	start := h.clock.Now()
	raws, err := h.fetchCharts(ctx)
	metrics.FetchDuration.Observe(h.clock.Since(start).Seconds())

	if err != nil {
		result := "error"
		if ctx.Err() != nil {
			result = "timeout"
		}
		metrics.FetchesTotal.WithLabelValues(result).Inc()

		if prev := h.snapshot.Load(); prev != nil {
			h.Logger.Error("Fetch from %s failed, serving previous snapshot: %v", h.source.Name(), err)
			return fetchResult{snapshot: prev, source: models.SourceCache}
		}

		h.Logger.Error("Fetch from %s failed with no cached data, serving fallback: %v", h.source.Name(), err)
		metrics.FallbacksTotal.Inc()
		snap := fallbackSnapshot(h.clock.Now())
		h.publish(snap)
		return fetchResult{snapshot: snap, source: models.SourceCache}
	}

	metrics.FetchesTotal.WithLabelValues("success").Inc()
	snap := h.buildSnapshot(raws, h.clock.Now())
	h.publish(snap)
	h.Logger.Info("Cached %d charts from %s", snap.Len(), h.source.Name())
	return fetchResult{snapshot: snap, source: models.SourceFresh}
}

// -----------------------------------------------------------------------------

// fetchCharts bounds the source call by ctx even if the source ignores it.
func (h *Hub) fetchCharts(ctx context.Context) ([]models.MRawChart, error) {
	type result struct {
		charts []models.MRawChart
		err    error
	}
	done := make(chan result, 1)

	go func() {
		charts, err := h.source.FetchCharts(ctx)
		done <- result{charts: charts, err: err}
	}()

	select {
	case r := <-done:
		return r.charts, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch timed out after %v: %w", h.opts.FetchTimeout, ctx.Err())
	}
}

// -----------------------------------------------------------------------------

// buildSnapshot derives bounds and counts for every raw chart, in source order.
func (h *Hub) buildSnapshot(raws []models.MRawChart, fetchedAt time.Time) *models.MSnapshot {
	charts := make([]models.MChartRecord, 0, len(raws))
	for _, raw := range raws {
		if !raw.ChartType.Valid() {
			h.Logger.Warning("Chart %s has unknown type %q, rendering as line", raw.ID, raw.ChartType)
			raw.ChartType = models.ChartTypeLine
		}
		charts = append(charts, models.NewChartRecord(raw, fetchedAt))
	}
	return &models.MSnapshot{Charts: charts, FetchedAt: fetchedAt}
}

// -----------------------------------------------------------------------------
// Fallback
// -----------------------------------------------------------------------------

var fallbackTemplates = []struct {
	id, name, category, color, unit string
	chartType                       models.ChartType
}{
	{"fallback-cpu", "CPU usage", "system", "#3b82f6", "%", models.ChartTypeLine},
	{"fallback-memory", "Memory usage", "memory", "#10b981", "MB", models.ChartTypeArea},
	{"fallback-latency", "Request latency", "network", "#f59e0b", "ms", models.ChartTypeBar},
}

const fallbackPoints = 12

// fallbackSnapshot is placeholder data shown until the source answers. The
// points are the same on every call; only the timestamps move.
func fallbackSnapshot(now time.Time) *models.MSnapshot {
	charts := make([]models.MChartRecord, 0, len(fallbackTemplates))
	for i, tpl := range fallbackTemplates {
		points := make([]models.MDataPoint, fallbackPoints)
		for x := range points {
			points[x] = models.MDataPoint{
				X: float64(x),
				Y: math.Round((50+25*math.Sin(float64(x+i*4)/2))*100) / 100,
			}
		}
		raw := models.MRawChart{
			ID:         tpl.id,
			ChartName:  tpl.name,
			ChartType:  tpl.chartType,
			Category:   tpl.category,
			Metadata:   models.MChartMetadata{Color: tpl.color, Unit: tpl.unit},
			DataPoints: points,
		}
		charts = append(charts, models.NewChartRecord(raw, now))
	}
	return &models.MSnapshot{Charts: charts, FetchedAt: now, Fallback: true}
}
