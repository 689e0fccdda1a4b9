package demo

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"chart-hub/src/models"
)

// -----------------------------------------------------------------------------

// DemoChartSource synthesizes a small fixed set of charts whose values drift
// with every call, so refreshes are visible without a backend.
type DemoChartSource struct {
	calls atomic.Int64
	start time.Time
}

func NewDemoChartSource() *DemoChartSource {
	return &DemoChartSource{start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// -----------------------------------------------------------------------------

func (s *DemoChartSource) Name() string {
	return "demo"
}

// -----------------------------------------------------------------------------

func (s *DemoChartSource) FetchCharts(ctx context.Context) ([]models.MRawChart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	phase := float64(s.calls.Add(1))

	defs := []struct {
		name     string
		category string
		kind     models.ChartType
		color    string
		unit     string
	}{
		{"CPU usage", "system", models.ChartTypeLine, "#3b82f6", "%"},
		{"Heap allocations", "memory", models.ChartTypeArea, "#10b981", "MB"},
		{"Request latency", "network", models.ChartTypeBar, "#f59e0b", "ms"},
	}

	charts := make([]models.MRawChart, 0, len(defs))
	for i, def := range defs {
		points := make([]models.MDataPoint, 24)
		for x := range points {
			y := 50 + 40*math.Sin((float64(x)+phase)/4+float64(i))
			points[x] = models.MDataPoint{
				X:         float64(x),
				Y:         math.Round(y*100) / 100,
				Timestamp: s.start.Add(time.Duration(x) * time.Hour).Format(time.RFC3339),
			}
		}
		charts = append(charts, models.MRawChart{
			ID:         fmt.Sprintf("demo-%d", i+1),
			ChartName:  def.name,
			ChartType:  def.kind,
			Category:   def.category,
			Metadata:   models.MChartMetadata{Color: def.color, Unit: def.unit},
			DataPoints: points,
		})
	}
	return charts, nil
}
