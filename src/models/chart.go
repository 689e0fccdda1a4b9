package models

import (
	"math"
	"time"
)

// -----------------------------------------------------------------------------
// Chart types
// -----------------------------------------------------------------------------

type ChartType string

const (
	ChartTypeLine ChartType = "line"
	ChartTypeBar  ChartType = "bar"
	ChartTypeArea ChartType = "area"
)

// Valid reports whether t is one of the known chart types.
func (t ChartType) Valid() bool {
	switch t {
	case ChartTypeLine, ChartTypeBar, ChartTypeArea:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------

// MDataPoint is a single plotted point. Order inside a chart is render order.
type MDataPoint struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp string  `json:"timestamp,omitempty"`
}

type MChartMetadata struct {
	Color string   `json:"color"`
	Unit  string   `json:"unit"`
	Max   *float64 `json:"max,omitempty"`
}

type MBounds struct {
	MinX float64 `json:"minX"`
	MaxX float64 `json:"maxX"`
	MinY float64 `json:"minY"`
	MaxY float64 `json:"maxY"`
}

// -----------------------------------------------------------------------------

// MRawChart is a chart row as returned by a source, before derived fields.
type MRawChart struct {
	ID         string         `json:"id"`
	ChartName  string         `json:"chart_name"`
	ChartType  ChartType      `json:"chart_type"`
	Category   string         `json:"category"`
	Metadata   MChartMetadata `json:"metadata"`
	DataPoints []MDataPoint   `json:"data_points"`
	CreatedAt  string         `json:"created_at,omitempty"`
}

// MChartRecord is the cached, enriched chart served to consumers.
type MChartRecord struct {
	ID          string         `json:"id"`
	ChartName   string         `json:"chart_name"`
	ChartType   ChartType      `json:"chart_type"`
	Category    string         `json:"category"`
	Metadata    MChartMetadata `json:"metadata"`
	DataPoints  []MDataPoint   `json:"data_points"`
	CreatedAt   string         `json:"created_at,omitempty"`
	Bounds      *MBounds       `json:"bounds"`
	PointCount  int            `json:"pointCount"`
	LastUpdated time.Time      `json:"lastUpdated"`
}

// -----------------------------------------------------------------------------

// ComputeBounds returns the exact min/max over points, or nil when empty.
func ComputeBounds(points []MDataPoint) *MBounds {
	if len(points) == 0 {
		return nil
	}

	b := &MBounds{
		MinX: math.Inf(1),
		MaxX: math.Inf(-1),
		MinY: math.Inf(1),
		MaxY: math.Inf(-1),
	}
	for _, p := range points {
		b.MinX = math.Min(b.MinX, p.X)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

// -----------------------------------------------------------------------------

// NewChartRecord derives bounds and point count from raw and stamps fetchedAt.
// The points slice is copied so the record never aliases source memory.
func NewChartRecord(raw MRawChart, fetchedAt time.Time) MChartRecord {
	points := make([]MDataPoint, len(raw.DataPoints))
	copy(points, raw.DataPoints)

	return MChartRecord{
		ID:          raw.ID,
		ChartName:   raw.ChartName,
		ChartType:   raw.ChartType,
		Category:    raw.Category,
		Metadata:    raw.Metadata,
		DataPoints:  points,
		CreatedAt:   raw.CreatedAt,
		Bounds:      ComputeBounds(points),
		PointCount:  len(points),
		LastUpdated: fetchedAt,
	}
}

// -----------------------------------------------------------------------------
// Lookups
// -----------------------------------------------------------------------------

// ChartByID returns the first record with id.
func ChartByID(charts []MChartRecord, id string) (MChartRecord, bool) {
	for _, c := range charts {
		if c.ID == id {
			return c, true
		}
	}
	return MChartRecord{}, false
}

// ChartsByCategory keeps order. The result is never nil.
func ChartsByCategory(charts []MChartRecord, category string) []MChartRecord {
	out := []MChartRecord{}
	for _, c := range charts {
		if c.Category == category {
			out = append(out, c)
		}
	}
	return out
}
