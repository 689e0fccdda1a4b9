package client

import (
	"slices"
	"time"

	"chart-hub/src/models"
)

// State is the connection state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// -----------------------------------------------------------------------------

// View is what a consumer renders from. Error is empty when there is none.
type View struct {
	Charts      []models.MChartRecord
	Loading     bool
	Error       string
	LastUpdated time.Time
	Source      models.DataSource
	Connections int
	State       State
}

// ByID finds a chart in the current records.
func (v View) ByID(id string) (models.MChartRecord, bool) {
	return models.ChartByID(v.Charts, id)
}

// ByCategory filters the current records, keeping their order.
func (v View) ByCategory(category string) []models.MChartRecord {
	return models.ChartsByCategory(v.Charts, category)
}

// clone deep-copies the records so a caller cannot reach client state.
func (v View) clone() View {
	if v.Charts == nil {
		return v
	}
	charts := make([]models.MChartRecord, len(v.Charts))
	for i, c := range v.Charts {
		c.DataPoints = slices.Clone(c.DataPoints)
		if c.Bounds != nil {
			b := *c.Bounds
			c.Bounds = &b
		}
		if c.Metadata.Max != nil {
			m := *c.Metadata.Max
			c.Metadata.Max = &m
		}
		charts[i] = c
	}
	v.Charts = charts
	return v
}
