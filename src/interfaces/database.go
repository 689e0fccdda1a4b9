package interfaces

import "chart-hub/src/models"

// -----------------------------------------------------------------------------
// IChartStore is a SQL-backed chart source that can also be written to.
// -----------------------------------------------------------------------------

type IChartStore interface {
	IChartSource

	// -----------------------------------------------------------------------------

	// Initialize opens the connection and creates the charts table if missing.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveCharts upserts chart rows by id.
	SaveCharts(charts []models.MRawChart) error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
