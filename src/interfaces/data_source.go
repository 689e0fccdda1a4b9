package interfaces

import (
	"context"

	"chart-hub/src/models"
)

// -----------------------------------------------------------------------------
// IChartSource is the fetch contract: give me the current full collection.
// -----------------------------------------------------------------------------

type IChartSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// FetchCharts retrieves every chart row. No pagination or filtering is
	// defined at this boundary; a failure returns a nil slice and an error.
	FetchCharts(ctx context.Context) ([]models.MRawChart, error)
}
