package storage

import (
	"database/sql"
	"fmt"

	"chart-hub/src/helpers"
	"chart-hub/src/models"

	"github.com/bytedance/sonic"
)

const defaultChartsTable = "profiling_charts"

// -----------------------------------------------------------------------------

// scanCharts decodes rows of (id, chart_name, chart_type, category, metadata,
// data_points, created_at). metadata and data_points hold JSON text.
func scanCharts(rows *sql.Rows) ([]models.MRawChart, error) {
	defer rows.Close()

	charts := []models.MRawChart{}
	for rows.Next() {
		var (
			c          models.MRawChart
			chartType  string
			metadata   sql.NullString
			dataPoints sql.NullString
			createdAt  sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.ChartName, &chartType, &c.Category, &metadata, &dataPoints, &createdAt); err != nil {
			return nil, helpers.NewFetchError("scan chart row", err)
		}
		c.ChartType = models.ChartType(chartType)
		c.CreatedAt = createdAt.String

		if metadata.Valid && metadata.String != "" {
			if err := sonic.UnmarshalString(metadata.String, &c.Metadata); err != nil {
				return nil, helpers.NewFetchError(fmt.Sprintf("decode metadata of chart %s", c.ID), err)
			}
		}
		if dataPoints.Valid && dataPoints.String != "" {
			if err := sonic.UnmarshalString(dataPoints.String, &c.DataPoints); err != nil {
				return nil, helpers.NewFetchError(fmt.Sprintf("decode data_points of chart %s", c.ID), err)
			}
		}
		if c.DataPoints == nil {
			c.DataPoints = []models.MDataPoint{}
		}
		charts = append(charts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewFetchError("iterate chart rows", err)
	}
	return charts, nil
}

// -----------------------------------------------------------------------------

// encodeChart returns the JSON columns of c.
func encodeChart(c models.MRawChart) (metadata string, dataPoints string, err error) {
	points := c.DataPoints
	if points == nil {
		points = []models.MDataPoint{}
	}
	if metadata, err = sonic.MarshalString(c.Metadata); err != nil {
		return "", "", err
	}
	if dataPoints, err = sonic.MarshalString(points); err != nil {
		return "", "", err
	}
	return metadata, dataPoints, nil
}
