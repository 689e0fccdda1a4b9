package rest

import (
	"context"
	"fmt"
	"strings"

	"chart-hub/src/helpers"
	"chart-hub/src/interfaces"
	"chart-hub/src/logger"
	"chart-hub/src/models"

	"github.com/bytedance/sonic"
)

const defaultTable = "profiling_charts"

// -----------------------------------------------------------------------------

// RestChartSource reads a PostgREST (Supabase style) table in one request.
type RestChartSource struct {
	SourceConfig models.MSourceConfig
	Network      interfaces.INetworkManager
	Logger       *logger.Logger
}

// -----------------------------------------------------------------------------

func NewRestChartSource(sourceCfg models.MSourceConfig, netMgr interfaces.INetworkManager, log *logger.Logger) *RestChartSource {
	if sourceCfg.Table == "" {
		sourceCfg.Table = defaultTable
	}
	return &RestChartSource{
		SourceConfig: sourceCfg,
		Network:      netMgr,
		Logger:       log,
	}
}

// -----------------------------------------------------------------------------

func (s *RestChartSource) Name() string {
	return "rest:" + s.SourceConfig.Table
}

// -----------------------------------------------------------------------------

// FetchCharts fetches every row ordered newest first.
func (s *RestChartSource) FetchCharts(ctx context.Context) ([]models.MRawChart, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", strings.TrimSuffix(s.SourceConfig.URL, "/"), s.SourceConfig.Table)
	params := map[string]string{
		"select": "*",
		"order":  "created_at.desc",
	}

	headers := map[string]string{}
	if key := s.SourceConfig.APIKey; key != "" {
		headers["apikey"] = key
		headers["Authorization"] = "Bearer " + key
	}

	body, err := s.Network.Get(ctx, endpoint, params, headers)
	if err != nil {
		return nil, err
	}

	charts, err := parseCharts(body)
	if err != nil {
		return nil, err
	}

	s.Logger.Debug("Fetched %d charts from %s", len(charts), s.SourceConfig.Table)
	return charts, nil
}

// -----------------------------------------------------------------------------

func parseCharts(body []byte) ([]models.MRawChart, error) {
	var charts []models.MRawChart
	if err := sonic.Unmarshal(body, &charts); err != nil {
		return nil, helpers.NewFetchError("decode chart rows", err)
	}
	if charts == nil {
		// PostgREST answers "null" for some empty selections.
		charts = []models.MRawChart{}
	}
	return charts, nil
}
