package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"chart-hub/src/helpers"
	"chart-hub/src/logger"
	"chart-hub/src/models"
)

const defaultUserAgent = "chart-hub/1.0 (+Go-http-client)"

type AsyncNetworkManager struct {
	Config    *models.MConfig
	Client    *http.Client
	Logger    *logger.Logger
	baseDelay time.Duration
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger) *AsyncNetworkManager {
	return &AsyncNetworkManager{
		Config: cfg,
		Client: &http.Client{
			Timeout: time.Duration(cfg.Network.RequestTimeout) * time.Second,
		},
		Logger:    log,
		baseDelay: time.Second,
	}
}

// -----------------------------------------------------------------------------

// Get performs a GET request with retries and exponential backoff. 4xx
// responses other than 429 are not retried.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, params map[string]string, headers map[string]string) ([]byte, error) {
	reqURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, helpers.NewFetchError("invalid url", err)
	}

	q := reqURL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	reqURL.RawQuery = q.Encode()
	finalURL := reqURL.String()

	body, err := helpers.RetryWithBackoff(ctx, nm.Logger, "GET "+reqURL.Path, nm.Config.Network.MaxRetries, nm.baseDelay, func() ([]byte, error) {
		return nm.doGet(ctx, finalURL, headers)
	})
	if err != nil {
		return nil, helpers.NewFetchError("request failed", err)
	}
	return body, nil
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) doGet(ctx context.Context, finalURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, &helpers.PermanentError{Err: err}
	}

	userAgent := nm.Config.Network.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := nm.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		nm.Logger.Info("Retryable status %d from %s", resp.StatusCode, req.URL.Host)
		return nil, fmt.Errorf("bad status: %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &helpers.PermanentError{Err: fmt.Errorf("bad status: %d", resp.StatusCode)}
	}

	return io.ReadAll(resp.Body)
}
