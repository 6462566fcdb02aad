// Package nwps reads streamflow forecasts from the NOAA National Water
// Prediction Service reaches API.
//
// Requests are rate limited with a token bucket and bounded by the HTTP
// client timeout. Responses are normalized to CFS ForecastPoints; past-time
// filtering is left to the caller, which owns the clock.
package nwps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
	"github.com/couchcryptid/flow-alert-service/internal/observability"
)

// ErrNoSeries is returned when a response carries no series for the requested range.
var ErrNoSeries = errors.New("no forecast series in response")

// Client implements forecast.Source against the NWPS reaches endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an NWPS client. requestsPerSecond bounds the outbound
// request rate across all callers sharing the client.
func NewClient(baseURL string, timeout time.Duration, requestsPerSecond float64, metrics *observability.Metrics, logger *slog.Logger) *Client {
	burst := max(1, int(requestsPerSecond))
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		metrics:    metrics,
		logger:     logger,
	}
}

// FetchStreamflow returns the forecast series for one reach and range,
// ordered by valid time and converted to CFS.
func (c *Client) FetchStreamflow(ctx context.Context, externalID string, rng domain.ForecastRange) ([]domain.ForecastPoint, error) {
	start := time.Now()
	points, err := c.fetch(ctx, externalID, rng)
	c.metrics.ForecastFetchDuration.WithLabelValues(string(rng)).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.ForecastFetches.WithLabelValues(string(rng), "error").Inc()
		return nil, err
	}
	c.metrics.ForecastFetches.WithLabelValues(string(rng), "success").Inc()
	c.logger.Debug("forecast fetched", "external_id", externalID, "range", rng, "points", len(points))
	return points, nil
}

func (c *Client) fetch(ctx context.Context, externalID string, rng domain.ForecastRange) ([]domain.ForecastPoint, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := fmt.Sprintf("%s/reaches/%s/streamflow?%s", c.baseURL, url.PathEscape(externalID),
		url.Values{"series": {rng.Series()}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s streamflow request: %w", rng, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("nwps API error: status %d: %s", resp.StatusCode, body)
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	s, ok := r.seriesFor(rng)
	if !ok {
		return nil, fmt.Errorf("reach %s %s: %w", externalID, rng, ErrNoSeries)
	}
	return s.points(rng, c.logger), nil
}

// NWPS API response types. The reaches endpoint nests each range under its
// own key; older proxies return a flat data array.

type response struct {
	ShortRange  *rangeBlock `json:"shortRange"`
	MediumRange *rangeBlock `json:"mediumRange"`
	Units       string      `json:"units"`
	Data        []entry     `json:"data"`
}

type rangeBlock struct {
	Series *series `json:"series"`
	Mean   *series `json:"mean"`
}

type series struct {
	Units string  `json:"units"`
	Data  []entry `json:"data"`
}

type entry struct {
	ValidTime string   `json:"validTime"`
	Time      string   `json:"time"`
	Flow      *float64 `json:"flow"`
	Value     *float64 `json:"value"`
}

func (r response) seriesFor(rng domain.ForecastRange) (series, bool) {
	block := r.ShortRange
	if rng == domain.RangeMedium {
		block = r.MediumRange
	}
	if block != nil {
		for _, s := range []*series{block.Series, block.Mean} {
			if s != nil && s.Data != nil {
				return *s, true
			}
		}
	}
	if r.Data != nil {
		return series{Units: r.Units, Data: r.Data}, true
	}
	return series{}, false
}

func (s series) points(rng domain.ForecastRange, logger *slog.Logger) []domain.ForecastPoint {
	scale, unit := domain.ParseFlowScale(s.Units)
	out := make([]domain.ForecastPoint, 0, len(s.Data))
	skipped := 0
	for _, e := range s.Data {
		ts := e.ValidTime
		if ts == "" {
			ts = e.Time
		}
		t, err := time.Parse(time.RFC3339, ts)
		v := e.Flow
		if v == nil {
			v = e.Value
		}
		// NWPS marks missing values with large negative sentinels.
		if err != nil || v == nil || *v < 0 {
			skipped++
			continue
		}
		out = append(out, domain.ForecastPoint{
			Flow:      domain.ConvertFlow(*v*scale, unit, domain.UnitCFS),
			Unit:      domain.UnitCFS,
			ValidTime: t.UTC(),
			Range:     rng,
		})
	}
	if skipped > 0 {
		logger.Debug("skipped malformed forecast entries", "range", rng, "skipped", skipped)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidTime.Before(out[j].ValidTime) })
	return out
}

