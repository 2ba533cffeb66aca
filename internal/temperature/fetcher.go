package temperature

import (
	"context"
	"fmt"
	"time"

	"github.com/aaronlmathis/bladetemp/internal/metrics"
	"github.com/aaronlmathis/bladetemp/internal/promapi"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// WindowResults holds the raw rows of the three window queries.
type WindowResults struct {
	Minutely []promapi.Result
	Hourly   []promapi.Result
	Daily    []promapi.Result
}

// Fetcher runs the per-window max_over_time queries.
type Fetcher struct {
	logger  *zap.Logger
	querier Querier
	metric  string
}

// NewFetcher creates a fetcher for the given sensor metric family
func NewFetcher(logger *zap.Logger, querier Querier, metric string) *Fetcher {
	return &Fetcher{
		logger:  logger,
		querier: querier,
		metric:  metric,
	}
}

// FetchWindows runs the minutely, hourly and daily queries concurrently.
// The first failure cancels the others and is returned; there are no
// partial results.
func (f *Fetcher) FetchWindows(ctx context.Context, baseURL string) (*WindowResults, error) {
	var results WindowResults
	targets := map[Window]*[]promapi.Result{
		Minutely: &results.Minutely,
		Hourly:   &results.Hourly,
		Daily:    &results.Daily,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, window := range Windows {
		window := window
		target := targets[window]
		g.Go(func() error {
			query := window.Query(f.metric)

			start := time.Now()
			rows, err := f.querier.Query(gctx, baseURL, query)
			metrics.RecordUpstreamQuery(window.Name, err, time.Since(start))
			if err != nil {
				return fmt.Errorf("%s query %q: %w", window.Name, query, err)
			}

			*target = rows
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	f.logger.Debug("Fetched temperature windows",
		zap.Int("minutely", len(results.Minutely)),
		zap.Int("hourly", len(results.Hourly)),
		zap.Int("daily", len(results.Daily)))

	return &results, nil
}
