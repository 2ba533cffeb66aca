package temperature

import (
	"context"
	"fmt"

	"github.com/aaronlmathis/bladetemp/internal/metrics"
	"go.uber.org/zap"
)

// Service answers temperature requests: resolve node names, fetch the three
// windows, aggregate. It keeps no state between calls and is safe for
// concurrent use.
type Service struct {
	logger     *zap.Logger
	resolver   Resolver
	fetcher    *Fetcher
	aggregator *Aggregator
}

// NewService creates a new temperature service
func NewService(logger *zap.Logger, resolver Resolver, fetcher *Fetcher, aggregator *Aggregator) *Service {
	return &Service{
		logger:     logger,
		resolver:   resolver,
		fetcher:    fetcher,
		aggregator: aggregator,
	}
}

// Temperatures returns the per-node measurements from the backend at baseURL.
// A resolver failure is logged and the request continues with no node names;
// a failure of any window query fails the call.
func (s *Service) Temperatures(ctx context.Context, baseURL string) (*Response, error) {
	nodes, err := s.resolver.Resolve(ctx, baseURL)
	if err != nil {
		s.logger.Warn("Failed to get instance to node mapping, reporting instances as "+UnknownNode,
			zap.String("source", s.resolver.Source()),
			zap.Error(err))
		metrics.RecordResolverFallback(s.resolver.Source())
		nodes = InstanceNodeMap{}
	}

	results, err := s.fetcher.FetchWindows(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch temperature data: %w", err)
	}

	measurements := s.aggregator.Aggregate(results, nodes)

	readings := make([]metrics.NodeReading, 0, len(measurements)*len(Windows))
	for _, m := range measurements {
		readings = append(readings,
			metrics.NodeReading{Node: m.Node, Window: Minutely.Name, Celsius: m.Minutely},
			metrics.NodeReading{Node: m.Node, Window: Hourly.Name, Celsius: m.Hourly},
			metrics.NodeReading{Node: m.Node, Window: Daily.Name, Celsius: m.Daily},
		)
	}
	metrics.ReplaceNodeTemperatures(baseURL, readings)

	s.logger.Debug("Aggregated temperatures",
		zap.String("backend", baseURL),
		zap.Int("nodes", len(measurements)))

	return &Response{Measurements: measurements}, nil
}
