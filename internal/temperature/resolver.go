package temperature

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/bladetemp/internal/metrics"
	"github.com/aaronlmathis/bladetemp/internal/promapi"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

// kube-state-metrics labels on kube_pod_info
const (
	podInfoQuery = "kube_pod_info"

	podLabel   model.LabelName = "pod"
	podIPLabel model.LabelName = "pod_ip"
	nodeLabel  model.LabelName = "node"
)

// ExporterFilter selects the exporter pods whose address becomes a sensor instance.
type ExporterFilter struct {
	// PodMatch must be a substring of the pod name.
	PodMatch string
	// Port is the exporter's scrape port, appended to the pod IP.
	Port int
}

// Instance returns the scrape address of an exporter pod.
func (f ExporterFilter) Instance(podIP string) string {
	return net.JoinHostPort(podIP, strconv.Itoa(f.Port))
}

// Matches reports whether podName is an exporter pod.
func (f ExporterFilter) Matches(podName string) bool {
	return strings.Contains(podName, f.PodMatch)
}

// PodInfoResolver maps instances to nodes from kube_pod_info series stored
// in the metrics backend itself.
type PodInfoResolver struct {
	logger  *zap.Logger
	querier Querier
	filter  ExporterFilter
}

// NewPodInfoResolver creates a resolver backed by the kube_pod_info metric
func NewPodInfoResolver(logger *zap.Logger, querier Querier, filter ExporterFilter) *PodInfoResolver {
	return &PodInfoResolver{
		logger:  logger,
		querier: querier,
		filter:  filter,
	}
}

// Source implements Resolver
func (r *PodInfoResolver) Source() string {
	return "prometheus"
}

// Resolve implements Resolver
func (r *PodInfoResolver) Resolve(ctx context.Context, baseURL string) (InstanceNodeMap, error) {
	start := time.Now()
	results, err := r.querier.Query(ctx, baseURL, podInfoQuery)
	metrics.RecordUpstreamQuery("metadata", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", podInfoQuery, err)
	}

	r.logger.Info("Found kube_pod_info entries", zap.Int("count", len(results)))

	nodes := r.buildMap(results)

	r.logger.Info("Built instance to node mapping", zap.Int("entries", len(nodes)))

	return nodes, nil
}

func (r *PodInfoResolver) buildMap(results []promapi.Result) InstanceNodeMap {
	nodes := make(InstanceNodeMap)

	for _, result := range results {
		pod, ok := result.Label(podLabel)
		if !ok || !r.filter.Matches(pod) {
			continue
		}

		podIP, hasIP := result.Label(podIPLabel)
		node, hasNode := result.Label(nodeLabel)
		if !hasIP || !hasNode {
			r.logger.Debug("Skipping exporter pod without ip or node",
				zap.String("pod", pod))
			continue
		}

		instance := r.filter.Instance(podIP)
		r.logger.Debug("Mapping exporter pod",
			zap.String("pod", pod),
			zap.String("instance", instance),
			zap.String("node", node))
		nodes[instance] = node
	}

	return nodes
}
