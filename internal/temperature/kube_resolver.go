package temperature

import (
	"context"
	"fmt"
	"time"

	"github.com/aaronlmathis/bladetemp/internal/metrics"
	"go.uber.org/zap"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// KubeResolver maps instances to nodes by listing exporter pods from the
// Kubernetes API instead of the metrics backend.
type KubeResolver struct {
	logger     *zap.Logger
	kubeClient kubernetes.Interface
	namespace  string
	filter     ExporterFilter
}

// NewKubeResolver creates a pod-list resolver. An empty namespace lists all namespaces.
func NewKubeResolver(logger *zap.Logger, kubeClient kubernetes.Interface, namespace string, filter ExporterFilter) *KubeResolver {
	return &KubeResolver{
		logger:     logger,
		kubeClient: kubeClient,
		namespace:  namespace,
		filter:     filter,
	}
}

// Source implements Resolver
func (r *KubeResolver) Source() string {
	return "kubernetes"
}

// Resolve implements Resolver. baseURL is ignored; the mapping comes from the cluster.
func (r *KubeResolver) Resolve(ctx context.Context, _ string) (InstanceNodeMap, error) {
	start := time.Now()
	pods, err := r.kubeClient.CoreV1().Pods(r.namespace).List(ctx, metav1.ListOptions{
		FieldSelector: "status.phase=Running",
	})
	metrics.RecordUpstreamQuery("metadata", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	r.logger.Info("Listed pods for node mapping",
		zap.String("namespace", r.namespace),
		zap.Int("count", len(pods.Items)))

	nodes := make(InstanceNodeMap)
	for i := range pods.Items {
		pod := &pods.Items[i]
		// field selectors are advisory for some clients
		if pod.Status.Phase != v1.PodRunning || !r.filter.Matches(pod.Name) {
			continue
		}
		if pod.Status.PodIP == "" || pod.Spec.NodeName == "" {
			continue
		}

		instance := r.filter.Instance(pod.Status.PodIP)
		r.logger.Debug("Mapping exporter pod",
			zap.String("pod", pod.Name),
			zap.String("instance", instance),
			zap.String("node", pod.Spec.NodeName))
		nodes[instance] = pod.Spec.NodeName
	}

	r.logger.Info("Built instance to node mapping", zap.Int("entries", len(nodes)))

	return nodes, nil
}
