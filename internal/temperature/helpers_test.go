package temperature

import (
	"context"
	"sync"

	"github.com/aaronlmathis/bladetemp/internal/promapi"
)

// fakeQuerier answers queries from canned rows keyed by query string.
type fakeQuerier struct {
	responses map[string][]promapi.Result
	errs      map[string]error

	mu    sync.Mutex
	calls []string
	bases []string
}

func (f *fakeQuerier) Query(ctx context.Context, baseURL, query string) ([]promapi.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	f.bases = append(f.bases, baseURL)
	f.mu.Unlock()

	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.responses[query], nil
}

func (f *fakeQuerier) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// sensorRow builds a temperature row for instance.
func sensorRow(instance, value string) promapi.Result {
	return promapi.Result{
		Metric: map[string]string{"instance": instance, "chip": "platform_coretemp_0", "sensor": "temp1"},
		Value:  []interface{}{1700000000.0, value},
	}
}

// podInfoRow builds a kube_pod_info row.
func podInfoRow(pod, podIP, node string) promapi.Result {
	labels := map[string]string{"pod": pod, "namespace": "monitoring"}
	if podIP != "" {
		labels["pod_ip"] = podIP
	}
	if node != "" {
		labels["node"] = node
	}
	return promapi.Result{Metric: labels, Value: []interface{}{1700000000.0, "1"}}
}

var testMetric = "node_hwmon_temp_celsius"

var (
	minutelyQuery = Minutely.Query(testMetric)
	hourlyQuery   = Hourly.Query(testMetric)
	dailyQuery    = Daily.Query(testMetric)
)

var testFilter = ExporterFilter{PodMatch: "node-exporter", Port: 9100}
