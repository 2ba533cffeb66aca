package temperature

import (
	"context"
	"fmt"

	"github.com/aaronlmathis/bladetemp/internal/promapi"
)

// UnknownNode is reported for sensor instances with no node mapping.
const UnknownNode = "unknown_blade"

// Measurement is the per-node output record.
type Measurement struct {
	Node     string  `json:"node"`
	Minutely float64 `json:"minutely_temperature"`
	Hourly   float64 `json:"hourly_temperature"`
	Daily    float64 `json:"daily_temperature"`
}

// Response is the body of GET /api/temperatures.
type Response struct {
	Measurements []Measurement `json:"measurements"`
}

// InstanceNodeMap maps a sensor instance address (ip:port) to a node name.
// It is built once per request and not modified afterwards.
type InstanceNodeMap map[string]string

// Lookup returns the node name for instance.
func (m InstanceNodeMap) Lookup(instance string) (string, bool) {
	node, ok := m[instance]
	return node, ok
}

// Window is one of the fixed lookback ranges reported per node.
type Window struct {
	Name  string
	Range string
}

var (
	Minutely = Window{Name: "minutely", Range: "1m"}
	Hourly   = Window{Name: "hourly", Range: "1h"}
	Daily    = Window{Name: "daily", Range: "1d"}
)

// Windows lists the windows in response order.
var Windows = []Window{Minutely, Hourly, Daily}

// Query returns the max_over_time expression for metric over the window.
func (w Window) Query(metric string) string {
	return fmt.Sprintf("max_over_time(%s[%s])", metric, w.Range)
}

// Querier runs an instant query against a Prometheus-compatible backend.
// *promapi.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, baseURL, query string) ([]promapi.Result, error)
}

// Resolver builds the instance to node mapping for one request.
type Resolver interface {
	Resolve(ctx context.Context, baseURL string) (InstanceNodeMap, error)
	// Source names the mapping source for logs and metrics.
	Source() string
}
