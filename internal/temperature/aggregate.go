package temperature

import (
	"math"
	"sort"

	"github.com/aaronlmathis/bladetemp/internal/metrics"
	"github.com/aaronlmathis/bladetemp/internal/promapi"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

// reading is the running per-group maximum of the three windows.
type reading struct {
	minutely float64
	hourly   float64
	daily    float64
}

func (r *reading) merge(o reading) {
	r.minutely = math.Max(r.minutely, o.minutely)
	r.hourly = math.Max(r.hourly, o.hourly)
	r.daily = math.Max(r.daily, o.daily)
}

// groupKey identifies an aggregation group. Resolved instances group by node;
// every unresolved instance is its own group under UnknownNode.
type groupKey struct {
	node     string
	instance string
}

// Aggregator joins the window results and folds them into one measurement per node.
type Aggregator struct {
	logger *zap.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(logger *zap.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Aggregate produces one measurement per node, sorted by node name.
//
// Instances are enumerated from the minutely window only; an instance missing
// from the hourly or daily window reports 0 for that window. Instances that
// share a resolved node are maxed per window. Unresolved instances are each
// emitted as UnknownNode, so only the last one (in instance order) survives.
func (a *Aggregator) Aggregate(results *WindowResults, nodes InstanceNodeMap) []Measurement {
	minutely := a.valuesByInstance(Minutely, results.Minutely)
	hourly := a.valuesByInstance(Hourly, results.Hourly)
	daily := a.valuesByInstance(Daily, results.Daily)

	instances := make([]string, 0, len(minutely))
	for instance := range minutely {
		instances = append(instances, instance)
	}
	sort.Strings(instances)

	groups := make(map[groupKey]*reading)
	var order []groupKey
	var unresolved []string

	for _, instance := range instances {
		r := reading{
			minutely: minutely[instance],
			hourly:   hourly[instance],
			daily:    daily[instance],
		}

		key := groupKey{node: UnknownNode, instance: instance}
		if node, ok := nodes.Lookup(instance); ok {
			key = groupKey{node: node}
		} else {
			unresolved = append(unresolved, instance)
		}

		if g, ok := groups[key]; ok {
			g.merge(r)
			continue
		}
		groups[key] = &r
		order = append(order, key)
	}

	if len(unresolved) > 0 {
		a.logger.Warn("No node mapping found for instances",
			zap.Strings("instances", unresolved),
			zap.Int("mappedInstances", len(nodes)))
		metrics.RecordUnresolvedInstances(len(unresolved))
	}

	byNode := make(map[string]Measurement, len(order))
	for _, key := range order {
		g := groups[key]
		byNode[key.node] = Measurement{
			Node:     key.node,
			Minutely: roundTenth(g.minutely),
			Hourly:   math.Round(g.hourly),
			Daily:    roundTenth(g.daily),
		}
	}

	measurements := make([]Measurement, 0, len(byNode))
	for _, m := range byNode {
		measurements = append(measurements, m)
	}
	sort.Slice(measurements, func(i, j int) bool {
		return measurements[i].Node < measurements[j].Node
	})

	return measurements
}

// valuesByInstance indexes one window's rows by instance. Rows without an
// instance label or with an unparsable or non-finite value are dropped. An exporter usually
// reports several sensors (chip/sensor labels) under one instance; those
// collapse to their maximum.
func (a *Aggregator) valuesByInstance(window Window, rows []promapi.Result) map[string]float64 {
	values := make(map[string]float64, len(rows))
	dropped := 0

	for _, row := range rows {
		instance, ok := row.Label(model.InstanceLabel)
		if !ok {
			dropped++
			continue
		}
		sample, err := row.Sample()
		if err != nil || math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) {
			dropped++
			continue
		}
		if current, seen := values[instance]; seen && current >= sample.Value {
			continue
		}
		values[instance] = sample.Value
	}

	if dropped > 0 {
		a.logger.Debug("Dropped unusable rows",
			zap.String("window", window.Name),
			zap.Int("dropped", dropped))
	}

	return values
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
