package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Exact or prefix namespace match. Empty query matches all.
func matchesNamespace(metricNS, queryNS []string) (matches bool) {
	if len(metricNS) < len(queryNS) {
		return
	}
	for i := range queryNS {
		if metricNS[i] != queryNS[i] {
			return
		}
	}
	matches = true
	return
}

// Slice keys within [start, end] oldest first. Zero bounds are open.
func (registry *Registry) sliceKeys(start, end time.Time) (keys []time.Time) {
	for slice := range registry.slices {
		if !start.IsZero() && slice.Before(start) {
			continue
		}
		if !end.IsZero() && slice.After(end) {
			continue
		}
		keys = append(keys, slice)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return
}

// All metrics with the given name (empty = any) under the namespace prefix, oldest first.
// Within a slice results are ordered by namespace then name.
func (registry *Registry) Search(name string, namespacePrefix []string, start, end time.Time) (results []Metric) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()

	for _, slice := range registry.sliceKeys(start, end) {
		var found []Metric
		for namespace, byName := range registry.slices[slice] {
			if !matchesNamespace(strings.Split(namespace, "/"), namespacePrefix) {
				continue
			}
			for metricName, metric := range byName {
				if name == "" || metricName == name {
					found = append(found, metric)
				}
			}
		}
		sortMetrics(found)
		results = append(results, found...)
	}
	return
}

// Metrics from the newest slice only
func (registry *Registry) Latest(namespacePrefix []string) (results []Metric) {
	registry.mutex.RLock()
	keys := registry.sliceKeys(time.Time{}, time.Time{})
	registry.mutex.RUnlock()
	if len(keys) == 0 {
		return
	}
	newest := keys[len(keys)-1]
	results = registry.Search("", namespacePrefix, newest, newest)
	return
}

// Distinct metric definitions (no values or times) matching the filters
func (registry *Registry) Discover(name, description string, namespacePrefix []string, unit string, metricType MetricType) (results []Metric) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()

	seen := make(map[string]Metric)
	for _, namespaces := range registry.slices {
		for namespace, byName := range namespaces {
			if !matchesNamespace(strings.Split(namespace, "/"), namespacePrefix) {
				continue
			}
			for _, metric := range byName {
				if name != "" && !strings.Contains(metric.Name, name) {
					continue
				}
				if description != "" && !strings.Contains(metric.Description, description) {
					continue
				}
				if unit != "" && metric.Value.Unit != unit {
					continue
				}
				if metricType != "" && metric.Type != metricType {
					continue
				}

				key := namespace + "|" + metric.Name + "|" + string(metric.Type) + "|" + metric.Value.Unit
				if _, exists := seen[key]; exists {
					continue
				}
				seen[key] = Metric{
					Name:        metric.Name,
					Description: metric.Description,
					Namespace:   metric.Namespace,
					Type:        metric.Type,
					Value:       MetricValue{Unit: metric.Value.Unit},
				}
			}
		}
	}

	results = make([]Metric, 0, len(seen))
	for _, metric := range seen {
		results = append(results, metric)
	}
	sortMetrics(results)
	return
}

// Min/max/avg/sum over matching metrics. Fails on non-numeric values.
func (registry *Registry) Aggregate(name string, namespacePrefix []string, start, end time.Time) (agg Aggregation, err error) {
	found := registry.Search(name, namespacePrefix, start, end)
	if len(found) == 0 {
		err = fmt.Errorf("no metrics named %q", name)
		return
	}

	agg.Min = math.Inf(1)
	agg.Max = math.Inf(-1)
	for _, metric := range found {
		var value float64
		value, err = numeric(metric.Value.Raw)
		if err != nil {
			err = fmt.Errorf("metric %s/%s: %w", strings.Join(metric.Namespace, "/"), metric.Name, err)
			return
		}
		agg.Count++
		agg.Sum += value
		agg.Min = math.Min(agg.Min, value)
		agg.Max = math.Max(agg.Max, value)
	}
	agg.Avg = agg.Sum / float64(agg.Count)
	return
}

func numeric(raw interface{}) (value float64, err error) {
	switch typed := raw.(type) {
	case int:
		value = float64(typed)
	case int64:
		value = float64(typed)
	case uint64:
		value = float64(typed)
	case uint32:
		value = float64(typed)
	case float64:
		value = typed
	case string:
		value, err = strconv.ParseFloat(typed, 64)
	default:
		err = fmt.Errorf("non-numeric value of type %T", raw)
	}
	return
}

func sortMetrics(list []Metric) {
	sort.Slice(list, func(i, j int) bool {
		left := strings.Join(list[i].Namespace, "/")
		right := strings.Join(list[j].Namespace, "/")
		if left != right {
			return left < right
		}
		return list[i].Name < list[j].Name
	})
}
