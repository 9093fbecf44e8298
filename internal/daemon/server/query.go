package server

import (
	"context"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/metrics"
	"net/http"
	"strings"
	"time"
)

// Namespace components after the route prefix, nil for none
func requestNamespace(path, prefix string) (namespace []string) {
	raw := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if raw == "" {
		return
	}
	namespace = strings.Split(raw, "/")
	return
}

// Reads starttime/endtime. Start defaults to one minute ago and end to now.
// Unparseable relative starts fall back to the default.
func requestWindow(clientRequest *http.Request, now time.Time) (start, end time.Time, ok bool) {
	start = now.Add(-1 * time.Minute)
	end = now

	rawStartTime := clientRequest.FormValue("starttime")
	switch {
	case rawStartTime == "":
	case rawStartTime[0] == '-' || rawStartTime[0] == '+':
		dur, err := time.ParseDuration(rawStartTime)
		if err == nil {
			start = now.Add(dur)
		}
	default:
		parsed, err := time.Parse(time.RFC3339Nano, rawStartTime)
		if err != nil {
			return
		}
		start = parsed
	}

	rawEndTime := clientRequest.FormValue("endtime")
	if rawEndTime != "" && rawEndTime != "now" {
		parsed, err := time.Parse(time.RFC3339Nano, rawEndTime)
		if err != nil {
			return
		}
		end = parsed
	}

	ok = !start.After(end)
	return
}

// Handles metric search requests based on time for data
func handleData(baseCtx context.Context, search DataSearcher, serverResponder http.ResponseWriter, clientRequest *http.Request) {
	reqNamespace := requestNamespace(clientRequest.URL.Path, global.DataPath)
	reqName := clientRequest.FormValue("name")

	reqStartTime, reqEndTime, ok := requestWindow(clientRequest, time.Now())
	if !ok {
		serverResponder.WriteHeader(http.StatusBadRequest)
		return
	}

	results := metrics.ConvertAll(search(reqName, reqNamespace, reqStartTime, reqEndTime))
	if len(results) == 0 {
		jResp(baseCtx, serverResponder, Jerror{Msg: "Search returned no results"})
	} else {
		jResp(baseCtx, serverResponder, results)
	}
}

// Handles numeric summaries of one metric over a time window
func handleAggregation(baseCtx context.Context, aggregate Aggregator, serverResponder http.ResponseWriter, clientRequest *http.Request) {
	reqNamespace := requestNamespace(clientRequest.URL.Path, global.AggregationPath)
	reqName := clientRequest.FormValue("name")
	if reqName == "" {
		serverResponder.WriteHeader(http.StatusBadRequest)
		return
	}

	reqStartTime, reqEndTime, ok := requestWindow(clientRequest, time.Now())
	if !ok {
		serverResponder.WriteHeader(http.StatusBadRequest)
		return
	}

	result, err := aggregate(reqName, reqNamespace, reqStartTime, reqEndTime)
	if err != nil {
		jResp(baseCtx, serverResponder, Jerror{Msg: err.Error()})
		return
	}
	jResp(baseCtx, serverResponder, result)
}

// Handles metric discovery (one sample per individual metric, no series data)
func handleDiscovery(baseCtx context.Context, discover Discoverer, serverResponder http.ResponseWriter, clientRequest *http.Request) {
	reqNamespace := requestNamespace(clientRequest.URL.Path, global.DiscoveryPath)
	reqName := clientRequest.FormValue("name")
	reqDescription := clientRequest.FormValue("description")
	reqUnit := clientRequest.FormValue("unit")

	rawType := clientRequest.FormValue("type")
	var reqType metrics.MetricType
	switch metrics.MetricType(strings.ToLower(rawType)) {
	case metrics.Counter:
		reqType = metrics.Counter
	case metrics.Gauge:
		reqType = metrics.Gauge
	case metrics.Summary:
		reqType = metrics.Summary
	default:
		// Empty is valid
		if rawType != "" {
			serverResponder.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	results := metrics.ConvertAll(discover(reqName, reqDescription, reqNamespace, reqUnit, reqType))
	if len(results) == 0 {
		jResp(baseCtx, serverResponder, Jerror{Msg: "Search returned no results"})
	} else {
		jResp(baseCtx, serverResponder, results)
	}
}

// Handles exporter status snapshots
func handleStatus(baseCtx context.Context, status StatusReporter, serverResponder http.ResponseWriter, clientRequest *http.Request) {
	snapshot, err := status(clientRequest.Context())
	if err != nil {
		serverResponder.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	jResp(baseCtx, serverResponder, snapshot)
}
