package server

import (
	"context"
	"encoding/json"
	"errors"
	"ipdrexporter/internal/exporter"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/metrics"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRequestWindow(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		query     string
		wantStart time.Time
		wantEnd   time.Time
		wantOK    bool
	}{
		{"defaults", "", now.Add(-time.Minute), now, true},
		{"relative start", "?starttime=-5m", now.Add(-5 * time.Minute), now, true},
		{"bad relative start uses default", "?starttime=-5w", now.Add(-time.Minute), now, true},
		{"future start", "?starttime=%2B15m", now.Add(15 * time.Minute), now, false},
		{"absolute start", "?starttime=2026-01-02T03:00:00Z", time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC), now, true},
		{"bad absolute start", "?starttime=badtime", time.Time{}, time.Time{}, false},
		{"end now", "?endtime=now", now.Add(-time.Minute), now, true},
		{"relative end rejected", "?endtime=%2B2y", time.Time{}, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, global.DataPath+tt.query, nil)
			start, end, ok := requestWindow(req, now)
			if ok != tt.wantOK {
				t.Fatalf("ok=%v want=%v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Fatalf("window %v..%v, want %v..%v", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestRequestNamespace(t *testing.T) {
	if ns := requestNamespace(global.DataPath, global.DataPath); ns != nil {
		t.Fatalf("expected no namespace, got %v", ns)
	}
	ns := requestNamespace(global.DataPath+"/Exporter/Session/3/", global.DataPath)
	if len(ns) != 3 || ns[0] != "Exporter" || ns[2] != "3" {
		t.Fatalf("unexpected namespace %v", ns)
	}
}

func TestHandlers(t *testing.T) {
	ctx := context.Background()
	sample := []metrics.Metric{{Name: "outstanding", Namespace: []string{"Exporter"}, Type: metrics.Gauge}}

	tests := []struct {
		name       string
		path       string
		handler    func(http.ResponseWriter, *http.Request)
		wantStatus int
		wantError  bool
	}{
		{
			name: "data no results",
			path: global.DataPath + "?name=test",
			handler: func(w http.ResponseWriter, r *http.Request) {
				handleData(ctx, mockDataSearcher(nil), w, r)
			},
			wantStatus: http.StatusOK,
			wantError:  true,
		},
		{
			name: "data results",
			path: global.DataPath + "?name=outstanding",
			handler: func(w http.ResponseWriter, r *http.Request) {
				handleData(ctx, mockDataSearcher(sample), w, r)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "data invalid starttime",
			path: global.DataPath + "?starttime=badtime",
			handler: func(w http.ResponseWriter, r *http.Request) {
				handleData(ctx, mockDataSearcher(sample), w, r)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "aggregation requires name",
			path: global.AggregationPath,
			handler: func(w http.ResponseWriter, r *http.Request) {
				handleAggregation(ctx, mockAggregator(metrics.Aggregation{}, nil), w, r)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "aggregation error reported as JSON",
			path: global.AggregationPath + "?name=missing",
			handler: func(w http.ResponseWriter, r *http.Request) {
				handleAggregation(ctx, mockAggregator(metrics.Aggregation{}, errors.New("no metrics")), w, r)
			},
			wantStatus: http.StatusOK,
			wantError:  true,
		},
		{
			name: "aggregation result",
			path: global.AggregationPath + "?name=outstanding",
			handler: func(w http.ResponseWriter, r *http.Request) {
				handleAggregation(ctx, mockAggregator(metrics.Aggregation{Count: 2, Sum: 3}, nil), w, r)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "discovery bad type",
			path: global.DiscoveryPath + "?type=histogram",
			handler: func(w http.ResponseWriter, r *http.Request) {
				handleDiscovery(ctx, mockDiscoverer(sample), w, r)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "discovery by type",
			path: global.DiscoveryPath + "?type=Gauge",
			handler: func(w http.ResponseWriter, r *http.Request) {
				handleDiscovery(ctx, mockDiscoverer(sample), w, r)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "status unavailable",
			path: global.StatusPath,
			handler: func(w http.ResponseWriter, r *http.Request) {
				handleStatus(ctx, mockStatus(exporter.Status{}, errors.New("loop stopped")), w, r)
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			tt.handler(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status=%d want=%d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var jerr Jerror
			_ = json.Unmarshal(rec.Body.Bytes(), &jerr)
			if tt.wantError != (jerr.Msg != "") {
				t.Fatalf("unexpected body %s", rec.Body.String())
			}
		})
	}
}
