// HTTP server exposing metric and exporter status queries to the local system only
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"log"
	"net/http"
	"strconv"
	"strings"
)

const helpTemplate string = `%s metric query server

  GET http://%s:%d%s/<namespace>?name=&starttime=&endtime=
      Metric values recorded between starttime and endtime.
      Times are RFC 3339 or relative to now (e.g. -5m). endtime defaults to now.

  GET http://%s:%d%s/<namespace>?name=&description=&unit=&type=
      One sample per metric matching the filters.

  GET http://%s:%d%s/<namespace>?name=&starttime=&endtime=
      Count, sum, min, max and average of a numeric metric.

  GET http://%s:%d%s
      Peers, sessions and bindings of the exporter.
`

// Sets up HTTP listener configuration for metric and status queries
func SetupListener(ctx context.Context, port int, handlers Handlers) (server *http.Server) {
	requestMultiplexer := http.NewServeMux()

	addr := global.HTTPListenAddr
	helpPage := fmt.Appendf(nil, helpTemplate, global.ProgBaseName,
		addr, port, global.DataPath,
		addr, port, global.DiscoveryPath,
		addr, port, global.AggregationPath,
		addr, port, global.StatusPath)

	// Root help page
	requestMultiplexer.HandleFunc("/", func(serverResponder http.ResponseWriter, clientRequest *http.Request) {
		if clientRequest.Method != http.MethodGet {
			serverResponder.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if clientRequest.URL.Path != "/" {
			serverResponder.WriteHeader(http.StatusNotFound)
			return
		}

		serverResponder.Header().Set("Content-Type", "text/plain; charset=utf-8")
		serverResponder.WriteHeader(http.StatusOK)
		serverResponder.Write(helpPage)
	})

	route := func(path string, available bool, handle func(http.ResponseWriter, *http.Request)) {
		serve := func(serverResponder http.ResponseWriter, clientRequest *http.Request) {
			if clientRequest.Method != http.MethodGet {
				serverResponder.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !available {
				serverResponder.WriteHeader(http.StatusNotFound)
				return
			}
			handle(serverResponder, clientRequest)
		}
		requestMultiplexer.HandleFunc(path, serve)
		requestMultiplexer.HandleFunc(path+"/", serve)
	}

	route(global.DiscoveryPath, handlers.Discover != nil, func(serverResponder http.ResponseWriter, clientRequest *http.Request) {
		handleDiscovery(ctx, handlers.Discover, serverResponder, clientRequest)
	})
	route(global.DataPath, handlers.Search != nil, func(serverResponder http.ResponseWriter, clientRequest *http.Request) {
		handleData(ctx, handlers.Search, serverResponder, clientRequest)
	})
	route(global.AggregationPath, handlers.Aggregate != nil, func(serverResponder http.ResponseWriter, clientRequest *http.Request) {
		handleAggregation(ctx, handlers.Aggregate, serverResponder, clientRequest)
	})
	route(global.StatusPath, handlers.Status != nil, func(serverResponder http.ResponseWriter, clientRequest *http.Request) {
		handleStatus(ctx, handlers.Status, serverResponder, clientRequest)
	})

	server = &http.Server{
		Addr:         addr + ":" + strconv.Itoa(port),
		Handler:      requestMultiplexer,
		ReadTimeout:  global.HTTPReadTimeout,
		WriteTimeout: global.HTTPWriteTimeout,
		IdleTimeout:  global.HTTPIdleTimeout,
		ErrorLog:     log.New(httpLogWriter{ctx: ctx}, "", 0),
	}
	return
}

// Starts the HTTP server and waits for requests
func Start(ctx context.Context, server *http.Server) {
	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
		"Metric query server starting on %s (http://%s/)\n", server.Addr, server.Addr)
	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"Metric query server failed to start: %v\n", err)
	}
}

// Encodes JSON and sends as response body
func jResp(ctx context.Context, serverResponder http.ResponseWriter, content any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(content); err != nil {
		serverResponder.WriteHeader(http.StatusInternalServerError)
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "Failed marshaling query results: %v\n", err)
		return
	}
	serverResponder.Header().Set("Content-Type", "application/json")
	serverResponder.WriteHeader(http.StatusOK)
	serverResponder.Write(buf.Bytes())
}

// Logs HTTP server errors through the context logger
func (logWriter httpLogWriter) Write(p []byte) (n int, err error) {
	n = len(p)
	if n == 0 {
		return
	}
	logctx.LogEvent(logWriter.ctx, global.VerbosityStandard, global.ErrorLog,
		"%s\n", strings.TrimSpace(string(p)))
	return
}
