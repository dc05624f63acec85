// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics provides opt-in, low-overhead Prometheus instrumentation
// for the traversal engine's hot path. It is safe to call from any
// goroutine: when no metrics endpoint is ever started, the counters simply
// accumulate unread.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	processedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nsaudit_namespaces_processed_total",
		Help: "Total namespaces visited by the traversal engine across all workers.",
	})
	errorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nsaudit_namespace_errors_total",
		Help: "Total per-namespace errors (forbidden, transport, data) encountered during traversal.",
	})
	rateLimitSleepSeconds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nsaudit_rate_limit_sleep_seconds_total",
		Help: "Cumulative seconds spent sleeping under the batch rate-limit policy.",
	})
	visitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nsaudit_namespace_visit_duration_seconds",
		Help:    "Wall-clock time spent visiting a single namespace (auth+secrets+children fetch).",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(processedTotal, errorsTotal, rateLimitSleepSeconds, visitDuration)
}

// RecordProcessed increments the processed-namespace counter.
func RecordProcessed() { processedTotal.Inc() }

// RecordError increments the per-namespace error counter.
func RecordError() { errorsTotal.Inc() }

// RecordRateLimitSleep records a rate-limit sleep of the given duration.
func RecordRateLimitSleep(d time.Duration) { rateLimitSleepSeconds.Add(d.Seconds()) }

// ObserveVisit records how long a single VisitNamespace call took.
func ObserveVisit(d time.Duration) { visitDuration.Observe(d.Seconds()) }

// Serve starts a dedicated /metrics HTTP server on addr in a background
// goroutine. Intended for the optional --metrics-addr flag; a process that
// never calls Serve pays only the cost of the counters above.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
