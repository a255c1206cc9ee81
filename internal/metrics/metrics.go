// Package metrics exposes pipeline counters over a Prometheus scrape
// endpoint. Counters are plain atomics updated from the hot path; the
// registry reads them lazily at scrape time.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"safetyeye/internal/logger"
)

var (
	framesReceived  atomic.Int64
	framesProcessed atomic.Int64
	framesSkipped   atomic.Int64
	parseErrors     atomic.Int64
	violations      atomic.Int64
	eventsWritten   atomic.Int64
	alertsSent      atomic.Int64
	alertsFailed    atomic.Int64

	// processMicros holds the latency of the most recent frame.
	processMicros atomic.Int64
)

// IncFramesReceived records one frame popped off the input queue.
func IncFramesReceived() { framesReceived.Add(1) }

// IncFramesProcessed records one frame that passed the rate limiter.
func IncFramesProcessed() { framesProcessed.Add(1) }

// IncFramesSkipped records one frame dropped by the rate limiter.
func IncFramesSkipped() { framesSkipped.Add(1) }

// IncParseErrors records one undecodable frame packet.
func IncParseErrors() { parseErrors.Add(1) }

// AddViolations records violations detected in one frame.
func AddViolations(n int) { violations.Add(int64(n)) }

// AddEventsWritten records event rows persisted to the sink.
func AddEventsWritten(n int) { eventsWritten.Add(int64(n)) }

// IncAlertsSent records one successful alert delivery.
func IncAlertsSent() { alertsSent.Add(1) }

// IncAlertsFailed records one failed alert delivery.
func IncAlertsFailed() { alertsFailed.Add(1) }

// ObserveProcessTime records how long the last frame took end to end.
func ObserveProcessTime(d time.Duration) { processMicros.Store(d.Microseconds()) }

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	gauge := func(name, help string, v *atomic.Int64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: "safetyeye", Name: name, Help: help},
			func() float64 { return float64(v.Load()) },
		)
	}

	reg.MustRegister(
		gauge("frames_received_total", "Frames popped from the input queue.", &framesReceived),
		gauge("frames_processed_total", "Frames that passed the rate limiter.", &framesProcessed),
		gauge("frames_skipped_total", "Frames dropped by the rate limiter.", &framesSkipped),
		gauge("parse_errors_total", "Frame packets that failed to decode.", &parseErrors),
		gauge("violations_detected_total", "Per-person violations detected.", &violations),
		gauge("events_written_total", "Event rows persisted to the sink.", &eventsWritten),
		gauge("alerts_sent_total", "Alerts delivered successfully.", &alertsSent),
		gauge("alerts_failed_total", "Alert deliveries that failed.", &alertsFailed),
		gauge("frame_process_micros", "Latency of the most recent frame in microseconds.", &processMicros),
	)
	return reg
}

// Handler returns the scrape handler backed by a private registry, keeping
// the default registry's Go runtime collectors out of the exposition.
func Handler() http.Handler {
	return promhttp.HandlerFor(newRegistry(), promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr in a background goroutine.
func StartServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	go func() {
		logger.Infof("Metrics server listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Errorf("Metrics server stopped: %v", err)
		}
	}()
}
