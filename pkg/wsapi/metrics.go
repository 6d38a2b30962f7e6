// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package wsapi

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsAPI holds Prometheus metrics for workspace API traffic.
type metricsAPI struct {
	once sync.Once

	requests *prometheus.CounterVec
	retries  prometheus.Counter
	duration prometheus.Histogram

	uploadsDedup prometheus.Counter
}

var apiMetrics metricsAPI

func (m *metricsAPI) init() {
	m.once.Do(func() {
		m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsync_api_requests_total",
			Help: "Peticiones a la API del workspace por operación y resultado",
		}, []string{"op", "result"})
		m.retries = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabsync_api_retries_total",
			Help: "Reintentos de peticiones a la API",
		})
		m.uploadsDedup = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabsync_api_uploads_dedup_total",
			Help: "Subidas de ficheros evitadas por contenido duplicado",
		})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
		m.duration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tabsync_api_request_seconds",
			Help:    "Duración de peticiones a la API",
			Buckets: buckets,
		})

		prometheus.MustRegister(m.requests, m.retries, m.uploadsDedup, m.duration)
	})
}

// record helpers - used by the client for metrics tracking
func recordAPIRequest(op string, err error, d time.Duration) {
	apiMetrics.init()
	result := "ok"
	if err != nil {
		result = "error"
	}
	apiMetrics.requests.WithLabelValues(op, result).Inc()
	apiMetrics.duration.Observe(d.Seconds())
}

func recordAPIRetry() { apiMetrics.init(); apiMetrics.retries.Inc() }

func recordUploadDedup() { apiMetrics.init(); apiMetrics.uploadsDedup.Inc() }
