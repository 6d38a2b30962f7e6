// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package upload

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsUpload holds Prometheus metrics for the upload engine.
type metricsUpload struct {
	once sync.Once

	rows               *prometheus.CounterVec
	conflictsRecovered prometheus.Counter
	extraFailures      *prometheus.CounterVec
	rowDuration        prometheus.Histogram
}

var uploadMetrics metricsUpload

func (m *metricsUpload) init() {
	m.once.Do(func() {
		m.rows = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsync_upload_rows_total",
			Help: "Filas subidas por resultado",
		}, []string{"result"})
		m.conflictsRecovered = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabsync_upload_conflicts_recovered_total",
			Help: "Conflictos de escritura recuperados tras invalidar la caché",
		})
		m.extraFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsync_upload_extra_failures_total",
			Help: "Extras de fila (icono, portada, imágenes) que fallaron",
		}, []string{"kind"})

		buckets := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
		m.rowDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tabsync_upload_row_seconds",
			Help:    "Duración de la subida de cada fila",
			Buckets: buckets,
		})

		prometheus.MustRegister(m.rows, m.conflictsRecovered, m.extraFailures, m.rowDuration)
	})
}

func recordRowUploaded(result string, d time.Duration) {
	uploadMetrics.init()
	uploadMetrics.rows.WithLabelValues(result).Inc()
	uploadMetrics.rowDuration.Observe(d.Seconds())
}

func recordConflictRecovered() { uploadMetrics.init(); uploadMetrics.conflictsRecovered.Inc() }

func recordExtraFailure(kind string) { uploadMetrics.init(); uploadMetrics.extraFailures.WithLabelValues(kind).Inc() }
