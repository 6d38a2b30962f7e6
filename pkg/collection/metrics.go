// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package collection

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsCache holds Prometheus metrics for the collection cache.
type metricsCache struct {
	once sync.Once

	invalidations prometheus.Counter
	pagesFetched  prometheus.Counter
}

var cacheMetrics metricsCache

func (m *metricsCache) init() {
	m.once.Do(func() {
		m.invalidations = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabsync_cache_invalidations_total",
			Help: "Invalidaciones de la caché de colección",
		})
		m.pagesFetched = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabsync_cache_pages_fetched_total",
			Help: "Páginas traídas al reconstruir el índice de filas",
		})

		prometheus.MustRegister(m.invalidations, m.pagesFetched)
	})
}

func recordCacheInvalidation() { cacheMetrics.init(); cacheMetrics.invalidations.Inc() }

func recordCachePageFetched() { cacheMetrics.init(); cacheMetrics.pagesFetched.Inc() }
