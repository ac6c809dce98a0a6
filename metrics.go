package chm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	catalogHeaderReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chm_catalog_header_reads_total",
		Help: "The total number of raster headers read while building catalogs",
	})
	resolveHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chm_resolve_hits_total",
		Help: "The total number of points resolved to a tile",
	})
	resolveMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chm_resolve_misses_total",
		Help: "The total number of points outside every tile",
	})
	clipChunkReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chm_clip_chunk_reads_total",
		Help: "The total number of GeoTIFF tiles or strips read",
	})
	geocodeCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chm_geocode_cache_hits_total",
		Help: "The total number of hits on the geocode cache",
	})
	geocodeCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chm_geocode_cache_misses_total",
		Help: "The total number of misses on the geocode cache",
	})
)
