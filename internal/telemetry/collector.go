package telemetry

import "github.com/prometheus/client_golang/prometheus"

var cacheEntriesDesc = prometheus.NewDesc(
	namespace+"_cache_entries",
	"Research results currently held in the cache",
	nil,
	nil,
)

// Sizer reports how many entries a store holds
type Sizer interface {
	Len() int
}

// CacheCollector reads the cache size on each scrape
type CacheCollector struct {
	sizer Sizer
}

// NewCacheCollector creates a collector for sizer
func NewCacheCollector(sizer Sizer) *CacheCollector {
	return &CacheCollector{sizer: sizer}
}

// Describe sends the metric descriptor to the channel.
func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cacheEntriesDesc
}

// Collect emits the current cache size as a gauge.
func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(cacheEntriesDesc, prometheus.GaugeValue, float64(c.sizer.Len()))
}
