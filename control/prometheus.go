// Author: momentics <momentics@gmail.com>

package control

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports every numeric entry of a MetricsRegistry as a gauge.
// Keys are sanitized: "server.bytes_in" becomes "<namespace>_server_bytes_in".
type Collector struct {
	namespace string
	registry  *MetricsRegistry
}

// NewCollector wraps registry for prometheus registration.
func NewCollector(namespace string, registry *MetricsRegistry) *Collector {
	return &Collector{namespace: namespace, registry: registry}
}

// Describe sends nothing, making this an unchecked collector; the key set
// is only known at scrape time.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for key, raw := range c.registry.GetSnapshot() {
		v, ok := toFloat(raw)
		if !ok {
			continue
		}
		desc := prometheus.NewDesc(prometheus.BuildFQName(c.namespace, "", metricName(key)), "registry value "+key, nil, nil)
		m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v)
		if err != nil {
			continue
		}
		ch <- m
	}
}

func metricName(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, key)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
