package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	collectors []prometheus.Collector
)

func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(collectors...)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
