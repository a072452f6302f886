/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricsNamespace = "goeeg"
	metricsSubsystem = "store"
)

type storeMetrics struct {
	writes      prometheus.Counter
	overwrites  prometheus.Counter
	rejected    prometheus.Counter
	filled      prometheus.Gauge
	utilization prometheus.Gauge
	generation  prometheus.Gauge
}

func newStoreMetrics(registerer prometheus.Registerer) (*storeMetrics, error) {
	m := &storeMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "writes_total",
			Help:      "Total number of samples appended to the store",
		}),
		overwrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "overwrites_total",
			Help:      "Total number of samples evicted before being overwritten",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "rejected_total",
			Help:      "Total number of appends rejected because the store was not ready or the channel count differed",
		}),
		filled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "filled",
			Help:      "Current number of samples in the store",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "utilization",
			Help:      "Store utilization (0.0 to 1.0)",
		}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "generation",
			Help:      "Number of times the store was configured",
		}),
	}
	for _, c := range []prometheus.Collector{m.writes, m.overwrites, m.rejected, m.filled, m.utilization, m.generation} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *storeMetrics) recordWrite(filled, capacity int, overwrite bool) {
	m.writes.Inc()
	if overwrite {
		m.overwrites.Inc()
	}
	m.updateSize(filled, capacity)
}

func (m *storeMetrics) updateSize(filled, capacity int) {
	m.filled.Set(float64(filled))
	m.utilization.Set(float64(filled) / float64(capacity))
}
