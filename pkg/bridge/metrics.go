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

package bridge

import (
	"github.com/prometheus/client_golang/prometheus"

	"jinr.ru/greenlab/go-eeg/pkg/store"
)

const metricsSubsystem = "bridge"

type bridgeMetrics struct {
	packets      prometheus.Counter
	bytes        prometheus.Counter
	samples      prometheus.Counter
	malformed    prometheus.Counter
	gaps         prometheus.Counter
	ignored      *prometheus.CounterVec
	socketErrors prometheus.Counter
	lastActivity prometheus.Gauge
	state        prometheus.Gauge
}

func newBridgeMetrics(registerer prometheus.Registerer) (*bridgeMetrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: store.MetricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		})
	}
	m := &bridgeMetrics{
		packets:      counter("packets_total", "Total number of datagrams received"),
		bytes:        counter("bytes_total", "Total number of bytes received"),
		samples:      counter("samples_total", "Total number of sample bundles passed to the store"),
		malformed:    counter("malformed_frames_total", "Total number of dropped malformed frames"),
		gaps:         counter("packet_gaps_total", "Total number of detected sequence number gaps"),
		socketErrors: counter("socket_errors_total", "Total number of fatal socket errors"),
		ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: store.MetricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "ignored_frames_total",
			Help:      "Total number of frames accepted without action, by frame type",
		}, []string{"frame_type"}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: store.MetricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "last_activity_timestamp_seconds",
			Help:      "Unix time of the last received datagram",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: store.MetricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "stream_state",
			Help:      "0 while awaiting measurement start, 1 while a measurement is in progress",
		}),
	}
	for _, c := range []prometheus.Collector{m.packets, m.bytes, m.samples, m.malformed, m.gaps,
		m.ignored, m.socketErrors, m.lastActivity, m.state} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
