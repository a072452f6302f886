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

package processing

import (
	"github.com/prometheus/client_golang/prometheus"

	"jinr.ru/greenlab/go-eeg/pkg/store"
)

const metricsSubsystem = "processing"

type workerMetrics struct {
	estimates    prometheus.Counter
	underruns    prometheus.Counter
	stimulations prometheus.Counter
	runs         *prometheus.CounterVec
	iteration    prometheus.Histogram
}

func newWorkerMetrics(registerer prometheus.Registerer) (*workerMetrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: store.MetricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		})
	}
	m := &workerMetrics{
		estimates:    counter("estimates_total", "Total number of phase estimates"),
		underruns:    counter("underruns_total", "Total number of skipped estimates for lack of history"),
		stimulations: counter("stimulations_total", "Total number of stimulation decisions"),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: store.MetricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "runs_total",
			Help:      "Total number of finished runs by mode and outcome",
		}, []string{"mode", "outcome"}),
		iteration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: store.MetricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "estimate_duration_seconds",
			Help:      "Time spent on one downsampled sample including the phase estimate",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 2, 16),
		}),
	}
	for _, c := range []prometheus.Collector{m.estimates, m.underruns, m.stimulations, m.runs, m.iteration} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
