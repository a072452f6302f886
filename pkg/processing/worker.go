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

// Package processing runs the closed loop: artifact removal, downsampling,
// phase estimation and stimulation decisions on samples from the store.
package processing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"jinr.ru/greenlab/go-eeg/pkg/event"
	"jinr.ru/greenlab/go-eeg/pkg/log"
	"jinr.ru/greenlab/go-eeg/pkg/store"
)

const (
	DefaultPollInterval = time.Millisecond
	// batch bounds the samples taken from the store in one iteration
	batch = 4096
)

type Mode string

const (
	ModeLive      Mode = "live"
	ModeBenchmark Mode = "benchmark"
)

type Option func(*Worker)

func WithEventHandler(handler event.Handler) Option {
	return func(w *Worker) {
		if handler != nil {
			w.events = handler
		}
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.poll = interval
		}
	}
}

// WithMetrics exports pipeline counters. A nil registerer is ignored.
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(w *Worker) {
		if registerer == nil {
			return
		}
		m, err := newWorkerMetrics(registerer)
		if err != nil {
			log.Warning("Processing metrics are not registered: %s", err)
			return
		}
		w.metrics = m
	}
}

// Counters are totals of the current or last run
type Counters struct {
	Samples      uint64 `json:"samples"`
	Estimates    uint64 `json:"estimates"`
	Underruns    uint64 `json:"underruns"`
	Stimulations uint64 `json:"stimulations"`
	// Lost counts raw samples missing between consecutive acquisition positions
	Lost         uint64 `json:"lost"`
}

type Status struct {
	Running    bool            `json:"running"`
	Mode       Mode            `json:"mode,omitempty"`
	Parameters *Parameters     `json:"parameters,omitempty"`
	Counters   Counters        `json:"counters"`
	LastPhase  float64         `json:"lastPhase"`
	Benchmark  *BenchmarkStats `json:"benchmark,omitempty"`
	LastError  string          `json:"lastError,omitempty"`
}

// Worker owns at most one running pipeline loop
type Worker struct {
	store   *store.Store
	output  *OutputBuffer
	events  event.Handler
	poll    time.Duration
	metrics *workerMetrics
	running atomic.Bool

	// mu serializes Start, Stop and RunBenchmark
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statusMu  sync.Mutex
	mode      Mode
	params    *Parameters
	counters  Counters
	lastPhase float64
	benchmark *BenchmarkStats
	lastError error
}

func NewWorker(s *store.Store, output *OutputBuffer, opts ...Option) *Worker {
	if output == nil {
		output = NewOutputBuffer(DefaultSamplesToDisplay)
	}
	w := &Worker{
		store:  s,
		output: output,
		events: event.Discard,
		poll:   DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Output() *OutputBuffer {
	return w.output
}

func (w *Worker) Running() bool {
	return w.running.Load()
}

// Start runs the live loop with stimulation decisions
func (w *Worker) Start(params Parameters) error {
	return w.start(params, ModeLive)
}

// RunBenchmark runs the same stages without stimulation and collects
// the time spent per estimate for params.BenchmarkIterations estimates.
func (w *Worker) RunBenchmark(params Parameters) error {
	return w.start(params, ModeBenchmark)
}

func (w *Worker) start(params Parameters, mode Mode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running.Load() {
		return ErrAlreadyRunning{Mode: w.Status().Mode}
	}

	c, err := newChain(params)
	if err != nil {
		w.report(mode, err)
		return err
	}

	w.statusMu.Lock()
	w.mode = mode
	w.params = &params
	w.counters = Counters{}
	w.lastError = nil
	if mode == ModeBenchmark {
		w.benchmark = nil
	}
	w.statusMu.Unlock()

	w.output.Resize(params.SamplesToDisplay)
	if w.cancel != nil {
		// the previous run has already returned on its own
		w.cancel()
	}
	cursor := w.store.Latest()
	// step back so the first estimates come without waiting for new history
	if warmup := uint64(c.warmup()); cursor.Index > warmup {
		cursor.Index -= warmup
	} else {
		cursor.Index = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	w.running.Store(true)
	log.Info("Processing started in %s mode: %s", mode, params)
	go w.run(ctx, c, cursor, mode, done)
	return nil
}

// Stop cancels the running loop and waits for it to return
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
	w.done = nil
}

// Wait blocks until the current run ends
func (w *Worker) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (w *Worker) run(ctx context.Context, c *chain, cursor store.Cursor, mode Mode, done chan struct{}) {
	defer close(done)
	err := w.loop(ctx, c, cursor, mode)
	w.running.Store(false)
	if err != nil {
		w.report(mode, err)
		return
	}
	if w.metrics != nil {
		w.metrics.runs.WithLabelValues(string(mode), "finished").Inc()
	}
	log.Info("Processing finished (%s mode)", mode)
	w.events.HandleEvent(event.New(event.Finished, event.SourceProcessing, nil))
}

func (w *Worker) report(mode Mode, err error) {
	w.statusMu.Lock()
	w.lastError = err
	w.statusMu.Unlock()
	if w.metrics != nil {
		w.metrics.runs.WithLabelValues(string(mode), "error").Inc()
	}
	log.Error("Processing stopped: %s", err)
	w.events.HandleEvent(event.New(event.PipelineError, event.SourceProcessing, err))
}

func (w *Worker) loop(ctx context.Context, c *chain, cursor store.Cursor, mode Mode) error {
	params := c.params

	var elapsed []time.Duration
	if mode == ModeBenchmark {
		elapsed = make([]time.Duration, 0, params.BenchmarkIterations)
	}
	underrun := false
	var last uint64
	hasLast := false

	for {
		select {
		case <-ctx.Done():
			w.finishBenchmark(mode, elapsed)
			return nil
		default:
		}

		samples, next := w.store.Since(cursor, batch)
		if next.Generation != cursor.Generation {
			c.reset()
			hasLast = false
			log.Debug("Processing follows store generation %d", next.Generation)
		}
		cursor = next
		if len(samples) == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(w.poll):
			}
			continue
		}

		for _, sample := range samples {
			if params.Channel >= len(sample.Data) {
				return ErrConfiguration{What: fmt.Sprintf("channel %d is out of range, the measurement has %d data channels",
					params.Channel, len(sample.Data))}
			}
			if hasLast && sample.Position > last+1 {
				lost := sample.Position - last - 1
				c.skip(lost)
				w.statusMu.Lock()
				w.counters.Lost += lost
				w.statusMu.Unlock()
				log.Debug("Processing skips %d lost samples before position %d", lost, sample.Position)
			}
			last, hasLast = sample.Position, true

			started := time.Now()
			out, produced, err := c.push(sample.Data[params.Channel])
			if !produced {
				continue
			}
			spent := time.Since(started)

			row := OutputRow{Signal: out.signal, Trigger: float64(sample.Trigger)}
			w.statusMu.Lock()
			w.counters.Samples++
			w.statusMu.Unlock()

			if err != nil {
				var underrunErr ErrBufferUnderrun
				if !errors.As(err, &underrunErr) {
					return fmt.Errorf("phase estimation: %w", err)
				}
				if !underrun {
					log.Debug("Processing skips estimates: %s", err)
					underrun = true
				}
				w.statusMu.Lock()
				w.counters.Underruns++
				w.statusMu.Unlock()
				if w.metrics != nil {
					w.metrics.underruns.Inc()
				}
				w.output.Push(row)
				continue
			}
			underrun = false

			row.Phase = out.phase
			w.statusMu.Lock()
			w.counters.Estimates++
			w.lastPhase = out.phase
			w.statusMu.Unlock()
			if w.metrics != nil {
				w.metrics.estimates.Inc()
				w.metrics.iteration.Observe(spent.Seconds())
			}

			if mode == ModeBenchmark {
				w.output.Push(row)
				elapsed = append(elapsed, spent)
				if len(elapsed) >= params.BenchmarkIterations {
					w.finishBenchmark(mode, elapsed)
					return nil
				}
				continue
			}

			if out.stimulation {
				row.Stimulation = 1
				w.stimulate(out.phase, sample.Index)
			}
			w.output.Push(row)
		}
	}
}

func (w *Worker) stimulate(phase float64, index uint64) {
	w.statusMu.Lock()
	w.counters.Stimulations++
	w.statusMu.Unlock()
	if w.metrics != nil {
		w.metrics.stimulations.Inc()
	}
	e := event.New(event.Stimulation, event.SourceProcessing, nil)
	e.Phase = phase
	e.Index = index
	w.events.HandleEvent(e)
}

func (w *Worker) finishBenchmark(mode Mode, elapsed []time.Duration) {
	if mode != ModeBenchmark {
		return
	}
	stats := newBenchmarkStats(elapsed)
	w.statusMu.Lock()
	w.benchmark = &stats
	w.statusMu.Unlock()
	log.Info("Benchmark: %d iterations, mean %.1f us, std %.1f us, min %.1f us, max %.1f us",
		stats.Iterations, stats.Mean, stats.StdDev, stats.Min, stats.Max)
}

// Stats returns the result of the last benchmark, ok is false if none has finished
func (w *Worker) Stats() (stats BenchmarkStats, ok bool) {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()
	if w.benchmark == nil {
		return BenchmarkStats{}, false
	}
	return *w.benchmark, true
}

func (w *Worker) Status() Status {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()
	status := Status{
		Running:   w.running.Load(),
		Mode:      w.mode,
		Counters:  w.counters,
		LastPhase: w.lastPhase,
	}
	if w.params != nil {
		params := *w.params
		status.Parameters = &params
	}
	if w.benchmark != nil {
		stats := *w.benchmark
		status.Benchmark = &stats
	}
	if w.lastError != nil {
		status.LastError = w.lastError.Error()
	}
	return status
}
