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
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-eeg/pkg/dsp"
	"jinr.ru/greenlab/go-eeg/pkg/event"
	"jinr.ru/greenlab/go-eeg/pkg/store"
)

const testRate = 5000

func TestDefaultParameters(t *testing.T) {
	p := DefaultParameters()
	assert.NoError(t, p.Validate())
	assert.Equal(t, 10, p.DownsamplingFactor)
	assert.Equal(t, 6, p.Delay)
	assert.Equal(t, 35, p.Edge)
	assert.Equal(t, 15, p.ModelOrder)
	assert.Equal(t, 64, p.HilbertWinLength)
	assert.Equal(t, math.Pi/2, p.StimulationTarget)
	assert.Equal(t, 0, p.PhaseShift)
	assert.False(t, p.GACorrection)
	assert.Equal(t, 114, p.HistoryLength())
}

func TestParametersValidate(t *testing.T) {
	cases := map[string]func(p *Parameters){
		"zero factor":         func(p *Parameters) { p.DownsamplingFactor = 0 },
		"negative delay":      func(p *Parameters) { p.Delay = -1 },
		"negative edge":       func(p *Parameters) { p.Edge = -1 },
		"zero order":          func(p *Parameters) { p.ModelOrder = 0 },
		"short window":        func(p *Parameters) { p.HilbertWinLength = 2 },
		"odd window":          func(p *Parameters) { p.HilbertWinLength = 63 },
		"target too large":    func(p *Parameters) { p.StimulationTarget = 4 },
		"target not a number": func(p *Parameters) { p.StimulationTarget = math.NaN() },
		"negative shift":      func(p *Parameters) { p.PhaseShift = -3 },
		"GA without length":   func(p *Parameters) { p.GACorrection = true; p.GALength = 0 },
		"GA without average":  func(p *Parameters) { p.GACorrection = true; p.GAAverage = 0 },
		"unknown fit":         func(p *Parameters) { p.ModelFit = "yule" },
		"negative channel":    func(p *Parameters) { p.Channel = -1 },
		"no display":          func(p *Parameters) { p.SamplesToDisplay = 0 },
		"no iterations":       func(p *Parameters) { p.BenchmarkIterations = 0 },
	}
	for name, modify := range cases {
		p := DefaultParameters()
		modify(&p)
		err := p.Validate()
		assert.ErrorAs(t, err, &ErrConfiguration{}, name)
	}

	p := DefaultParameters()
	p.GALength = 0
	assert.NoError(t, p.Validate(), "GA settings are ignored while GA correction is off")
	p.StimulationTarget = -math.Pi
	assert.NoError(t, p.Validate())
}

func TestOutputBufferWraps(t *testing.T) {
	o := NewOutputBuffer(3)
	for i := 1; i <= 5; i++ {
		v := float64(i)
		o.Push(OutputRow{Signal: v, Phase: -v, Stimulation: 0, Trigger: 10 * v})
	}
	s := o.Snapshot()
	assert.Equal(t, 3, s.Width)
	assert.Equal(t, 3, s.Filled)
	assert.Equal(t, []float64{3, 4, 5}, s.Signal)
	assert.Equal(t, []float64{-3, -4, -5}, s.Phase)
	assert.Equal(t, []float64{30, 40, 50}, s.Trigger)

	o.Resize(10)
	s = o.Snapshot()
	assert.Equal(t, 10, s.Width)
	assert.Equal(t, 0, s.Filled)
	assert.Empty(t, s.Signal)
}

func TestOutputBufferConsistentSnapshots(t *testing.T) {
	o := NewOutputBuffer(64)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20000; i++ {
			v := float64(i)
			o.Push(OutputRow{Signal: v, Phase: v, Stimulation: v, Trigger: v})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%50 == 0 {
				o.Resize(32 + i%3)
			}
			s := o.Snapshot()
			require.Len(t, s.Signal, s.Filled)
			assert.LessOrEqual(t, s.Filled, s.Width)
			for j := range s.Signal {
				assert.Equal(t, s.Signal[j], s.Phase[j])
				assert.Equal(t, s.Signal[j], s.Stimulation[j])
				assert.Equal(t, s.Signal[j], s.Trigger[j])
				if j > 0 {
					assert.Greater(t, s.Signal[j], s.Signal[j-1])
				}
			}
		}
	}()
	wg.Wait()
}

func TestChainCrossing(t *testing.T) {
	p := DefaultParameters()
	c, err := newChain(p)
	require.NoError(t, err)

	target := p.StimulationTarget
	steps := []struct {
		phase float64
		want  bool
	}{
		{target - 0.2, false},
		{target - 0.1, false},
		{target + 0.05, true},
		{target + 0.2, false},
		{math.Pi - 0.05, false},
		// wrapping from +pi to -pi is not a crossing of pi/2
		{-math.Pi + 0.05, false},
		{target - 0.01, false},
		{target, true},
		// going backwards
		{target - 0.1, false},
	}
	for i, step := range steps {
		assert.Equal(t, step.want, c.crossed(step.phase), "step %d", i)
	}
}

func TestChainWarmupAndUnderrun(t *testing.T) {
	p := DefaultParameters()
	c, err := newChain(p)
	require.NoError(t, err)

	outputs, underruns := 0, 0
	for i := 0; i < 200*p.DownsamplingFactor; i++ {
		_, produced, err := c.push(math.Sin(float64(i) * 0.01))
		if !produced {
			continue
		}
		outputs++
		if err != nil {
			assert.ErrorAs(t, err, &ErrBufferUnderrun{})
			assert.ErrorAs(t, err, &dsp.ErrInsufficientData{})
			underruns++
		}
	}
	assert.Equal(t, 200, outputs)
	assert.Equal(t, p.HistoryLength()-1, underruns)

	c.reset()
	_, _, err = c.push(0)
	assert.NoError(t, err)
	assert.Empty(t, c.history)
}

// a raw 10 Hz oscillation through the whole chain keeps the phase of the newest raw sample
func TestChainTracksTruePhase(t *testing.T) {
	for _, delay := range []int{0, DefaultDelay, 12} {
		p := DefaultParameters()
		p.Delay = delay
		c, err := newChain(p)
		require.NoError(t, err)

		omega := 2 * math.Pi * 10 / testRate
		var sum float64
		count := 0
		for n := 0; n < 20000; n++ {
			out, produced, err := c.push(50 * math.Cos(omega*float64(n)))
			if !produced || err != nil || n < c.warmup()+2000 {
				continue
			}
			sum += math.Abs(dsp.PhaseDistance(out.phase, dsp.WrapPhase(omega*float64(n))))
			count++
		}
		require.NotZero(t, count)
		assert.Less(t, sum/float64(count), 0.1, "delay %d", delay)
	}
}

// artifactOnly is a periodic gradient artifact with the given period
func artifactOnly(n, period int) float64 {
	k := n % period
	return 200*math.Sin(2*math.Pi*float64(k)/float64(period)) + 80*float64(k%7)
}

func TestChainSkipsLostSamples(t *testing.T) {
	p := DefaultParameters()
	p.GACorrection = true
	p.GALength = 50
	p.GAAverage = 2
	c, err := newChain(p)
	require.NoError(t, err)

	const lostFrom, lost = 1500, 20
	for n := 0; n < 4000; n++ {
		if n >= lostFrom && n < lostFrom+lost {
			continue
		}
		if n == lostFrom+lost {
			c.skip(lost)
		}
		out, produced, _ := c.push(artifactOnly(n, p.GALength))
		if produced && n >= 1000 {
			assert.InDelta(t, 0, out.signal, 1e-6, "sample %d", n)
		}
	}
}

func TestLiveRunCountsLostSamples(t *testing.T) {
	s := configuredStore(1)
	events := event.NewLog(64)
	w := NewWorker(s, nil, WithEventHandler(events))

	p := DefaultParameters()
	p.GACorrection = true
	p.GALength = 50
	p.GAAverage = 2
	p.SamplesToDisplay = 200
	require.NoError(t, w.Start(p))

	const lostFrom, lost, total = 1500, 20, 4000
	for n := 0; n < total; n++ {
		if n >= lostFrom && n < lostFrom+lost {
			continue
		}
		require.NoError(t, s.AppendAt(uint64(n), []float64{artifactOnly(n, p.GALength)}, float64(n), 0, uint32(n/20)))
	}
	require.Eventually(t, func() bool {
		return w.Status().Counters.Samples == (total-lost)/uint64(p.DownsamplingFactor)
	}, 10*time.Second, 5*time.Millisecond)
	w.Stop()

	assert.Equal(t, uint64(lost), w.Status().Counters.Lost)
	out := w.Output().Snapshot()
	require.Equal(t, 200, out.Filled)
	for i, v := range out.Signal {
		assert.InDelta(t, 0, v, 1e-6, "output %d", i)
	}
}

func configuredStore(channels int) *store.Store {
	s := store.New()
	sources := make([]uint16, channels)
	for i := range sources {
		sources[i] = uint16(i + 1)
	}
	s.Configure(sources, testRate)
	return s
}

// appendSine writes n samples of a 10 Hz oscillation on every channel
func appendSine(t *testing.T, s *store.Store, channels, from, n int) {
	t.Helper()
	data := make([]float64, channels)
	for i := from; i < from+n; i++ {
		v := 50 * math.Sin(2*math.Pi*10*float64(i)/testRate)
		for c := range data {
			data[c] = v
		}
		require.NoError(t, s.Append(data, float64(i), 0, uint32(i/20)))
	}
}

func TestStartRejectsInvalidParameters(t *testing.T) {
	events := event.NewLog(8)
	w := NewWorker(configuredStore(1), nil, WithEventHandler(events))

	p := DefaultParameters()
	p.HilbertWinLength = 5
	err := w.Start(p)
	require.ErrorAs(t, err, &ErrConfiguration{})
	assert.False(t, w.Running())
	assert.Equal(t, 1, events.Count(event.PipelineError))
	assert.Equal(t, 0, events.Count(event.Finished))
	assert.NotEmpty(t, w.Status().LastError)
}

func TestLiveRun(t *testing.T) {
	const samples = 20000
	registry := prometheus.NewRegistry()
	s := configuredStore(2)
	events := event.NewLog(256)
	w := NewWorker(s, NewOutputBuffer(10), WithEventHandler(events), WithMetrics(registry))

	p := DefaultParameters()
	p.SamplesToDisplay = 500
	p.Channel = 1
	require.NoError(t, w.Start(p))
	assert.True(t, w.Running())
	assert.ErrorAs(t, w.Start(p), &ErrAlreadyRunning{})

	appendSine(t, s, 2, 0, samples)
	require.Eventually(t, func() bool {
		return w.Status().Counters.Samples == samples/uint64(p.DownsamplingFactor)
	}, 10*time.Second, 5*time.Millisecond)
	w.Stop()
	assert.False(t, w.Running())
	w.Stop()

	status := w.Status()
	assert.Equal(t, uint64(p.HistoryLength()-1), status.Counters.Underruns)
	assert.Equal(t, status.Counters.Samples-status.Counters.Underruns, status.Counters.Estimates)
	// about one stimulation per cycle of the oscillation
	assert.GreaterOrEqual(t, status.Counters.Stimulations, uint64(30))
	assert.LessOrEqual(t, status.Counters.Stimulations, uint64(45))
	assert.Equal(t, ModeLive, status.Mode)
	assert.Empty(t, status.LastError)

	stimulations := 0
	for _, e := range events.Recent(0) {
		if e.Kind != event.Stimulation {
			continue
		}
		stimulations++
		distance := dsp.PhaseDistance(e.Phase, p.StimulationTarget)
		assert.GreaterOrEqual(t, distance, 0.0)
		assert.Less(t, distance, 0.5)
	}
	assert.Equal(t, int(status.Counters.Stimulations), stimulations)
	assert.Equal(t, 1, events.Count(event.Finished))
	assert.Equal(t, 0, events.Count(event.PipelineError))

	out := w.Output().Snapshot()
	assert.Equal(t, 500, out.Width)
	assert.Equal(t, 500, out.Filled)
	marked := 0
	for _, v := range out.Stimulation {
		marked += int(v)
	}
	assert.Greater(t, marked, 0)

	assert.Equal(t, float64(status.Counters.Estimates), testutil.ToFloat64(w.metrics.estimates))
	assert.Equal(t, float64(status.Counters.Stimulations), testutil.ToFloat64(w.metrics.stimulations))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.runs.WithLabelValues("live", "finished")))
}

func TestChannelOutOfRange(t *testing.T) {
	s := configuredStore(1)
	events := event.NewLog(8)
	w := NewWorker(s, nil, WithEventHandler(events))

	p := DefaultParameters()
	p.Channel = 3
	require.NoError(t, w.Start(p))
	appendSine(t, s, 1, 0, 10)
	require.Eventually(t, func() bool {
		return events.Count(event.PipelineError) == 1
	}, 5*time.Second, 5*time.Millisecond)
	w.Wait()

	assert.False(t, w.Running())
	assert.Equal(t, 0, events.Count(event.Finished))
	var configErr ErrConfiguration
	assert.ErrorAs(t, events.Recent(1)[0].Err, &configErr)
	w.Stop()
	assert.Equal(t, 0, events.Count(event.Finished))
}

func TestBenchmark(t *testing.T) {
	s := configuredStore(1)
	events := event.NewLog(64)
	w := NewWorker(s, nil, WithEventHandler(events))
	_, ok := w.Stats()
	assert.False(t, ok)

	p := DefaultParameters()
	p.BenchmarkIterations = 50
	require.NoError(t, w.RunBenchmark(p))
	appendSine(t, s, 1, 0, 5000)
	require.Eventually(t, func() bool {
		return !w.Running()
	}, 10*time.Second, 5*time.Millisecond)
	w.Wait()

	stats, ok := w.Stats()
	require.True(t, ok)
	assert.Equal(t, 50, stats.Iterations)
	assert.Greater(t, stats.Mean, 0.0)
	assert.GreaterOrEqual(t, stats.Max, stats.Mean)
	assert.LessOrEqual(t, stats.Min, stats.Mean)
	assert.Equal(t, 0, events.Count(event.Stimulation))
	assert.Equal(t, 1, events.Count(event.Finished))

	status := w.Status()
	assert.Equal(t, ModeBenchmark, status.Mode)
	require.NotNil(t, status.Benchmark)
	assert.Equal(t, 50, status.Benchmark.Iterations)

	// a new run may start after the benchmark ended on its own
	require.NoError(t, w.Start(DefaultParameters()))
	w.Stop()
	assert.Equal(t, 2, events.Count(event.Finished))
}

func TestBenchmarkStats(t *testing.T) {
	stats := newBenchmarkStats([]time.Duration{time.Microsecond, 3 * time.Microsecond})
	assert.Equal(t, 2, stats.Iterations)
	assert.InDelta(t, 2, stats.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt2, stats.StdDev, 1e-9)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 3.0, stats.Max)
	assert.Equal(t, BenchmarkStats{}, newBenchmarkStats(nil))
}
