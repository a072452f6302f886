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

package dsp

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// GACorrector removes a periodic gradient artifact of a known period.
// The template at every phase of the period is the mean of the last
// average epochs, it is subtracted before the current sample joins it.
type GACorrector struct {
	length  int
	average int
	epochs  [][]float64
	sum     []float64
	count   int
}

func NewGACorrector(length, average int) (*GACorrector, error) {
	if length < 1 {
		return nil, ErrInvalidArgument{What: "artifact period must be positive"}
	}
	if average < 1 {
		return nil, ErrInvalidArgument{What: "averaging depth must be positive"}
	}
	epochs := make([][]float64, average)
	for i := range epochs {
		epochs[i] = make([]float64, length)
	}
	return &GACorrector{
		length:  length,
		average: average,
		epochs:  epochs,
		sum:     make([]float64, length),
	}, nil
}

// Correct returns x minus the template value at the current phase of the period.
// Samples of the first epoch pass unchanged.
func (g *GACorrector) Correct(x float64) float64 {
	phase := g.count % g.length
	epoch := g.count / g.length
	slot := epoch % g.average

	out := x
	if contributing := min(epoch, g.average); contributing > 0 {
		out = x - g.sum[phase]/float64(contributing)
	}
	if epoch >= g.average {
		g.sum[phase] -= g.epochs[slot][phase]
	}
	g.epochs[slot][phase] = x
	g.sum[phase] += x
	g.count++
	return out
}

// Skip moves the period phase over n lost samples. Slots of the lost
// samples keep their older values.
func (g *GACorrector) Skip(n uint64) {
	// past a full window only the phase within the period matters
	if window := uint64(g.length * g.average); n > window {
		n = window + n%uint64(g.length)
	}
	g.count += int(n)
}

// Process corrects x in place
func (g *GACorrector) Process(x []float64) {
	for i, v := range x {
		x[i] = g.Correct(v)
	}
}

// Template returns the current artifact estimate over complete epochs
func (g *GACorrector) Template() []float64 {
	template := make([]float64, g.length)
	epochs := min(g.count/g.length, g.average)
	if epochs == 0 {
		return template
	}
	return floats.ScaleTo(template, 1/float64(epochs), g.sum)
}

func (g *GACorrector) Reset() {
	for i := range g.epochs {
		for j := range g.epochs[i] {
			g.epochs[i][j] = 0
		}
	}
	for i := range g.sum {
		g.sum[i] = 0
	}
	g.count = 0
}

// DelaySubtractor computes y[n] = x[n] - x[n-delay]. Samples before the
// stream start count as zero. Delay 0 passes samples through.
type DelaySubtractor struct {
	delay   int
	history []float64
	pos     int
}

func NewDelaySubtractor(delay int) (*DelaySubtractor, error) {
	if delay < 0 {
		return nil, ErrInvalidArgument{What: "delay must not be negative"}
	}
	return &DelaySubtractor{delay: delay, history: make([]float64, delay)}, nil
}

func (d *DelaySubtractor) Apply(x float64) float64 {
	if d.delay == 0 {
		return x
	}
	old := d.history[d.pos]
	d.history[d.pos] = x
	d.pos = (d.pos + 1) % d.delay
	return x - old
}

// PhaseShift is the phase the subtractor adds to a sinusoid of angular frequency
// omega in radians per sample. It is zero when the delay is zero.
func (d *DelaySubtractor) PhaseShift(omega float64) float64 {
	if d.delay == 0 {
		return 0
	}
	return math.Pi/2 - omega*float64(d.delay)/2
}

func (d *DelaySubtractor) Reset() {
	for i := range d.history {
		d.history[i] = 0
	}
	d.pos = 0
}
