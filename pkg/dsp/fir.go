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

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// DefaultTaps is the low-pass length used for a decimation factor
func DefaultTaps(factor int) int {
	return 8*factor + 1
}

// DefaultCutoff puts the cutoff at 80% of the Nyquist frequency after decimation,
// in cycles per input sample.
func DefaultCutoff(factor int) float64 {
	return 0.8 * 0.5 / float64(factor)
}

// LowPass designs a windowed-sinc (Hamming) FIR low-pass filter with unity DC gain.
// cutoff is in cycles per sample, 0 < cutoff < 0.5.
func LowPass(taps int, cutoff float64) []float64 {
	if taps <= 1 {
		return []float64{1}
	}
	h := make([]float64, taps)
	middle := float64(taps-1) / 2
	for i := range h {
		t := float64(i) - middle
		if t == 0 {
			h[i] = 2 * cutoff
			continue
		}
		h[i] = math.Sin(2*math.Pi*cutoff*t) / (math.Pi * t)
	}
	window.Hamming(h)
	floats.Scale(1/floats.Sum(h), h)
	return h
}

// Decimator low-pass filters a stream and keeps every factor-th output.
type Decimator struct {
	factor int
	// taps are stored reversed so the filter is a dot product with the history
	taps []float64
	// history keeps every sample twice so the last len(taps) samples
	// are always contiguous
	history []float64
	pos     int
	phase   int
}

// NewDecimator creates a decimator. With nil taps the default low-pass is designed;
// factor 1 passes samples through unchanged.
func NewDecimator(factor int, taps []float64) (*Decimator, error) {
	if factor < 1 {
		return nil, ErrInvalidArgument{What: "decimation factor must be positive"}
	}
	if taps == nil {
		if factor == 1 {
			taps = []float64{1}
		} else {
			taps = LowPass(DefaultTaps(factor), DefaultCutoff(factor))
		}
	}
	if len(taps) == 0 {
		return nil, ErrInvalidArgument{What: "filter has no taps"}
	}
	reversed := make([]float64, len(taps))
	for i, tap := range taps {
		reversed[len(taps)-1-i] = tap
	}
	return &Decimator{
		factor:  factor,
		taps:    reversed,
		history: make([]float64, 2*len(taps)),
	}, nil
}

func (d *Decimator) Factor() int {
	return d.factor
}

// GroupDelay is the filter delay in output samples
func (d *Decimator) GroupDelay() float64 {
	return float64(len(d.taps)-1) / 2 / float64(d.factor)
}

// Push feeds one input sample. ok is true when an output sample is produced.
func (d *Decimator) Push(x float64) (y float64, ok bool) {
	n := len(d.taps)
	d.pos = (d.pos + 1) % n
	d.history[d.pos] = x
	d.history[d.pos+n] = x
	d.phase++
	if d.phase < d.factor {
		return 0, false
	}
	d.phase = 0
	return floats.Dot(d.taps, d.history[d.pos+1:d.pos+1+n]), true
}

// Process feeds x and appends the produced outputs to dst
func (d *Decimator) Process(dst, x []float64) []float64 {
	for _, v := range x {
		if y, ok := d.Push(v); ok {
			dst = append(dst, y)
		}
	}
	return dst
}

func (d *Decimator) Reset() {
	for i := range d.history {
		d.history[i] = 0
	}
	d.pos = 0
	d.phase = 0
}
