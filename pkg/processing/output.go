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
	"sync"
)

// OutputRow is one downsampled sample as shown by a display
type OutputRow struct {
	Signal      float64
	Phase       float64
	Stimulation float64
	Trigger     float64
}

// OutputSnapshot holds the rows of an OutputBuffer, oldest first
type OutputSnapshot struct {
	Width       int       `json:"width"`
	Filled      int       `json:"filled"`
	Signal      []float64 `json:"signal"`
	Phase       []float64 `json:"phase"`
	Stimulation []float64 `json:"stimulation"`
	Trigger     []float64 `json:"trigger"`
}

// OutputBuffer is written by the pipeline and read by displays.
// Size and contents change under the same lock.
type OutputBuffer struct {
	mu          sync.RWMutex
	signal      []float64
	phase       []float64
	stimulation []float64
	trigger     []float64
	head        int
	filled      int
}

func NewOutputBuffer(width int) *OutputBuffer {
	o := &OutputBuffer{}
	o.Resize(width)
	return o
}

// Resize drops the contents
func (o *OutputBuffer) Resize(width int) {
	if width < 1 {
		width = 1
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.signal = make([]float64, width)
	o.phase = make([]float64, width)
	o.stimulation = make([]float64, width)
	o.trigger = make([]float64, width)
	o.head = 0
	o.filled = 0
}

func (o *OutputBuffer) Width() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.signal)
}

func (o *OutputBuffer) Push(row OutputRow) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.signal[o.head] = row.Signal
	o.phase[o.head] = row.Phase
	o.stimulation[o.head] = row.Stimulation
	o.trigger[o.head] = row.Trigger
	o.head = (o.head + 1) % len(o.signal)
	if o.filled < len(o.signal) {
		o.filled++
	}
}

func (o *OutputBuffer) Snapshot() OutputSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	width := len(o.signal)
	start := o.head - o.filled
	if start < 0 {
		start += width
	}
	unroll := func(ring []float64) []float64 {
		out := make([]float64, o.filled)
		for i := range out {
			out[i] = ring[(start+i)%width]
		}
		return out
	}
	return OutputSnapshot{
		Width:       width,
		Filled:      o.filled,
		Signal:      unroll(o.signal),
		Phase:       unroll(o.phase),
		Stimulation: unroll(o.stimulation),
		Trigger:     unroll(o.trigger),
	}
}
