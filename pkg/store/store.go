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

// Package store buffers decoded samples between the bridge receive loop
// and the processing pipeline.
package store

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"jinr.ru/greenlab/go-eeg/pkg/log"
)

const (
	DefaultCapacitySeconds = 10.0
	MinCapacity            = 1
)

// Sample is one bundle of data channels in logical channel order.
// Index is assigned by the store and grows by one per append within a generation.
// Position is the acquisition sample index, it jumps where samples were lost upstream.
type Sample struct {
	Index     uint64    `json:"index"`
	Position  uint64    `json:"position"`
	Timestamp float64   `json:"timestamp"`
	Trigger   int       `json:"trigger"`
	Sequence  uint32    `json:"sequence"`
	Data      []float64 `json:"data"`
}

func (s Sample) clone() Sample {
	data := make([]float64, len(s.Data))
	copy(data, s.Data)
	s.Data = data
	return s
}

// Cursor marks the position of an incremental reader.
// Index is the index of the next sample the reader wants.
type Cursor struct {
	Generation uint64 `json:"generation"`
	Index      uint64 `json:"index"`
}

type Stats struct {
	Writes     uint64 `json:"writes"`
	Overwrites uint64 `json:"overwrites"`
	Rejected   uint64 `json:"rejected"`
}

type Option func(*Store)

// WithCapacitySeconds sets how many seconds of data the store keeps at the configured rate
func WithCapacitySeconds(seconds float64) Option {
	return func(s *Store) {
		if seconds > 0 {
			s.seconds = seconds
		}
	}
}

// WithMetrics exports store statistics. A nil registerer is ignored.
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(s *Store) {
		if registerer == nil {
			return
		}
		m, err := newStoreMetrics(registerer)
		if err != nil {
			log.Warning("Store metrics are not registered: %s", err)
			return
		}
		s.metrics = m
	}
}

// Store is a bounded ring of samples with overwrite-oldest policy.
// One producer appends, any number of readers copy out.
type Store struct {
	mu      sync.Mutex
	seconds float64
	metrics *storeMetrics

	ready        bool
	generation   uint64
	samplingRate uint32
	// channels are the data channel source ids in logical (ascending) order,
	// order[i] is the position of logical channel i in an appended vector
	channels []uint16
	order    []int

	triggerChannel    uint16
	hasTriggerChannel bool

	ring         []Sample
	head         int
	filled       int
	nextIndex    uint64
	nextPosition uint64

	stats Stats
}

func New(opts ...Option) *Store {
	s := &Store{
		seconds: DefaultCapacitySeconds,
		ring:    make([]Sample, MinCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func capacityFor(seconds float64, samplingRate uint32) int {
	capacity := int(seconds * float64(samplingRate))
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	return capacity
}

// Configure resets the store for a new measurement. dataChannelOrder lists the data
// channel source ids in the order they are passed to Append.
func (s *Store) Configure(dataChannelOrder []uint16, samplingRate uint32) {
	n := len(dataChannelOrder)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dataChannelOrder[order[a]] < dataChannelOrder[order[b]]
	})
	channels := make([]uint16, n)
	for i, pos := range order {
		channels[i] = dataChannelOrder[pos]
	}
	capacity := capacityFor(s.seconds, samplingRate)
	ring := make([]Sample, capacity)

	s.mu.Lock()
	s.ready = true
	s.generation++
	s.samplingRate = samplingRate
	s.channels = channels
	s.order = order
	s.ring = ring
	s.head = 0
	s.filled = 0
	s.nextIndex = 0
	s.nextPosition = 0
	generation := s.generation
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.generation.Set(float64(generation))
		s.metrics.updateSize(0, capacity)
	}
	log.Info("Sample store configured: %d data channels, %d Hz, capacity %d samples", n, samplingRate, capacity)
}

func (s *Store) SetTriggerChannel(source uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggerChannel = source
	s.hasTriggerChannel = true
}

func (s *Store) ClearTriggerChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggerChannel = 0
	s.hasTriggerChannel = false
}

// TriggerChannel returns the source id of the trigger row, ok is false when there is none
func (s *Store) TriggerChannel() (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggerChannel, s.hasTriggerChannel
}

func (s *Store) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Append stores one bundle right after the previous one. data is in the order given to Configure.
func (s *Store) Append(data []float64, timestamp float64, trigger int, seq uint32) error {
	s.mu.Lock()
	position := s.nextPosition
	s.mu.Unlock()
	return s.AppendAt(position, data, timestamp, trigger, seq)
}

// AppendAt stores one bundle taken at the acquisition sample index position
func (s *Store) AppendAt(position uint64, data []float64, timestamp float64, trigger int, seq uint32) error {
	s.mu.Lock()
	if !s.ready {
		s.stats.Rejected++
		s.mu.Unlock()
		s.recordRejected()
		return ErrNotReady{}
	}
	if len(data) != len(s.order) {
		s.stats.Rejected++
		expected := len(s.order)
		s.mu.Unlock()
		s.recordRejected()
		return ErrChannelMismatch{Expected: expected, Got: len(data)}
	}

	slot := &s.ring[s.head]
	// reuse the evicted vector when the ring has wrapped
	if cap(slot.Data) < len(data) {
		slot.Data = make([]float64, len(data))
	}
	slot.Data = slot.Data[:len(data)]
	for i, pos := range s.order {
		slot.Data[i] = data[pos]
	}
	slot.Index = s.nextIndex
	slot.Position = position
	slot.Timestamp = timestamp
	slot.Trigger = trigger
	slot.Sequence = seq

	s.nextIndex++
	s.nextPosition = position + 1
	s.head = (s.head + 1) % len(s.ring)
	overwrite := s.filled == len(s.ring)
	if overwrite {
		s.stats.Overwrites++
	} else {
		s.filled++
	}
	s.stats.Writes++
	filled, capacity := s.filled, len(s.ring)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.recordWrite(filled, capacity, overwrite)
	}
	return nil
}

func (s *Store) recordRejected() {
	if s.metrics != nil {
		s.metrics.rejected.Inc()
	}
}

// oldest returns the ring position of the oldest kept sample. Caller holds the lock.
func (s *Store) oldest() int {
	pos := s.head - s.filled
	if pos < 0 {
		pos += len(s.ring)
	}
	return pos
}

// copyRange copies count samples starting at the logical offset skip from the oldest.
// Caller holds the lock.
func (s *Store) copyRange(skip, count int) []Sample {
	out := make([]Sample, count)
	start := s.oldest() + skip
	for i := 0; i < count; i++ {
		out[i] = s.ring[(start+i)%len(s.ring)].clone()
	}
	return out
}

// Snapshot returns copies of the most recent up to n samples, oldest first
func (s *Store) Snapshot(n int) []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(n)
}

// snapshot is Snapshot with the lock held
func (s *Store) snapshot(n int) []Sample {
	if n > s.filled {
		n = s.filled
	}
	if n <= 0 {
		return []Sample{}
	}
	return s.copyRange(s.filled-n, n)
}

// Since returns up to max samples (all when max is not positive) starting at the cursor,
// oldest first, and the cursor to continue from. A cursor from another generation, or one
// pointing at already evicted samples, continues from the oldest kept sample.
func (s *Store) Since(c Cursor, max int) ([]Sample, Cursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldestIndex := s.nextIndex - uint64(s.filled)
	from := c.Index
	if c.Generation != s.generation || from < oldestIndex {
		from = oldestIndex
	}
	if from > s.nextIndex {
		from = s.nextIndex
	}
	count := int(s.nextIndex - from)
	if max > 0 && count > max {
		count = max
	}
	next := Cursor{Generation: s.generation, Index: from + uint64(count)}
	if count == 0 {
		return []Sample{}, next
	}
	return s.copyRange(int(from-oldestIndex), count), next
}

// Latest is the cursor right after the newest sample
func (s *Store) Latest() Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Cursor{Generation: s.generation, Index: s.nextIndex}
}

// DataInOrder returns the most recent up to n samples as a channels x samples matrix
func (s *Store) DataInOrder(n int) [][]float64 {
	s.mu.Lock()
	samples := s.snapshot(n)
	channels := len(s.channels)
	s.mu.Unlock()
	matrix := make([][]float64, channels)
	for ch := range matrix {
		matrix[ch] = make([]float64, len(samples))
		for i, sample := range samples {
			if ch < len(sample.Data) {
				matrix[ch][i] = sample.Data[ch]
			}
		}
	}
	return matrix
}

func (s *Store) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ring)
}

func (s *Store) Filled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filled
}

func (s *Store) SamplingRate() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samplingRate
}

// Channels returns the data channel source ids in logical order
func (s *Store) Channels() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	channels := make([]uint16, len(s.channels))
	copy(channels, s.channels)
	return channels
}

func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Status is a point in time description of the store
type Status struct {
	Ready          bool     `json:"ready"`
	Generation     uint64   `json:"generation"`
	SamplingRate   uint32   `json:"samplingRate"`
	Channels       []uint16 `json:"channels"`
	TriggerChannel *uint16  `json:"triggerChannel,omitempty"`
	Capacity       int      `json:"capacity"`
	Filled         int      `json:"filled"`
	Stats          Stats    `json:"stats"`
}

func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := Status{
		Ready:        s.ready,
		Generation:   s.generation,
		SamplingRate: s.samplingRate,
		Channels:     append([]uint16{}, s.channels...),
		Capacity:     len(s.ring),
		Filled:       s.filled,
		Stats:        s.stats,
	}
	if s.hasTriggerChannel {
		trigger := s.triggerChannel
		status.TriggerChannel = &trigger
	}
	return status
}
