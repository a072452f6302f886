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
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-eeg/pkg/event"
	"jinr.ru/greenlab/go-eeg/pkg/layers"
	"jinr.ru/greenlab/go-eeg/pkg/store"
)

func startFrame(t *testing.T, rate uint32, sources ...uint16) []byte {
	t.Helper()
	data, err := layers.EncodeMeasurementStart(&layers.MeasurementStart{
		SamplingRateHz: rate,
		NumChannels:    uint16(len(sources)),
		SourceChannels: sources,
		ChannelTypes:   make([]uint8, len(sources)),
	})
	require.NoError(t, err)
	return data
}

// samplesFrame fills sample c of bundle b with seq*1000 + b*100 + c
func samplesFrame(t *testing.T, seq uint32, channels, bundles int) []byte {
	t.Helper()
	values := make([][]int32, bundles)
	for b := range values {
		values[b] = make([]int32, channels)
		for c := range values[b] {
			values[b][c] = int32(seq)*1000 + int32(b*100+c)
		}
	}
	data, err := layers.EncodeSamples(&layers.Samples{
		PacketSeqNo:      seq,
		NumChannels:      uint16(channels),
		NumSampleBundles: uint16(bundles),
		FirstSampleIndex: uint64(seq) * uint64(bundles),
		FirstSampleTime:  uint64(seq) * 1000,
		Values:           values,
	})
	require.NoError(t, err)
	return data
}

func TestSequenceTrackerGap(t *testing.T) {
	tracker := SequenceTracker{}
	var gaps []ErrPacketGap
	for _, seq := range []uint32{0, 1, 2, 5, 6} {
		if err := tracker.Track(seq); err != nil {
			gap, ok := err.(ErrPacketGap)
			require.True(t, ok)
			gaps = append(gaps, gap)
		}
	}
	require.Len(t, gaps, 1)
	assert.Equal(t, ErrPacketGap{Expected: 3, Received: 5}, gaps[0])
	last, ok := tracker.Last()
	assert.True(t, ok)
	assert.Equal(t, uint32(6), last)
}

func TestSequenceTrackerWrapAndReset(t *testing.T) {
	tracker := SequenceTracker{}
	require.NoError(t, tracker.Track(0xfffffffe))
	require.NoError(t, tracker.Track(0xffffffff))
	require.NoError(t, tracker.Track(0))

	tracker.Reset()
	_, ok := tracker.Last()
	assert.False(t, ok)
	// the first frame after a reset never counts as a gap
	assert.NoError(t, tracker.Track(77))
}

func newTestBridge() (*Bridge, *store.Store, *event.Log) {
	s := store.New()
	events := event.NewLog(64)
	return NewBridge(Config{Address: "127.0.0.1"}, s, WithEventHandler(events)), s, events
}

func TestAwaitingStartIgnoresOtherFrames(t *testing.T) {
	b, s, events := newTestBridge()
	b.HandleDatagram(samplesFrame(t, 0, 2, 1))
	b.HandleDatagram([]byte{byte(layers.FrameTypeTrigger), 0, 0, 0})

	assert.Equal(t, AwaitingStart, b.State())
	assert.False(t, s.IsReady())
	assert.Equal(t, 0, s.Filled())
	assert.Equal(t, uint64(0), events.Total())
	assert.Equal(t, uint64(2), b.Status().Counters.Ignored)
}

func TestStartAndSamples(t *testing.T) {
	b, s, events := newTestBridge()
	b.HandleDatagram(startFrame(t, 1000, 1, 2, 3, layers.TriggerSourceChannel))
	require.Equal(t, InProgress, b.State())
	require.True(t, s.IsReady())
	assert.Equal(t, []uint16{1, 2, 3}, s.Channels())
	assert.Equal(t, uint32(1000), s.SamplingRate())
	source, ok := s.TriggerChannel()
	assert.True(t, ok)
	assert.Equal(t, layers.TriggerSourceChannel, source)

	b.HandleDatagram(samplesFrame(t, 1, 4, 2))
	samples := s.Snapshot(10)
	require.Len(t, samples, 2)
	// raw 1000 is 100 microvolts
	assert.Equal(t, []float64{100, 100.1, 100.2}, samples[0].Data)
	assert.Equal(t, 1003, samples[0].Trigger)
	assert.Equal(t, []float64{110, 110.1, 110.2}, samples[1].Data)
	assert.Equal(t, 1103, samples[1].Trigger)
	assert.Equal(t, 1000.0, samples[1].Timestamp)
	assert.Equal(t, uint32(1), samples[1].Sequence)
	assert.Equal(t, uint64(0), events.Total())

	status := b.Status()
	assert.Equal(t, "InProgress", status.State)
	require.NotNil(t, status.LastSequence)
	assert.Equal(t, uint32(1), *status.LastSequence)
	assert.Equal(t, 3, status.DataChannels)
	assert.Equal(t, uint64(2), status.Counters.Samples)
}

func TestScaling(t *testing.T) {
	b, s, _ := newTestBridge()
	b.HandleDatagram(startFrame(t, 500, 9))
	data, err := layers.EncodeSamples(&layers.Samples{
		NumChannels:      1,
		NumSampleBundles: 3,
		Values:           [][]int32{{1000}, {-1}, {layers.MinInt24}},
	})
	require.NoError(t, err)
	b.HandleDatagram(data)

	samples := s.Snapshot(3)
	require.Len(t, samples, 3)
	assert.Equal(t, 100.0, samples[0].Data[0])
	assert.Equal(t, -0.1, samples[1].Data[0])
	assert.Equal(t, -838860.8, samples[2].Data[0])
}

func TestNoTriggerChannel(t *testing.T) {
	b, s, _ := newTestBridge()
	s.SetTriggerChannel(65535)
	b.HandleDatagram(startFrame(t, 1000, 4, 5))
	require.Equal(t, InProgress, b.State())

	_, ok := s.TriggerChannel()
	assert.False(t, ok)
	b.HandleDatagram(samplesFrame(t, 0, 2, 1))
	samples := s.Snapshot(1)
	require.Len(t, samples, 1)
	assert.Equal(t, 0, samples[0].Trigger)
	assert.Equal(t, []float64{0, 0.1}, samples[0].Data)
	assert.Nil(t, b.Status().TriggerChannel)
}

func TestPacketGapReported(t *testing.T) {
	b, s, events := newTestBridge()
	b.HandleDatagram(startFrame(t, 1000, 1, 2))
	for _, seq := range []uint32{0, 1, 2, 5, 6} {
		b.HandleDatagram(samplesFrame(t, seq, 2, 1))
	}
	assert.Equal(t, 5, s.Filled())
	recent := events.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, event.PacketGap, recent[0].Kind)
	assert.Equal(t, uint32(3), recent[0].Expected)
	assert.Equal(t, uint32(5), recent[0].Received)
	assert.ErrorAs(t, recent[0].Err, &ErrPacketGap{})
	assert.Equal(t, uint64(1), b.Status().Counters.Gaps)
}

func TestLostFrameKeepsPositions(t *testing.T) {
	b, s, _ := newTestBridge()
	b.HandleDatagram(startFrame(t, 1000, 1, 2))
	for _, seq := range []uint32{0, 1, 3} {
		b.HandleDatagram(samplesFrame(t, seq, 2, 4))
	}
	samples := s.Snapshot(12)
	require.Len(t, samples, 12)
	positions := make([]uint64, len(samples))
	for i, sample := range samples {
		positions[i] = sample.Position
	}
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 12, 13, 14, 15}, positions)
	assert.Equal(t, uint64(11), samples[11].Index)
}

func TestReservedFramesIgnored(t *testing.T) {
	b, s, events := newTestBridge()
	b.HandleDatagram(startFrame(t, 1000, 1))
	b.HandleDatagram(samplesFrame(t, 0, 1, 1))
	for _, frameType := range []layers.FrameType{layers.FrameTypeTrigger, layers.FrameTypeMeasurementEnd, layers.FrameTypeHardwareState, 0x7f} {
		b.HandleDatagram([]byte{byte(frameType), 0, 0, 0, 1, 2, 3})
	}
	b.HandleDatagram(samplesFrame(t, 1, 1, 1))

	assert.Equal(t, InProgress, b.State())
	assert.Equal(t, 2, s.Filled())
	assert.Equal(t, uint64(0), events.Total())
	assert.Equal(t, uint64(4), b.Status().Counters.Ignored)
}

func TestMalformedFramesDropped(t *testing.T) {
	b, s, events := newTestBridge()

	b.HandleDatagram(startFrame(t, 1000, 1, 2, 3)[:20])
	assert.Equal(t, AwaitingStart, b.State())
	b.HandleDatagram(startFrame(t, 0, 1, 2))
	assert.Equal(t, AwaitingStart, b.State())
	b.HandleDatagram(startFrame(t, 1000, layers.TriggerSourceChannel))
	assert.Equal(t, AwaitingStart, b.State())

	b.HandleDatagram(startFrame(t, 1000, 1, 2))
	require.Equal(t, InProgress, b.State())
	// truncated payload
	frame := samplesFrame(t, 0, 2, 4)
	b.HandleDatagram(frame[:len(frame)-1])
	// channel count differs from the measurement start
	b.HandleDatagram(samplesFrame(t, 1, 3, 1))
	b.HandleDatagram([]byte{})

	assert.Equal(t, 0, s.Filled())
	assert.Equal(t, 6, events.Count(event.MalformedPacket))
	var malformed layers.ErrMalformedPacket
	for _, e := range events.Recent(0) {
		assert.ErrorAs(t, e.Err, &malformed)
	}

	// the loop goes on after malformed frames
	b.HandleDatagram(samplesFrame(t, 2, 2, 1))
	assert.Equal(t, 1, s.Filled())
}

func TestRestartReconfigures(t *testing.T) {
	b, s, events := newTestBridge()
	b.HandleDatagram(startFrame(t, 1000, 1, 2))
	b.HandleDatagram(samplesFrame(t, 10, 2, 3))
	require.Equal(t, 3, s.Filled())
	generation := s.Generation()

	b.HandleDatagram(startFrame(t, 2000, 5, 4, 3))
	assert.Equal(t, InProgress, b.State())
	assert.Equal(t, 0, s.Filled())
	assert.Equal(t, generation+1, s.Generation())
	assert.Equal(t, []uint16{3, 4, 5}, s.Channels())

	// sequence numbers start over without a gap report
	b.HandleDatagram(samplesFrame(t, 0, 3, 1))
	assert.Equal(t, uint64(0), events.Total())
	samples := s.Snapshot(1)
	require.Len(t, samples, 1)
	assert.Equal(t, []float64{0.2, 0.1, 0}, samples[0].Data)
}

func TestSpinWithoutBind(t *testing.T) {
	b, _, _ := newTestBridge()
	err := b.Spin(context.Background())
	assert.ErrorAs(t, err, &ErrSocketFault{})
}

func TestSpinStopsOnCancel(t *testing.T) {
	s := store.New()
	b := NewBridge(Config{Address: "127.0.0.1", Port: 0, Timeout: time.Second}, s)
	require.NoError(t, b.Bind())
	require.NotNil(t, b.LocalAddr())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Spin(ctx)
	}()
	require.Eventually(t, b.Running, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("receive loop did not stop")
	}
	assert.False(t, b.Running())
	assert.Nil(t, b.LocalAddr())
}

func TestSpinStopsPromptlyWithLongTimeout(t *testing.T) {
	for i := 0; i < 20; i++ {
		b := NewBridge(Config{Address: "127.0.0.1", Port: 0, Timeout: time.Minute}, store.New())
		require.NoError(t, b.Bind())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- b.Spin(ctx)
		}()
		if i%2 == 0 {
			require.Eventually(t, b.Running, time.Second, time.Millisecond)
		}
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatalf("receive loop did not stop in round %d", i)
		}
	}
}

func TestEndToEndLoopback(t *testing.T) {
	const (
		channels = 13
		bundles  = 20
		frames   = 50
	)
	registry := prometheus.NewRegistry()
	s := store.New(store.WithMetrics(registry))
	events := event.NewLog(16)
	b := NewBridge(Config{Address: "127.0.0.1", Port: 0, Timeout: 100 * time.Millisecond}, s,
		WithEventHandler(events), WithMetrics(registry))
	require.NoError(t, b.Bind())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, b.Spin(ctx))
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	conn, err := net.DialUDP("udp", nil, b.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer conn.Close()

	sources := make([]uint16, channels)
	for i := range sources[:channels-1] {
		sources[i] = uint16(i + 1)
	}
	sources[channels-1] = layers.TriggerSourceChannel
	_, err = conn.Write(startFrame(t, 5000, sources...))
	require.NoError(t, err)
	require.Eventually(t, s.IsReady, 2*time.Second, 5*time.Millisecond)

	for seq := uint32(0); seq < frames; seq++ {
		_, err = conn.Write(samplesFrame(t, seq, channels, bundles))
		require.NoError(t, err)
		// loopback does not drop, pacing keeps the socket buffer small
		time.Sleep(time.Millisecond)
	}
	require.Eventually(t, func() bool {
		return s.Filled() == frames*bundles
	}, 5*time.Second, 10*time.Millisecond)

	samples := s.Snapshot(frames * bundles)
	require.Len(t, samples, frames*bundles)
	for i, sample := range samples {
		seq, bundle := i/bundles, i%bundles
		require.Len(t, sample.Data, channels-1)
		assert.Equal(t, uint32(seq), sample.Sequence)
		assert.Equal(t, uint64(i), sample.Index)
		base := int32(seq)*1000 + int32(bundle*100)
		assert.Equal(t, layers.ToMicrovolts(base), sample.Data[0])
		assert.Equal(t, layers.ToMicrovolts(base+11), sample.Data[11])
		assert.Equal(t, int(base+12), sample.Trigger)
	}
	assert.Equal(t, uint64(0), events.Total())

	status := b.Status()
	assert.Equal(t, uint64(0), status.Counters.Gaps)
	assert.Equal(t, uint64(frames+1), status.Counters.Packets)
	assert.Equal(t, 5000*store.DefaultCapacitySeconds, float64(s.Capacity()))
	assert.Equal(t, float64(frames+1), testutil.ToFloat64(b.metrics.packets))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.metrics.gaps))
}
