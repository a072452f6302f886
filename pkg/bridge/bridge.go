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

// Package bridge receives amplifier datagrams over UDP, follows the measurement
// handshake and feeds decoded samples into the sample store.
package bridge

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/prometheus/client_golang/prometheus"

	"jinr.ru/greenlab/go-eeg/pkg/event"
	"jinr.ru/greenlab/go-eeg/pkg/layers"
	"jinr.ru/greenlab/go-eeg/pkg/log"
	"jinr.ru/greenlab/go-eeg/pkg/store"
)

const (
	DefaultAddress        = "0.0.0.0"
	DefaultPort           = 50000
	DefaultTimeout        = 10 * time.Second
	DefaultReadBufferSize = 10 * 1024 * 1024
	DefaultDatagramLength = 65536
)

type Config struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
	// Timeout bounds a single read so cancellation is noticed on a silent socket
	Timeout        time.Duration `json:"timeout"`
	ReadBufferSize int           `json:"readBufferSize"`
	DatagramLength int           `json:"datagramLength"`
}

func DefaultConfig() Config {
	return Config{
		Address:        DefaultAddress,
		Port:           DefaultPort,
		Timeout:        DefaultTimeout,
		ReadBufferSize: DefaultReadBufferSize,
		DatagramLength: DefaultDatagramLength,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.DatagramLength <= 0 {
		c.DatagramLength = d.DatagramLength
	}
	return c
}

type StreamState int32

const (
	AwaitingStart StreamState = iota
	InProgress
)

func (s StreamState) String() string {
	if s == InProgress {
		return "InProgress"
	}
	return "AwaitingStart"
}

// Counters are totals since the bridge was created
type Counters struct {
	Packets      uint64 `json:"packets"`
	Bytes        uint64 `json:"bytes"`
	Samples      uint64 `json:"samples"`
	Gaps         uint64 `json:"gaps"`
	Malformed    uint64 `json:"malformed"`
	Ignored      uint64 `json:"ignored"`
	SocketErrors uint64 `json:"socketErrors"`
}

type Status struct {
	State          string   `json:"state"`
	Running        bool     `json:"running"`
	Address        string   `json:"address,omitempty"`
	LastSequence   *uint32  `json:"lastSequence,omitempty"`
	SamplingRate   uint32   `json:"samplingRate"`
	Channels       int      `json:"channels"`
	DataChannels   int      `json:"dataChannels"`
	TriggerChannel *uint16  `json:"triggerChannel,omitempty"`
	Counters       Counters `json:"counters"`
}

type Option func(*Bridge)

func WithEventHandler(handler event.Handler) Option {
	return func(b *Bridge) {
		if handler != nil {
			b.events = handler
		}
	}
}

// WithMetrics exports bridge counters. A nil registerer is ignored.
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(b *Bridge) {
		if registerer == nil {
			return
		}
		m, err := newBridgeMetrics(registerer)
		if err != nil {
			log.Warning("Bridge metrics are not registered: %s", err)
			return
		}
		b.metrics = m
	}
}

type Bridge struct {
	cfg     Config
	store   *store.Store
	events  event.Handler
	metrics *bridgeMetrics
	running atomic.Bool

	mu           sync.Mutex
	conn         *net.UDPConn
	state        StreamState
	partition    layers.ChannelPartition
	samplingRate uint32
	tracker      SequenceTracker
	counters     Counters
	// scratch vector reused for every bundle, the store copies it
	scratch []float64
}

func NewBridge(cfg Config, s *store.Store, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:    cfg.withDefaults(),
		store:  s,
		events: event.Discard,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind opens the UDP socket. Spin must follow.
func (b *Bridge) Bind() error {
	address := net.JoinHostPort(b.cfg.Address, strconv.Itoa(b.cfg.Port))
	uaddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return ErrSocketFault{What: "resolve " + address, Err: err}
	}
	conn, err := net.ListenUDP("udp", uaddr)
	if err != nil {
		return ErrSocketFault{What: "listen " + address, Err: err}
	}
	if err := conn.SetReadBuffer(b.cfg.ReadBufferSize); err != nil {
		log.Warning("Failed to set UDP receive buffer size to %d: %s", b.cfg.ReadBufferSize, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		conn.Close()
		return ErrSocketFault{What: "already bound to " + b.conn.LocalAddr().String()}
	}
	b.conn = conn
	log.Info("Bridge bound to %s", conn.LocalAddr())
	return nil
}

// LocalAddr returns the bound address or nil
func (b *Bridge) LocalAddr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	return b.conn.LocalAddr()
}

func (b *Bridge) Running() bool {
	return b.running.Load()
}

// Spin runs the receive loop until ctx is done or the socket fails.
// It returns nil on cancellation and ErrSocketFault otherwise. The socket
// is closed on return.
func (b *Bridge) Spin(ctx context.Context) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrSocketFault{What: "socket is not bound"}
	}
	if !b.running.CompareAndSwap(false, true) {
		return ErrSocketFault{What: "receive loop is already running"}
	}
	defer b.running.Store(false)
	defer func() {
		conn.Close()
		b.mu.Lock()
		b.conn = nil
		b.mu.Unlock()
	}()

	// wake a blocked read as soon as ctx is done
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	log.Info("Bridge receive loop started on %s", conn.LocalAddr())
	buffer := make([]byte, b.cfg.DatagramLength)
	for {
		select {
		case <-ctx.Done():
			log.Info("Bridge receive loop stopped")
			return nil
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(b.cfg.Timeout)); err != nil {
			return b.fault(ErrSocketFault{What: "set read deadline", Err: err})
		}
		// a cancel between the check above and the new deadline must not wait a full timeout
		if ctx.Err() != nil {
			log.Info("Bridge receive loop stopped")
			return nil
		}
		length, _, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				log.Info("Bridge receive loop stopped")
				return nil
			}
			return b.fault(ErrSocketFault{What: "receive", Err: err})
		}
		b.HandleDatagram(buffer[:length])
	}
}

func (b *Bridge) fault(err ErrSocketFault) error {
	b.mu.Lock()
	b.counters.SocketErrors++
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.socketErrors.Inc()
	}
	log.Error("%s", err)
	b.events.HandleEvent(event.New(event.SocketFault, event.SourceBridge, err))
	return err
}

// HandleDatagram runs one datagram through the state machine.
// It is called by Spin for every received datagram.
func (b *Bridge) HandleDatagram(data []byte) {
	if b.metrics != nil {
		b.metrics.packets.Inc()
		b.metrics.bytes.Add(float64(len(data)))
		b.metrics.lastActivity.SetToCurrentTime()
	}

	b.mu.Lock()
	b.counters.Packets++
	b.counters.Bytes += uint64(len(data))
	pending := b.handle(data)
	b.mu.Unlock()

	for _, e := range pending {
		b.events.HandleEvent(e)
	}
}

// handle does the work of HandleDatagram under the lock and
// returns the events to report once the lock is released.
func (b *Bridge) handle(data []byte) []event.Event {
	if len(data) == 0 {
		return b.malformed(layers.ErrMalformedPacket{What: "empty datagram"})
	}
	frameType := layers.FrameType(data[0])

	if b.state == AwaitingStart && frameType != layers.FrameTypeMeasurementStart {
		log.Debug("Awaiting measurement start, %s frame ignored", frameType)
		b.ignore(frameType)
		return nil
	}

	switch {
	case frameType == layers.FrameTypeMeasurementStart:
		packet := gopacket.NewPacket(data, layers.FrameDecoder, gopacket.DecodeOptions{NoCopy: true})
		if errLayer := packet.ErrorLayer(); errLayer != nil {
			return b.malformed(errLayer.Error())
		}
		start, ok := packet.Layer(layers.MeasurementStartLayerType).(*layers.MeasurementStartLayer)
		if !ok {
			return b.malformed(layers.ErrMalformedPacket{Type: frameType, What: "no measurement start layer"})
		}
		return b.handleStart(&start.MeasurementStart)
	case frameType == layers.FrameTypeSamples:
		if !b.store.IsReady() {
			log.Debug("Sample store is not ready, samples frame ignored")
			b.ignore(frameType)
			return nil
		}
		packet := gopacket.NewPacket(data, layers.FrameDecoder, gopacket.DecodeOptions{NoCopy: true})
		if errLayer := packet.ErrorLayer(); errLayer != nil {
			return b.malformed(errLayer.Error())
		}
		samples, ok := packet.Layer(layers.SamplesLayerType).(*layers.SamplesLayer)
		if !ok {
			return b.malformed(layers.ErrMalformedPacket{Type: frameType, What: "no samples layer"})
		}
		return b.handleSamples(&samples.Samples)
	default:
		// trigger, measurement end, hardware state and unknown types carry nothing we act on
		log.Debug("%s frame (0x%02x) ignored", frameType, uint8(frameType))
		b.ignore(frameType)
		return nil
	}
}

func (b *Bridge) handleStart(m *layers.MeasurementStart) []event.Event {
	if m.SamplingRateHz == 0 {
		return b.malformed(layers.ErrMalformedPacket{Type: layers.FrameTypeMeasurementStart, What: "sampling rate is zero"})
	}
	partition := layers.Partition(m.SourceChannels)
	if partition.NumDataChannels() == 0 {
		return b.malformed(layers.ErrMalformedPacket{Type: layers.FrameTypeMeasurementStart, What: "no data channels"})
	}

	b.tracker.Reset()
	if source, ok := partition.TriggerChannel(); ok {
		b.store.SetTriggerChannel(source)
	} else {
		b.store.ClearTriggerChannel()
		log.Warning("Measurement has no trigger channel, trigger values are stored as 0")
	}
	b.store.Configure(partition.DataChannels, m.SamplingRateHz)

	if b.state == InProgress {
		log.Info("Measurement restarted")
	}
	b.state = InProgress
	b.partition = partition
	b.samplingRate = m.SamplingRateHz
	b.scratch = make([]float64, partition.NumDataChannels())
	if b.metrics != nil {
		b.metrics.state.Set(float64(InProgress))
	}
	log.Info("Measurement started: unit %d, %d Hz, %d channels (%d data, %d trigger)",
		m.MainUnitNum, m.SamplingRateHz, partition.NumChannels, partition.NumDataChannels(), len(partition.TriggerChannels))
	return nil
}

func (b *Bridge) handleSamples(s *layers.Samples) []event.Event {
	if int(s.NumChannels) != b.partition.NumChannels {
		return b.malformed(layers.ErrMalformedPacket{Type: layers.FrameTypeSamples, What: "channel count differs from measurement start"})
	}

	triggerRow, hasTrigger := b.partition.TriggerRow()
	timestamp := float64(s.FirstSampleTime)
	for bundle, row := range s.Values {
		for i, pos := range b.partition.DataRows {
			b.scratch[i] = layers.ToMicrovolts(row[pos])
		}
		trigger := 0
		if hasTrigger {
			trigger = int(row[triggerRow])
		}
		position := s.FirstSampleIndex + uint64(bundle)
		if err := b.store.AppendAt(position, b.scratch, timestamp, trigger, s.PacketSeqNo); err != nil {
			log.Warning("Samples frame %d dropped: %s", s.PacketSeqNo, err)
			break
		}
		b.counters.Samples++
		if b.metrics != nil {
			b.metrics.samples.Inc()
		}
	}

	if err := b.tracker.Track(s.PacketSeqNo); err != nil {
		b.counters.Gaps++
		if b.metrics != nil {
			b.metrics.gaps.Inc()
		}
		var gap ErrPacketGap
		errors.As(err, &gap)
		log.Warning("%s", err)
		e := event.New(event.PacketGap, event.SourceBridge, err)
		e.Expected = gap.Expected
		e.Received = gap.Received
		return []event.Event{e}
	}
	return nil
}

func (b *Bridge) malformed(err error) []event.Event {
	b.counters.Malformed++
	if b.metrics != nil {
		b.metrics.malformed.Inc()
	}
	log.Warning("Frame dropped: %s", err)
	return []event.Event{event.New(event.MalformedPacket, event.SourceBridge, err)}
}

func (b *Bridge) ignore(frameType layers.FrameType) {
	b.counters.Ignored++
	if b.metrics != nil {
		b.metrics.ignored.WithLabelValues(frameType.String()).Inc()
	}
}

func (b *Bridge) State() StreamState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	status := Status{
		State:        b.state.String(),
		Running:      b.running.Load(),
		SamplingRate: b.samplingRate,
		Channels:     b.partition.NumChannels,
		DataChannels: b.partition.NumDataChannels(),
		Counters:     b.counters,
	}
	if b.conn != nil {
		status.Address = b.conn.LocalAddr().String()
	}
	if seq, ok := b.tracker.Last(); ok {
		status.LastSequence = &seq
	}
	if source, ok := b.partition.TriggerChannel(); ok {
		status.TriggerChannel = &source
	}
	return status
}
