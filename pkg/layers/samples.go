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

package layers

import (
	"encoding/binary"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// samplesHeaderLen is the fixed part of a samples frame.
// It is followed by NumSampleBundles x NumChannels big-endian int24 samples.
const samplesHeaderLen = 28

const bytesPerSample = 3

// Samples carries NumSampleBundles consecutive time samples of all channels
type Samples struct {
	FrameHeader
	PacketSeqNo      uint32
	NumChannels      uint16
	NumSampleBundles uint16
	FirstSampleIndex uint64
	FirstSampleTime  uint64
	// Values is indexed [bundle][channel]
	Values [][]int32
}

// DecodeSamples decodes a samples frame. When channelCount is positive the frame
// must declare exactly that many channels. The declared bundle count is checked
// against the payload length before any sample is read.
func DecodeSamples(data []byte, channelCount int) (*Samples, error) {
	if len(data) < samplesHeaderLen {
		return nil, ErrMalformedPacket{Type: FrameTypeSamples, What: "header too short"}
	}
	s := &Samples{}
	s.FrameHeader.decode(data)
	if s.FrameType != FrameTypeSamples {
		return nil, ErrMalformedPacket{Type: s.FrameType, What: "not a samples frame"}
	}
	s.PacketSeqNo = binary.BigEndian.Uint32(data[4:8])
	s.NumChannels = binary.BigEndian.Uint16(data[8:10])
	s.NumSampleBundles = binary.BigEndian.Uint16(data[10:12])
	s.FirstSampleIndex = binary.BigEndian.Uint64(data[12:20])
	s.FirstSampleTime = binary.BigEndian.Uint64(data[20:28])

	channels := int(s.NumChannels)
	if channelCount > 0 && channels != channelCount {
		return nil, ErrMalformedPacket{Type: FrameTypeSamples, What: "channel count differs from measurement start"}
	}

	payload := data[samplesHeaderLen:]
	bundles := int(s.NumSampleBundles)
	if channels == 0 {
		if bundles != 0 {
			return nil, ErrMalformedPacket{Type: FrameTypeSamples, What: "bundles declared without channels"}
		}
		s.Values = [][]int32{}
		return s, nil
	}
	available := len(payload) / (bytesPerSample * channels)
	if bundles > available {
		return nil, ErrMalformedPacket{Type: FrameTypeSamples, What: "payload shorter than declared bundles"}
	}

	flat := make([]int32, bundles*channels)
	s.Values = make([][]int32, bundles)
	offset := 0
	for b := 0; b < bundles; b++ {
		row := flat[b*channels : (b+1)*channels : (b+1)*channels]
		for c := range row {
			row[c] = Int24(payload[offset : offset+bytesPerSample])
			offset += bytesPerSample
		}
		s.Values[b] = row
	}
	return s, nil
}

// Len is the encoded length of the frame
func (s *Samples) Len() int {
	return samplesHeaderLen + int(s.NumSampleBundles)*int(s.NumChannels)*bytesPerSample
}

func (s *Samples) check() error {
	if len(s.Values) != int(s.NumSampleBundles) {
		return ErrMalformedPacket{Type: FrameTypeSamples, What: "bundle rows do not match bundle count"}
	}
	for _, row := range s.Values {
		if len(row) != int(s.NumChannels) {
			return ErrMalformedPacket{Type: FrameTypeSamples, What: "bundle row does not match channel count"}
		}
		for _, v := range row {
			if v > MaxInt24 || v < MinInt24 {
				return ErrSampleRange{Value: v}
			}
		}
	}
	return nil
}

func (s *Samples) serialize(buf []byte) {
	header := s.FrameHeader
	header.FrameType = FrameTypeSamples
	header.serialize(buf)
	binary.BigEndian.PutUint32(buf[4:8], s.PacketSeqNo)
	binary.BigEndian.PutUint16(buf[8:10], s.NumChannels)
	binary.BigEndian.PutUint16(buf[10:12], s.NumSampleBundles)
	binary.BigEndian.PutUint64(buf[12:20], s.FirstSampleIndex)
	binary.BigEndian.PutUint64(buf[20:28], s.FirstSampleTime)
	offset := samplesHeaderLen
	for _, row := range s.Values {
		for _, v := range row {
			PutInt24(buf[offset:offset+bytesPerSample], v)
			offset += bytesPerSample
		}
	}
}

// EncodeSamples is the inverse of DecodeSamples
func EncodeSamples(s *Samples) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	buf := make([]byte, s.Len())
	s.serialize(buf)
	return buf, nil
}

// SamplesLayer ...
type SamplesLayer struct {
	layers.BaseLayer
	Samples
}

var SamplesLayerType = gopacket.RegisterLayerType(SamplesLayerNum,
	gopacket.LayerTypeMetadata{Name: "SamplesLayerType", Decoder: gopacket.DecodeFunc(decodeSamplesLayer)})

// LayerType returns the type of the samples layer in the layer catalog
func (l *SamplesLayer) LayerType() gopacket.LayerType {
	return SamplesLayerType
}

// DecodeFromBytes trusts the channel count in the frame header.
// The bridge compares it with the measurement start afterwards.
func (l *SamplesLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	s, err := DecodeSamples(data, 0)
	if err != nil {
		df.SetTruncated()
		return err
	}
	l.Samples = *s
	l.BaseLayer = layers.BaseLayer{
		Contents: data[:s.Len()],
		Payload:  data[s.Len():],
	}
	return nil
}

// SerializeTo serializes the layer into bytes and writes the bytes to the SerializeBuffer
func (l *SamplesLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	if err := l.Samples.check(); err != nil {
		return err
	}
	buf, err := b.AppendBytes(l.Samples.Len())
	if err != nil {
		return err
	}
	l.Samples.serialize(buf)
	return nil
}

func (l *SamplesLayer) CanDecode() gopacket.LayerClass {
	return SamplesLayerType
}

func (l *SamplesLayer) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

func decodeSamplesLayer(data []byte, p gopacket.PacketBuilder) error {
	l := &SamplesLayer{}
	if err := l.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(l)
	return nil
}
