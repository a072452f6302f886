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

// measurementStartHeaderLen is the fixed part of a measurement start frame.
// It is followed by NumChannels uint16 source ids and NumChannels uint8 type tags.
const measurementStartHeaderLen = 18

// MeasurementStart describes the channel layout of the measurement that follows.
type MeasurementStart struct {
	FrameHeader
	SamplingRateHz uint32
	SampleFormat   uint32
	TriggerDefs    uint32
	NumChannels    uint16
	// SourceChannels holds TriggerSourceChannel for rows carrying digital trigger bits
	SourceChannels []uint16
	ChannelTypes   []uint8
}

// DecodeMeasurementStart decodes a measurement start frame
func DecodeMeasurementStart(data []byte) (*MeasurementStart, error) {
	if len(data) < measurementStartHeaderLen {
		return nil, ErrMalformedPacket{Type: FrameTypeMeasurementStart, What: "header too short"}
	}
	m := &MeasurementStart{}
	m.FrameHeader.decode(data)
	if m.FrameType != FrameTypeMeasurementStart {
		return nil, ErrMalformedPacket{Type: m.FrameType, What: "not a measurement start frame"}
	}
	m.SamplingRateHz = binary.BigEndian.Uint32(data[4:8])
	m.SampleFormat = binary.BigEndian.Uint32(data[8:12])
	m.TriggerDefs = binary.BigEndian.Uint32(data[12:16])
	m.NumChannels = binary.BigEndian.Uint16(data[16:18])

	n := int(m.NumChannels)
	if len(data) < measurementStartHeaderLen+3*n {
		return nil, ErrMalformedPacket{Type: FrameTypeMeasurementStart, What: "channel arrays shorter than declared channel count"}
	}

	offset := measurementStartHeaderLen
	m.SourceChannels = make([]uint16, n)
	for i := range m.SourceChannels {
		m.SourceChannels[i] = binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2
	}
	m.ChannelTypes = make([]uint8, n)
	copy(m.ChannelTypes, data[offset:offset+n])
	return m, nil
}

// Len is the encoded length of the frame
func (m *MeasurementStart) Len() int {
	return measurementStartHeaderLen + 3*int(m.NumChannels)
}

func (m *MeasurementStart) check() error {
	n := int(m.NumChannels)
	if len(m.SourceChannels) != n || len(m.ChannelTypes) != n {
		return ErrMalformedPacket{Type: FrameTypeMeasurementStart, What: "channel arrays do not match channel count"}
	}
	return nil
}

func (m *MeasurementStart) serialize(buf []byte) {
	header := m.FrameHeader
	header.FrameType = FrameTypeMeasurementStart
	header.serialize(buf)
	binary.BigEndian.PutUint32(buf[4:8], m.SamplingRateHz)
	binary.BigEndian.PutUint32(buf[8:12], m.SampleFormat)
	binary.BigEndian.PutUint32(buf[12:16], m.TriggerDefs)
	binary.BigEndian.PutUint16(buf[16:18], m.NumChannels)
	offset := measurementStartHeaderLen
	for _, source := range m.SourceChannels {
		binary.BigEndian.PutUint16(buf[offset:offset+2], source)
		offset += 2
	}
	copy(buf[offset:], m.ChannelTypes)
}

// EncodeMeasurementStart is the inverse of DecodeMeasurementStart
func EncodeMeasurementStart(m *MeasurementStart) ([]byte, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	buf := make([]byte, m.Len())
	m.serialize(buf)
	return buf, nil
}

// MeasurementStartLayer ...
type MeasurementStartLayer struct {
	layers.BaseLayer
	MeasurementStart
}

var MeasurementStartLayerType = gopacket.RegisterLayerType(MeasurementStartLayerNum,
	gopacket.LayerTypeMetadata{Name: "MeasurementStartLayerType", Decoder: gopacket.DecodeFunc(decodeMeasurementStartLayer)})

// LayerType returns the type of the measurement start layer in the layer catalog
func (l *MeasurementStartLayer) LayerType() gopacket.LayerType {
	return MeasurementStartLayerType
}

func (l *MeasurementStartLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	m, err := DecodeMeasurementStart(data)
	if err != nil {
		df.SetTruncated()
		return err
	}
	l.MeasurementStart = *m
	l.BaseLayer = layers.BaseLayer{
		Contents: data[:m.Len()],
		Payload:  data[m.Len():],
	}
	return nil
}

// SerializeTo serializes the layer into bytes and writes the bytes to the SerializeBuffer
func (l *MeasurementStartLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	if err := l.MeasurementStart.check(); err != nil {
		return err
	}
	buf, err := b.AppendBytes(l.MeasurementStart.Len())
	if err != nil {
		return err
	}
	l.MeasurementStart.serialize(buf)
	return nil
}

func (l *MeasurementStartLayer) CanDecode() gopacket.LayerClass {
	return MeasurementStartLayerType
}

func (l *MeasurementStartLayer) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

func decodeMeasurementStartLayer(data []byte, p gopacket.PacketBuilder) error {
	l := &MeasurementStartLayer{}
	if err := l.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(l)
	return nil
}
