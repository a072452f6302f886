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
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func init() {
	initUnknownFrameTypes()
	initActualFrameTypes()
}

const (
	MeasurementStartLayerNum = 2001
	SamplesLayerNum          = 2002
	ReservedFrameLayerNum    = 2003
)

// FrameType is the first byte of every amplifier datagram
type FrameType uint8

const (
	FrameTypeMeasurementStart FrameType = 0x01
	FrameTypeSamples          FrameType = 0x02
	// Frame types below are accepted on the wire but carry nothing we act on.
	FrameTypeTrigger        FrameType = 0x03
	FrameTypeMeasurementEnd FrameType = 0x04
	FrameTypeHardwareState  FrameType = 0x05
)

// Known reports whether the frame type belongs to the protocol at all.
func (t FrameType) Known() bool {
	return t >= FrameTypeMeasurementStart && t <= FrameTypeHardwareState
}

// Reserved reports whether the frame type is accepted but not handled.
func (t FrameType) Reserved() bool {
	return t >= FrameTypeTrigger && t <= FrameTypeHardwareState
}

type errorDecoderForFrameType int

func (e *errorDecoderForFrameType) Decode(data []byte, p gopacket.PacketBuilder) error {
	return e
}

func (e *errorDecoderForFrameType) Error() string {
	return fmt.Sprintf("Unable to decode frame type 0x%02x", int(*e))
}

var errorDecodersForFrameType [256]errorDecoderForFrameType
var FrameTypeMetadata [256]layers.EnumMetadata

func initUnknownFrameTypes() {
	for i := 0; i < 256; i++ {
		errorDecodersForFrameType[i] = errorDecoderForFrameType(i)
		FrameTypeMetadata[i] = layers.EnumMetadata{
			DecodeWith: &errorDecodersForFrameType[i],
			Name:       "UnknownFrameType",
		}
	}
}

func initActualFrameTypes() {
	FrameTypeMetadata[FrameTypeMeasurementStart] = layers.EnumMetadata{
		DecodeWith: gopacket.DecodeFunc(decodeMeasurementStartLayer), Name: "MeasurementStart", LayerType: MeasurementStartLayerType}
	FrameTypeMetadata[FrameTypeSamples] = layers.EnumMetadata{
		DecodeWith: gopacket.DecodeFunc(decodeSamplesLayer), Name: "Samples", LayerType: SamplesLayerType}
	FrameTypeMetadata[FrameTypeTrigger] = layers.EnumMetadata{
		DecodeWith: gopacket.DecodeFunc(decodeReservedFrameLayer), Name: "Trigger", LayerType: ReservedFrameLayerType}
	FrameTypeMetadata[FrameTypeMeasurementEnd] = layers.EnumMetadata{
		DecodeWith: gopacket.DecodeFunc(decodeReservedFrameLayer), Name: "MeasurementEnd", LayerType: ReservedFrameLayerType}
	FrameTypeMetadata[FrameTypeHardwareState] = layers.EnumMetadata{
		DecodeWith: gopacket.DecodeFunc(decodeReservedFrameLayer), Name: "HardwareState", LayerType: ReservedFrameLayerType}
}

// LayerType returns FrameTypeMetadata.LayerType
func (t FrameType) LayerType() gopacket.LayerType {
	return FrameTypeMetadata[t].LayerType
}

// Decode calls FrameTypeMetadata.DecodeWith's decoder
func (t FrameType) Decode(data []byte, p gopacket.PacketBuilder) error {
	return FrameTypeMetadata[t].DecodeWith.Decode(data, p)
}

// String returns FrameTypeMetadata.Name
func (t FrameType) String() string {
	return FrameTypeMetadata[t].Name
}

// FrameDecoder decodes a whole datagram choosing the layer by the frame type byte.
// Use it as the first decoder for gopacket.NewPacket.
var FrameDecoder gopacket.Decoder = gopacket.DecodeFunc(decodeFrame)

func decodeFrame(data []byte, p gopacket.PacketBuilder) error {
	if len(data) == 0 {
		p.SetTruncated()
		return ErrMalformedPacket{What: "empty datagram"}
	}
	return FrameType(data[0]).Decode(data, p)
}

// FrameHeader is the 4 byte prefix shared by all frame types
type FrameHeader struct {
	FrameType   FrameType
	MainUnitNum uint8
	Reserved    [2]byte
}

const frameHeaderLen = 4

func (h *FrameHeader) decode(data []byte) {
	h.FrameType = FrameType(data[0])
	h.MainUnitNum = data[1]
	copy(h.Reserved[:], data[2:4])
}

func (h *FrameHeader) serialize(buf []byte) {
	buf[0] = byte(h.FrameType)
	buf[1] = h.MainUnitNum
	copy(buf[2:4], h.Reserved[:])
}

// ReservedFrameLayer holds trigger, measurement end and hardware state frames.
// Their bodies are kept opaque in Payload.
type ReservedFrameLayer struct {
	layers.BaseLayer
	FrameHeader
}

var ReservedFrameLayerType = gopacket.RegisterLayerType(ReservedFrameLayerNum,
	gopacket.LayerTypeMetadata{Name: "ReservedFrameLayerType", Decoder: gopacket.DecodeFunc(decodeReservedFrameLayer)})

func (l *ReservedFrameLayer) LayerType() gopacket.LayerType {
	return ReservedFrameLayerType
}

func (l *ReservedFrameLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < frameHeaderLen {
		df.SetTruncated()
		return ErrMalformedPacket{What: "frame header too short"}
	}
	l.FrameHeader.decode(data)
	if !l.FrameType.Reserved() {
		return ErrMalformedPacket{Type: l.FrameType, What: "not a reserved frame type"}
	}
	l.BaseLayer = layers.BaseLayer{
		Contents: data[:frameHeaderLen],
		Payload:  data[frameHeaderLen:],
	}
	return nil
}

// SerializeTo writes the header followed by the opaque payload
func (l *ReservedFrameLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	buf, err := b.AppendBytes(frameHeaderLen + len(l.Payload))
	if err != nil {
		return err
	}
	l.FrameHeader.serialize(buf)
	copy(buf[frameHeaderLen:], l.Payload)
	return nil
}

func (l *ReservedFrameLayer) CanDecode() gopacket.LayerClass {
	return ReservedFrameLayerType
}

func (l *ReservedFrameLayer) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

func decodeReservedFrameLayer(data []byte, p gopacket.PacketBuilder) error {
	l := &ReservedFrameLayer{}
	if err := l.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(l)
	return nil
}
