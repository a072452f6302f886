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

// TriggerSourceChannel marks a row of digital trigger bits in MeasurementStart.SourceChannels
const TriggerSourceChannel uint16 = 0xffff

// ChannelPartition splits the rows of a samples frame into signal and trigger rows.
// Rows keep the order in which they appear on the wire.
type ChannelPartition struct {
	NumChannels     int
	DataChannels    []uint16
	DataRows        []int
	TriggerChannels []uint16
	TriggerRows     []int
}

// Partition classifies source channel ids by the trigger sentinel
func Partition(sourceChannels []uint16) ChannelPartition {
	p := ChannelPartition{
		NumChannels:     len(sourceChannels),
		DataChannels:    []uint16{},
		DataRows:        []int{},
		TriggerChannels: []uint16{},
		TriggerRows:     []int{},
	}
	for row, source := range sourceChannels {
		if source < TriggerSourceChannel {
			p.DataChannels = append(p.DataChannels, source)
			p.DataRows = append(p.DataRows, row)
		} else {
			p.TriggerChannels = append(p.TriggerChannels, source)
			p.TriggerRows = append(p.TriggerRows, row)
		}
	}
	return p
}

// NumDataChannels is the total channel count minus the trigger channels
func (p ChannelPartition) NumDataChannels() int {
	return p.NumChannels - len(p.TriggerChannels)
}

// TriggerRow returns the row of the first trigger channel. Only the first one is honored.
// ok is false when the measurement has no trigger channel.
func (p ChannelPartition) TriggerRow() (row int, ok bool) {
	if len(p.TriggerRows) == 0 {
		return 0, false
	}
	return p.TriggerRows[0], true
}

// TriggerChannel returns the source id of the honored trigger channel
func (p ChannelPartition) TriggerChannel() (source uint16, ok bool) {
	if len(p.TriggerChannels) == 0 {
		return 0, false
	}
	return p.TriggerChannels[0], true
}
