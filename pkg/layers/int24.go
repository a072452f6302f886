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

const (
	MaxInt24 = 1<<23 - 1
	MinInt24 = -1 << 23
)

// Int24 decodes a big-endian 3-byte two's complement integer and sign-extends it.
func Int24(b []byte) int32 {
	_ = b[2]
	// place the 24 bits at the top of the word and shift back arithmetically
	return int32(uint32(b[0])<<24|uint32(b[1])<<16|uint32(b[2])<<8) >> 8
}

// PutInt24 writes the low 24 bits of v into b in big-endian order.
// Range checking is the caller's business, see EncodeSamples.
func PutInt24(b []byte, v int32) {
	_ = b[2]
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// Amplifier DC mode scale and nanovolt to microvolt conversion.
// A raw sample multiplied by DCModeScale is nanovolts.
const (
	DCModeScale           = 100
	NanoToMicroConversion = 1000
)

// ToMicrovolts converts a raw amplifier sample to microvolts.
func ToMicrovolts(raw int32) float64 {
	return float64(raw) * DCModeScale / NanoToMicroConversion
}
