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
)

// ErrMalformedPacket is returned when a datagram is structurally invalid:
// too short for its declared layout or inconsistent with the session.
type ErrMalformedPacket struct {
	Type FrameType
	What string
}

func (e ErrMalformedPacket) Error() string {
	return fmt.Sprintf("Malformed %s frame: %s", e.Type, e.What)
}

// ErrSampleRange is returned when a sample does not fit into 24 bits
type ErrSampleRange struct {
	Value int32
}

func (e ErrSampleRange) Error() string {
	return fmt.Sprintf("Sample value %d does not fit into signed 24 bits [%d, %d]", e.Value, MinInt24, MaxInt24)
}
