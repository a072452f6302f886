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
	"fmt"
)

// ErrPacketGap is reported when a samples frame does not follow the previous one.
// The stream continues, lost packets are never requested again.
type ErrPacketGap struct {
	Expected uint32
	Received uint32
}

func (e ErrPacketGap) Error() string {
	return fmt.Sprintf("Packet gap: expected sequence number %d, received %d", e.Expected, e.Received)
}

// ErrSocketFault ends the receive loop
type ErrSocketFault struct {
	What string
	Err  error
}

func (e ErrSocketFault) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Socket fault: %s: %s", e.What, e.Err)
	}
	return fmt.Sprintf("Socket fault: %s", e.What)
}

func (e ErrSocketFault) Unwrap() error {
	return e.Err
}
