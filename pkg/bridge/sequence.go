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

// SequenceTracker remembers the last accepted samples frame sequence number.
// It only detects discontinuities, frames are never reordered.
type SequenceTracker struct {
	last    uint32
	started bool
}

func (t *SequenceTracker) Reset() {
	t.last = 0
	t.started = false
}

// Track accepts seq as the newest sequence number. The returned error is
// ErrPacketGap when seq is not the successor of the previous one.
func (t *SequenceTracker) Track(seq uint32) error {
	defer func() {
		t.last = seq
		t.started = true
	}()
	if !t.started {
		return nil
	}
	// wraps around at 2^32
	expected := t.last + 1
	if seq != expected {
		return ErrPacketGap{Expected: expected, Received: seq}
	}
	return nil
}

// Last returns the last accepted sequence number, ok is false before the first frame
func (t *SequenceTracker) Last() (seq uint32, ok bool) {
	return t.last, t.started
}
