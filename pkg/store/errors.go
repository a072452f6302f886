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

package store

import (
	"fmt"
)

// ErrNotReady is returned by Append before the first Configure
type ErrNotReady struct{}

func (e ErrNotReady) Error() string {
	return "Sample store is not configured"
}

// ErrChannelMismatch is returned when a data vector does not match the configured channels
type ErrChannelMismatch struct {
	Expected int
	Got      int
}

func (e ErrChannelMismatch) Error() string {
	return fmt.Sprintf("Data vector has %d channels, store is configured for %d", e.Got, e.Expected)
}
