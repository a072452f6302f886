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

package dsp

import (
	"fmt"
)

// ErrInsufficientData is returned when fewer samples are available than a stage needs
type ErrInsufficientData struct {
	Need int
	Have int
}

func (e ErrInsufficientData) Error() string {
	return fmt.Sprintf("Insufficient data: need %d samples, have %d", e.Need, e.Have)
}

// ErrInvalidArgument is returned by constructors for parameters they can not work with
type ErrInvalidArgument struct {
	What string
}

func (e ErrInvalidArgument) Error() string {
	return fmt.Sprintf("Invalid argument: %s", e.What)
}
