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

package processing

import (
	"fmt"
)

// ErrConfiguration ends a pipeline run. It is reported as a PipelineError event.
type ErrConfiguration struct {
	What string
}

func (e ErrConfiguration) Error() string {
	return fmt.Sprintf("Invalid processing configuration: %s", e.What)
}

// ErrBufferUnderrun means there is not enough history for a stage yet.
// The stage is skipped and the loop goes on.
type ErrBufferUnderrun struct {
	Err error
}

func (e ErrBufferUnderrun) Error() string {
	return fmt.Sprintf("Buffer underrun: %s", e.Err)
}

func (e ErrBufferUnderrun) Unwrap() error {
	return e.Err
}

type ErrAlreadyRunning struct {
	Mode Mode
}

func (e ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("Processing is already running in %s mode", e.Mode)
}
