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

package command

import (
	"fmt"
	"strings"

	"github.com/imroc/req"
)

// ErrApi is returned when the server answers with an error status
type ErrApi struct {
	Status  string
	Message string
}

func (e ErrApi) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API request failed: %s", e.Status)
	}
	return fmt.Sprintf("API request failed: %s: %s", e.Status, e.Message)
}

func checkResponse(r *req.Resp, err error) (*req.Resp, error) {
	if err != nil {
		return nil, err
	}
	if r.Response().StatusCode != 200 {
		return nil, ErrApi{
			Status:  r.Response().Status,
			Message: strings.TrimSpace(r.String()),
		}
	}
	return r, nil
}

// getJSON sends a GET request and decodes the JSON response into v
func getJSON(url string, v interface{}, params ...interface{}) error {
	r, err := checkResponse(req.Get(url, params...))
	if err != nil {
		return err
	}
	return r.ToJSON(v)
}

func postJSON(url string, v interface{}, params ...interface{}) error {
	r, err := checkResponse(req.Post(url, params...))
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return r.ToJSON(v)
}
