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
	"net/url"
	"time"

	"github.com/imroc/req"

	"jinr.ru/greenlab/go-eeg/pkg/config"
	"jinr.ru/greenlab/go-eeg/pkg/event"
	"jinr.ru/greenlab/go-eeg/pkg/processing"
	"jinr.ru/greenlab/go-eeg/pkg/srv"
)

type ApiClient struct {
	*config.Config
	ApiPrefix string
}

func NewApiClient(cfg *config.Config) *ApiClient {
	return &ApiClient{
		Config:    cfg,
		ApiPrefix: fmt.Sprintf("http://%s/api", cfg.ApiEndpoint()),
	}
}

// EventRecord is an event as served by the API
type EventRecord struct {
	Kind     event.Kind `json:"kind"`
	Source   string     `json:"source"`
	Expected uint32     `json:"expected,omitempty"`
	Received uint32     `json:"received,omitempty"`
	Phase    float64    `json:"phase,omitempty"`
	Index    uint64     `json:"index,omitempty"`
	Time     time.Time  `json:"time"`
	Error    string     `json:"error,omitempty"`
}

func (c *ApiClient) url(path string, elem ...string) string {
	u := c.ApiPrefix + path
	for _, e := range elem {
		u += "/" + url.PathEscape(e)
	}
	return u
}

// Status returns the state of the bridge, the store and the processing worker
func (c *ApiClient) Status() (*srv.Status, error) {
	status := &srv.Status{}
	if err := getJSON(c.url("/status"), status); err != nil {
		return nil, err
	}
	return status, nil
}

// ProcessingStart starts live processing. Parameters given in params
// override the preset, an empty preset means the defaults.
func (c *ApiClient) ProcessingStart(params *processing.Parameters, preset string) (*processing.Status, error) {
	return c.processingRun("start", params, preset)
}

// ProcessingBenchmark starts a benchmark run, see ProcessingStart
func (c *ApiClient) ProcessingBenchmark(params *processing.Parameters, preset string) (*processing.Status, error) {
	return c.processingRun("benchmark", params, preset)
}

func (c *ApiClient) processingRun(mode string, params *processing.Parameters, preset string) (*processing.Status, error) {
	var options []interface{}
	if params != nil {
		options = append(options, req.BodyJSON(params))
	}
	if preset != "" {
		options = append(options, req.QueryParam{"preset": preset})
	}
	status := &processing.Status{}
	if err := postJSON(c.url("/processing", mode), status, options...); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *ApiClient) ProcessingStop() (*processing.Status, error) {
	status := &processing.Status{}
	if err := getJSON(c.url("/processing/stop"), status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *ApiClient) Processing() (*processing.Status, error) {
	status := &processing.Status{}
	if err := getJSON(c.url("/processing"), status); err != nil {
		return nil, err
	}
	return status, nil
}

// Events returns up to max recent events, all kept events if max is 0.
// A non empty kind filters by event kind name.
func (c *ApiClient) Events(max int, kind string) ([]EventRecord, error) {
	query := req.QueryParam{}
	if max > 0 {
		query["max"] = max
	}
	if kind != "" {
		query["kind"] = kind
	}
	var events []EventRecord
	if err := getJSON(c.url("/events"), &events, query); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *ApiClient) PresetList() ([]string, error) {
	var names []string
	if err := getJSON(c.url("/presets"), &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (c *ApiClient) PresetGet(name string) (*processing.Parameters, error) {
	params := &processing.Parameters{}
	if err := getJSON(c.url("/presets", name), params); err != nil {
		return nil, err
	}
	return params, nil
}

// PresetSet stores params under name. Missing fields take default values.
func (c *ApiClient) PresetSet(name string, params *processing.Parameters) error {
	return postJSON(c.url("/presets", name), nil, req.BodyJSON(params))
}

func (c *ApiClient) PresetDelete(name string) error {
	_, err := checkResponse(req.Delete(c.url("/presets", name)))
	return err
}
