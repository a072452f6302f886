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
	"io"
	"os"

	"sigs.k8s.io/yaml"

	"jinr.ru/greenlab/go-eeg/pkg/processing"
)

// PrintYAML writes v to out in YAML using its JSON field names
func PrintYAML(out io.Writer, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

// LoadParameters reads processing parameters from a YAML or JSON file.
// Fields missing in the file keep their values from base.
func LoadParameters(path string, base processing.Parameters) (processing.Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	params := base
	if err = yaml.UnmarshalStrict(data, &params); err != nil {
		return base, fmt.Errorf("parse %s: %w", path, err)
	}
	return params, params.Validate()
}
