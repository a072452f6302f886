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
	"time"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-eeg/pkg/command"
	"jinr.ru/greenlab/go-eeg/pkg/config"
	pkgprocessing "jinr.ru/greenlab/go-eeg/pkg/processing"
)

const (
	PresetOptionName = "preset"
	FileOptionName   = "file"
	WaitOptionName   = "wait"
	pollInterval     = 200 * time.Millisecond
)

func NewCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "processing",
		Short: "Control the processing pipeline",
	}
	cmd.AddCommand(newRunCommand(cfg, "start", "Start live processing with stimulation"))
	cmd.AddCommand(newRunCommand(cfg, "benchmark", "Measure the time spent per phase estimate"))
	cmd.AddCommand(newStopCommand(cfg))
	return cmd
}

func newRunCommand(cfg *config.Config, mode, short string) *cobra.Command {
	var preset, file string
	var wait bool
	cmd := &cobra.Command{
		Use:   mode,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient := command.NewApiClient(cfg)
			var params *pkgprocessing.Parameters
			if file != "" {
				base := pkgprocessing.DefaultParameters()
				if preset != "" {
					stored, err := apiClient.PresetGet(preset)
					if err != nil {
						return err
					}
					base = *stored
				}
				loaded, err := command.LoadParameters(file, base)
				if err != nil {
					return err
				}
				params = &loaded
			}

			run := apiClient.ProcessingStart
			if mode == "benchmark" {
				run = apiClient.ProcessingBenchmark
			}
			status, err := run(params, preset)
			if err != nil {
				return err
			}
			if wait {
				for status.Running {
					time.Sleep(pollInterval)
					if status, err = apiClient.Processing(); err != nil {
						return err
					}
				}
				if status.LastError != "" {
					return fmt.Errorf("processing failed: %s", status.LastError)
				}
			}
			return command.PrintYAML(cmd.OutOrStdout(), status)
		},
	}
	cmd.Flags().StringVar(&preset, PresetOptionName, "", "Name of the parameter preset")
	cmd.Flags().StringVar(&file, FileOptionName, "", "YAML or JSON file with parameters, applied over the preset")
	cmd.Flags().BoolVar(&wait, WaitOptionName, mode == "benchmark", "Wait until the run ends")
	return cmd
}

func newStopCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := command.NewApiClient(cfg).ProcessingStop()
			if err != nil {
				return err
			}
			return command.PrintYAML(cmd.OutOrStdout(), status)
		},
	}
}
