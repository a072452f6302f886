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

package preset

import (
	"fmt"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-eeg/pkg/command"
	"jinr.ru/greenlab/go-eeg/pkg/config"
	"jinr.ru/greenlab/go-eeg/pkg/processing"
)

const (
	FileOptionName = "file"
)

func NewCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage processing parameter presets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List preset names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := command.NewApiClient(cfg).PresetList()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get NAME",
		Short: "Show preset parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := command.NewApiClient(cfg).PresetGet(args[0])
			if err != nil {
				return err
			}
			return command.PrintYAML(cmd.OutOrStdout(), params)
		},
	})
	cmd.AddCommand(newSetCommand(cfg))
	cmd.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return command.NewApiClient(cfg).PresetDelete(args[0])
		},
	})
	return cmd
}

func newSetCommand(cfg *config.Config) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Create or replace a preset, default parameters unless a file is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := processing.DefaultParameters()
			if file != "" {
				var err error
				if params, err = command.LoadParameters(file, params); err != nil {
					return err
				}
			}
			return command.NewApiClient(cfg).PresetSet(args[0], &params)
		},
	}
	cmd.Flags().StringVar(&file, FileOptionName, "", "YAML or JSON file with parameters")
	return cmd
}
