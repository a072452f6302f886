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

package status

import (
	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-eeg/pkg/command"
	"jinr.ru/greenlab/go-eeg/pkg/config"
)

const (
	EventsOptionName = "events"
	KindOptionName   = "kind"
)

func NewCommand(cfg *config.Config) *cobra.Command {
	var events int
	var kind string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the stream, the sample store and processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient := command.NewApiClient(cfg)
			status, err := apiClient.Status()
			if err != nil {
				return err
			}
			if err = command.PrintYAML(cmd.OutOrStdout(), status); err != nil {
				return err
			}
			if events == 0 && kind == "" {
				return nil
			}
			recent, err := apiClient.Events(events, kind)
			if err != nil {
				return err
			}
			return command.PrintYAML(cmd.OutOrStdout(), map[string]interface{}{"events": recent})
		},
	}
	cmd.Flags().IntVar(&events, EventsOptionName, 0, "Number of recent events to show")
	cmd.Flags().StringVar(&kind, KindOptionName, "", "Show only events of this kind, e.g. Stimulation")
	return cmd
}
