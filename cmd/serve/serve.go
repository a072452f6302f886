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

package serve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-eeg/pkg/command"
	"jinr.ru/greenlab/go-eeg/pkg/config"
)

const (
	AddressOptionName    = "address"
	PortOptionName       = "port"
	TimeoutOptionName    = "timeout"
	ApiAddressOptionName = "api-address"
	ApiPortOptionName    = "api-port"
	CapacityOptionName   = "capacity-seconds"
	DBOptionName         = "db"
)

func NewCommand(cfg *config.Config) *cobra.Command {
	var (
		address    string
		port       int
		timeout    time.Duration
		apiAddress string
		apiPort    int
		capacity   float64
		dbPath     string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive the EEG stream and serve the control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed(AddressOptionName) {
				cfg.BridgeConfig.Address = address
			}
			if flags.Changed(PortOptionName) {
				cfg.BridgeConfig.Port = port
			}
			if flags.Changed(TimeoutOptionName) {
				cfg.Timeout = timeout.String()
			}
			if flags.Changed(ApiAddressOptionName) {
				cfg.ApiConfig.Address = apiAddress
			}
			if flags.Changed(ApiPortOptionName) {
				cfg.ApiConfig.Port = apiPort
			}
			if flags.Changed(CapacityOptionName) {
				cfg.CapacitySeconds = capacity
			}
			if flags.Changed(DBOptionName) {
				cfg.DBPath = dbPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err := command.StartServer(ctx, cfg)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&address, AddressOptionName, config.DefaultBridgeAddress, "Address to receive the EEG stream on")
	cmd.Flags().IntVar(&port, PortOptionName, config.DefaultBridgePort, "UDP port to receive the EEG stream on")
	cmd.Flags().DurationVar(&timeout, TimeoutOptionName, 10*time.Second, "Socket read timeout")
	cmd.Flags().StringVar(&apiAddress, ApiAddressOptionName, config.DefaultApiAddress, "Address of the control API")
	cmd.Flags().IntVar(&apiPort, ApiPortOptionName, config.DefaultApiPort, "Port of the control API")
	cmd.Flags().Float64Var(&capacity, CapacityOptionName, config.DefaultCapacitySeconds, "Seconds of samples kept in memory")
	cmd.Flags().StringVar(&dbPath, DBOptionName, "", fmt.Sprintf("Preset database path (default %s)", config.DefaultDBPath()))
	return cmd
}
