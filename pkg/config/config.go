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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sigs.k8s.io/yaml"

	"jinr.ru/greenlab/go-eeg/pkg/bridge"
	"jinr.ru/greenlab/go-eeg/pkg/log"
)

type BridgeConfig struct {
	Address string `json:"address,omitempty"`
	Port    int    `json:"port,omitempty"`
	// Timeout is a Go duration string, e.g. 10s
	Timeout        string `json:"timeout,omitempty"`
	ReadBufferSize int    `json:"readBufferSize,omitempty"`
}

type ApiConfig struct {
	Address string `json:"address,omitempty"`
	Port    int    `json:"port,omitempty"`
}

type StoreConfig struct {
	CapacitySeconds float64 `json:"capacitySeconds,omitempty"`
}

type Config struct {
	*BridgeConfig `json:"bridge,omitempty"`
	*ApiConfig    `json:"api,omitempty"`
	*StoreConfig  `json:"store,omitempty"`
	DBPath        string `json:"dbPath,omitempty"`
	LogLevel      string `json:"logLevel,omitempty"`
	filepath      string
}

func (c *Config) Path() string {
	return c.filepath
}

func (c *Config) SetPath(path string) {
	c.filepath = path
}

func (c *Config) Persist(overwrite bool) error {
	if _, err := os.Stat(c.filepath); err == nil && !overwrite {
		return ErrConfigFileExists{Path: c.filepath}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(c.filepath), 0755); err != nil {
		return err
	}
	return os.WriteFile(c.filepath, data, 0644)
}

// Load reads the config file over the current values.
// A missing file leaves the defaults in place.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.filepath)
	if os.IsNotExist(err) {
		log.Debug("Config file %s not found, using defaults", c.filepath)
		return nil
	}
	if err != nil {
		return err
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", c.filepath, err)
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	if c.BridgeConfig == nil || c.ApiConfig == nil || c.StoreConfig == nil {
		return ErrInvalidConfig{What: "bridge, api and store sections are required"}
	}
	if c.BridgeConfig.Port < 1 || c.BridgeConfig.Port > 65535 {
		return ErrInvalidConfig{What: fmt.Sprintf("bridge port %d", c.BridgeConfig.Port)}
	}
	if c.ApiConfig.Port < 1 || c.ApiConfig.Port > 65535 {
		return ErrInvalidConfig{What: fmt.Sprintf("api port %d", c.ApiConfig.Port)}
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return ErrInvalidConfig{What: fmt.Sprintf("bridge timeout: %s", err)}
	}
	if c.CapacitySeconds <= 0 {
		return ErrInvalidConfig{What: fmt.Sprintf("store capacity %g seconds", c.CapacitySeconds)}
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return ErrInvalidConfig{What: err.Error()}
	}
	return nil
}

// Bridge converts the bridge section to the receiver settings
func (c *Config) Bridge() (bridge.Config, error) {
	timeout, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return bridge.Config{}, ErrInvalidConfig{What: fmt.Sprintf("bridge timeout: %s", err)}
	}
	cfg := bridge.DefaultConfig()
	cfg.Address = c.BridgeConfig.Address
	cfg.Port = c.BridgeConfig.Port
	cfg.Timeout = timeout
	cfg.ReadBufferSize = c.ReadBufferSize
	return cfg, nil
}

func (c *Config) ApiEndpoint() string {
	return fmt.Sprintf("%s:%d", c.ApiConfig.Address, c.ApiConfig.Port)
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, ConfigFile)
}

func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, DBFile)
}

func NewDefaultConfig() *Config {
	return &Config{
		BridgeConfig: &BridgeConfig{
			Address:        DefaultBridgeAddress,
			Port:           DefaultBridgePort,
			Timeout:        DefaultBridgeTimeout,
			ReadBufferSize: DefaultReadBufferSize,
		},
		ApiConfig: &ApiConfig{
			Address: DefaultApiAddress,
			Port:    DefaultApiPort,
		},
		StoreConfig: &StoreConfig{
			CapacitySeconds: DefaultCapacitySeconds,
		},
		DBPath:   DefaultDBPath(),
		LogLevel: DefaultLogLevel,
		filepath: DefaultConfigPath(),
	}
}
