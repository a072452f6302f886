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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempConfig(t *testing.T) *Config {
	c := NewDefaultConfig()
	c.SetPath(filepath.Join(t.TempDir(), ConfigDir, ConfigFile))
	return c
}

func TestDefaults(t *testing.T) {
	c := NewDefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, "127.0.0.1:8000", c.ApiEndpoint())

	b, err := c.Bridge()
	require.NoError(t, err)
	assert.Equal(t, 50000, b.Port)
	assert.Equal(t, 10*time.Second, b.Timeout)
	assert.Equal(t, DefaultReadBufferSize, b.ReadBufferSize)
}

func TestPersistAndLoad(t *testing.T) {
	c := tempConfig(t)
	c.BridgeConfig.Port = 50001
	c.Timeout = "250ms"
	c.CapacitySeconds = 30
	require.NoError(t, c.Persist(false))
	assert.ErrorAs(t, c.Persist(false), &ErrConfigFileExists{})
	require.NoError(t, c.Persist(true))

	data, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "port: 50001")
	assert.Contains(t, string(data), "capacitySeconds: 30")

	loaded := NewDefaultConfig()
	loaded.SetPath(c.Path())
	require.NoError(t, loaded.Load())
	assert.Equal(t, 50001, loaded.BridgeConfig.Port)
	assert.Equal(t, 30.0, loaded.CapacitySeconds)
	b, err := loaded.Bridge()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, b.Timeout)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	c := tempConfig(t)
	require.NoError(t, c.Load())
	assert.Equal(t, DefaultBridgePort, c.BridgeConfig.Port)
}

func TestLoadPartialFile(t *testing.T) {
	c := tempConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(c.Path()), 0755))
	require.NoError(t, os.WriteFile(c.Path(), []byte("api:\n  port: 9000\nlogLevel: debug\n"), 0644))
	require.NoError(t, c.Load())
	assert.Equal(t, 9000, c.ApiConfig.Port)
	assert.Equal(t, DefaultApiAddress, c.ApiConfig.Address)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, DefaultBridgePort, c.BridgeConfig.Port)
}

func TestLoadRejects(t *testing.T) {
	for name, content := range map[string]string{
		"timeout":  "bridge:\n  timeout: soon\n",
		"level":    "logLevel: loud\n",
		"capacity": "store:\n  capacitySeconds: -1\n",
		"syntax":   "bridge: [\n",
	} {
		c := tempConfig(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(c.Path()), 0755))
		require.NoError(t, os.WriteFile(c.Path(), []byte(content), 0644))
		assert.Error(t, c.Load(), name)
	}
}
