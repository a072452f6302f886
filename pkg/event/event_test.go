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

package event

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogKeepsMostRecent(t *testing.T) {
	l := NewLog(3)
	for i := uint32(1); i <= 5; i++ {
		l.HandleEvent(Event{Kind: PacketGap, Source: SourceBridge, Expected: i, Received: i + 2})
	}
	recent := l.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, uint32(3), recent[0].Expected)
	assert.Equal(t, uint32(5), recent[2].Expected)
	assert.Equal(t, uint64(5), l.Total())

	latest := l.Recent(1)
	require.Len(t, latest, 1)
	assert.Equal(t, uint32(5), latest[0].Expected)
	assert.Equal(t, 3, l.Count(PacketGap))
	assert.Equal(t, 0, l.Count(Finished))
}

func TestLogPartiallyFilled(t *testing.T) {
	l := NewLog(8)
	l.HandleEvent(New(Finished, SourceProcessing, nil))
	recent := l.Recent(5)
	require.Len(t, recent, 1)
	assert.Equal(t, Finished, recent[0].Kind)
	assert.False(t, recent[0].Time.IsZero())
}

func TestMulti(t *testing.T) {
	first, second := NewLog(2), NewLog(2)
	Multi{first, nil, second}.HandleEvent(New(Stimulation, SourceProcessing, nil))
	assert.Equal(t, uint64(1), first.Total())
	assert.Equal(t, uint64(1), second.Total())
}

func TestEventJSON(t *testing.T) {
	e := New(SocketFault, SourceBridge, errors.New("connection refused"))
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "SocketFault", decoded["kind"])
	assert.Equal(t, "bridge", decoded["source"])
	assert.Equal(t, "connection refused", decoded["error"])

	var kind Kind
	require.NoError(t, kind.UnmarshalText([]byte("PipelineError")))
	assert.Equal(t, PipelineError, kind)
	assert.True(t, kind.Fatal())
	assert.False(t, Finished.Fatal())
}

func TestEventString(t *testing.T) {
	e := Event{Kind: PacketGap, Source: SourceBridge, Expected: 3, Received: 5}
	assert.Equal(t, "PacketGap from bridge: expected 3 received 5", e.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}
