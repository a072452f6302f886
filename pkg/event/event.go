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

// Package event defines the notifications the bridge and the processing
// pipeline report to whoever drives them.
package event

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type Kind uint8

const (
	PacketGap Kind = iota + 1
	MalformedPacket
	SocketFault
	PipelineError
	Finished
	Stimulation
)

var kindNames = map[Kind]string{
	PacketGap:       "PacketGap",
	MalformedPacket: "MalformedPacket",
	SocketFault:     "SocketFault",
	PipelineError:   "PipelineError",
	Finished:        "Finished",
	Stimulation:     "Stimulation",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Fatal reports whether the event ends the loop that emitted it
func (k Kind) Fatal() bool {
	return k == SocketFault || k == PipelineError
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", string(text))
}

const (
	SourceBridge     = "bridge"
	SourceProcessing = "processing"
)

// Event is a single asynchronous notification.
// Expected and Received are set for PacketGap, Phase and Index for Stimulation.
type Event struct {
	Kind     Kind      `json:"kind"`
	Source   string    `json:"source"`
	Err      error     `json:"-"`
	Expected uint32    `json:"expected,omitempty"`
	Received uint32    `json:"received,omitempty"`
	Phase    float64   `json:"phase,omitempty"`
	Index    uint64    `json:"index,omitempty"`
	Time     time.Time `json:"time"`
}

func (e Event) String() string {
	switch e.Kind {
	case PacketGap:
		return fmt.Sprintf("%s from %s: expected %d received %d", e.Kind, e.Source, e.Expected, e.Received)
	case Stimulation:
		return fmt.Sprintf("%s from %s: phase %.3f at sample %d", e.Kind, e.Source, e.Phase, e.Index)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s from %s: %s", e.Kind, e.Source, e.Err)
	}
	return fmt.Sprintf("%s from %s", e.Kind, e.Source)
}

// MarshalJSON adds the error text which is not serializable as is
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(e)}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return json.Marshal(out)
}

func New(kind Kind, source string, err error) Event {
	return Event{Kind: kind, Source: source, Err: err, Time: time.Now()}
}

// Handler receives events. Implementations must not block:
// they are called from the receive loop and the processing loop.
type Handler interface {
	HandleEvent(e Event)
}

type HandlerFunc func(e Event)

func (f HandlerFunc) HandleEvent(e Event) {
	f(e)
}

// Multi fans an event out to all handlers
type Multi []Handler

func (m Multi) HandleEvent(e Event) {
	for _, h := range m {
		if h != nil {
			h.HandleEvent(e)
		}
	}
}

// Discard drops every event
var Discard Handler = HandlerFunc(func(Event) {})

// Log keeps the most recent events in a fixed size ring
type Log struct {
	mu     sync.Mutex
	events []Event
	next   int
	filled int
	total  uint64
}

const DefaultLogSize = 256

func NewLog(size int) *Log {
	if size < 1 {
		size = DefaultLogSize
	}
	return &Log{events: make([]Event, size)}
}

func (l *Log) HandleEvent(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[l.next] = e
	l.next = (l.next + 1) % len(l.events)
	if l.filled < len(l.events) {
		l.filled++
	}
	l.total++
}

// Recent returns up to max latest events, oldest first.
// A non-positive max means all kept events.
func (l *Log) Recent(max int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.filled
	if max > 0 && max < n {
		n = max
	}
	out := make([]Event, n)
	start := l.next - n
	if start < 0 {
		start += len(l.events)
	}
	for i := 0; i < n; i++ {
		out[i] = l.events[(start+i)%len(l.events)]
	}
	return out
}

// Count returns the number of kept events of the given kind
func (l *Log) Count(kind Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for i := 0; i < l.filled; i++ {
		if l.events[i].Kind == kind {
			count++
		}
	}
	return count
}

// Total is the number of events ever handled
func (l *Log) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
