// Package logsink provides the shared log sink and the LLM conversation
// recorder consumed by the orchestration and proxy layers. Implementations
// must be lightweight and non-blocking; Add must not panic.
package logsink

import (
	"sync"

	"github.com/rs/zerolog"

	"presetd/pkg/types"
)

// Sink receives one-line log events tagged with their source component.
type Sink interface {
	Add(source, message string)
}

// Recorder receives one structured record per completed or failed proxied
// request.
type Recorder interface {
	RecordConversation(entry types.ConversationEntry)
}

// Nop drops everything; it is the default wiring for tests that do not
// assert on logs.
type Nop struct{}

func (Nop) Add(string, string) {}

func (Nop) RecordConversation(types.ConversationEntry) {}

// Zerolog adapts a zerolog.Logger to the Sink interface.
type Zerolog struct {
	Log zerolog.Logger
}

func (z Zerolog) Add(source, message string) {
	z.Log.Info().Str("source", source).Msg(message)
}

// Memory retains events in-memory; used by tests and the status API.
type Memory struct {
	mu      sync.Mutex
	max     int
	entries []Line
	convs   []types.ConversationEntry
}

// Line is one captured sink event.
type Line struct {
	Source  string
	Message string
}

// NewMemory constructs a Memory sink retaining up to max lines (0 keeps a
// default of 1000).
func NewMemory(max int) *Memory {
	if max <= 0 {
		max = 1000
	}
	return &Memory{max: max}
}

func (m *Memory) Add(source, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Line{Source: source, Message: message})
	if len(m.entries) > m.max {
		m.entries = m.entries[len(m.entries)-m.max:]
	}
}

func (m *Memory) RecordConversation(entry types.ConversationEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs = append(m.convs, entry)
	if len(m.convs) > m.max {
		m.convs = m.convs[len(m.convs)-m.max:]
	}
}

// Lines returns a copy of the captured log lines.
func (m *Memory) Lines() []Line {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Line, len(m.entries))
	copy(out, m.entries)
	return out
}

// Conversations returns a copy of the captured conversation records.
func (m *Memory) Conversations() []types.ConversationEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ConversationEntry, len(m.convs))
	copy(out, m.convs)
	return out
}
