package plugin

import (
	"sync"
	"time"
)

// LogEntry is one line in the extension activity log.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Plugin    string         `json:"plugin"`
	Level     string         `json:"level"` // debug, info, warn, error
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// LogFilter selects entries from a LogBuffer. Zero values match everything.
type LogFilter struct {
	Plugin   string
	MinLevel string
	Limit    int
}

var levelOrder = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// LogBuffer keeps the most recent extension log entries for the admin API:
// lifecycle events recorded by the Manager and messages extensions send
// through HostAPI.Log.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	head    int
	count   int
}

// NewLogBuffer creates a buffer holding at most size entries.
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = 1000
	}
	return &LogBuffer{entries: make([]LogEntry, size)}
}

// Log records an entry stamped with the current time.
func (b *LogBuffer) Log(plugin, level, message string, fields map[string]any) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = LogEntry{
		Timestamp: time.Now(),
		Plugin:    plugin,
		Level:     level,
		Message:   message,
		Fields:    fields,
	}
	b.head = (b.head + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
}

// Entries returns matching entries, newest first.
func (b *LogBuffer) Entries(f LogFilter) []LogEntry {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	minLevel := levelOrder[f.MinLevel]
	result := []LogEntry{}
	for i := 0; i < b.count; i++ {
		if f.Limit > 0 && len(result) == f.Limit {
			break
		}
		e := b.entries[(b.head-1-i+len(b.entries))%len(b.entries)]
		if f.Plugin != "" && RegistryKey(e.Plugin) != RegistryKey(f.Plugin) {
			continue
		}
		if levelOrder[e.Level] < minLevel {
			continue
		}
		result = append(result, e)
	}
	return result
}

// Len returns the number of buffered entries.
func (b *LogBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Clear drops every entry.
func (b *LogBuffer) Clear() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}
