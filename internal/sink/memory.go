package sink

import "sync"

// Entry is one recorded log line.
type Entry struct {
	Level     Level
	Component string
	Message   string
}

// Memory stores log lines and progress in-memory for tests.
type Memory struct {
	mu       sync.Mutex
	entries  []Entry
	progress map[string][]float64
	order    []string
}

func NewMemory() *Memory { return &Memory{progress: make(map[string][]float64)} }

func (m *Memory) Log(level Level, component, message string) {
	m.mu.Lock()
	m.entries = append(m.entries, Entry{Level: level, Component: component, Message: message})
	m.mu.Unlock()
}

func (m *Memory) Progress(operationID string, fraction float64) {
	m.mu.Lock()
	if _, ok := m.progress[operationID]; !ok {
		m.order = append(m.order, operationID)
	}
	m.progress[operationID] = append(m.progress[operationID], fraction)
	m.mu.Unlock()
}

// Entries returns a copy of every recorded log line.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Fractions returns the progress values reported for operationID, in order.
func (m *Memory) Fractions(operationID string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.progress[operationID]...)
}

// Operations returns operation ids in the order they first reported progress.
func (m *Memory) Operations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Count returns the number of log lines at the given level.
func (m *Memory) Count(level Level) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}
