package clipboard

import "sync"

// Memory is an in-process clipboard for tests of code that copies results.
type Memory struct {
	mu   sync.Mutex
	text string
	n    int
	// Fail, when set, is returned from every Write.
	Fail error
}

func (m *Memory) Write(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.text = text
	m.n++
	return nil
}

// Text returns the last written value.
func (m *Memory) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// Writes counts successful writes.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}
