package govee

import (
	"context"
	"sync"

	"statuslight/internal/status"
)

// Command records one call issued against a MockController.
type Command struct {
	Name  string
	Value any
}

// MockController implements Controller for tests, recording every command
// and optionally failing them.
type MockController struct {
	mu       sync.Mutex
	commands []Command

	// Err, when set, is returned by every command.
	Err error
}

// NewMockController creates a MockController.
func NewMockController() *MockController {
	return &MockController{}
}

// SetPower records a power command.
func (m *MockController) SetPower(_ context.Context, on bool) error {
	return m.record("turn", on)
}

// SetColor records a color command.
func (m *MockController) SetColor(_ context.Context, c status.RGB) error {
	return m.record("color", c)
}

// SetBrightness records a brightness command.
func (m *MockController) SetBrightness(_ context.Context, level int) error {
	return m.record("brightness", level)
}

func (m *MockController) record(name string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.commands = append(m.commands, Command{Name: name, Value: value})
	return nil
}

// Commands returns a copy of everything recorded so far.
func (m *MockController) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Command(nil), m.commands...)
}

// Reset clears the recorded commands.
func (m *MockController) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = nil
}

// SetErr makes subsequent commands fail with err (nil restores success).
func (m *MockController) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}
