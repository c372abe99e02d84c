//go:build !windows

package platform

type noopConsole struct{}

// NewConsole returns the console of the current process. Hiding is only
// supported on Windows; elsewhere it does nothing.
func NewConsole() Console { return noopConsole{} }

func (noopConsole) Hide() error { return nil }
