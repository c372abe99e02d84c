//go:build windows

package platform

import (
	"fmt"

	"golang.org/x/sys/windows"
)

const swHide = 0

var (
	kernel32             = windows.NewLazySystemDLL("kernel32.dll")
	user32               = windows.NewLazySystemDLL("user32.dll")
	procGetConsoleWindow = kernel32.NewProc("GetConsoleWindow")
	procShowWindow       = user32.NewProc("ShowWindow")
)

type windowsConsole struct{}

// NewConsole returns the console of the current process.
func NewConsole() Console { return windowsConsole{} }

// Hide hides the console window, if the process has one.
func (windowsConsole) Hide() error {
	if err := procGetConsoleWindow.Find(); err != nil {
		return fmt.Errorf("locate GetConsoleWindow: %w", err)
	}
	hwnd, _, _ := procGetConsoleWindow.Call()
	if hwnd == 0 {
		return nil
	}
	if err := procShowWindow.Find(); err != nil {
		return fmt.Errorf("locate ShowWindow: %w", err)
	}
	// ShowWindow returns the previous visibility, not an error code.
	_, _, _ = procShowWindow.Call(hwnd, swHide)
	return nil
}
