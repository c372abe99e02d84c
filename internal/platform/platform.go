// Package platform holds the host integrations the launcher uses: opening the
// front end in a browser and hiding the console window.
package platform

import (
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/cli/browser"
)

// Console controls the terminal window the process was started from.
type Console interface {
	// Hide detaches the window from view. It is a no-op where unsupported.
	Hide() error
}

// Browser opens URLs in the user's default browser.
type Browser interface {
	Open(url string) error
}

// SystemBrowser opens URLs with the platform's default handler.
type SystemBrowser struct{}

// NewSystemBrowser returns a Browser whose helper process output is
// discarded so it does not interleave with the server log.
func NewSystemBrowser() SystemBrowser {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return SystemBrowser{}
}

// Open launches url in the default browser.
func (SystemBrowser) Open(url string) error {
	if err := browser.OpenURL(url); err != nil {
		return fmt.Errorf("open browser at %s: %w", url, err)
	}
	return nil
}

// LocalURL builds the address the browser should visit for a listener bound
// to addr. Wildcard and empty hosts are replaced with host.
func LocalURL(addr, host string) string {
	h, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "https://" + host + "/"
	}
	if h == "" || h == "0.0.0.0" || h == "::" {
		h = host
	}
	if port == "443" {
		return "https://" + joinHost(h) + "/"
	}
	return "https://" + joinHost(h) + ":" + port + "/"
}

func joinHost(h string) string {
	if strings.Contains(h, ":") {
		return "[" + h + "]"
	}
	return h
}
