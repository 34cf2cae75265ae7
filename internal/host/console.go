package host

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Console degrades host calls to plain text dialogs on a writer.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	theme string
}

// NewConsole writes alerts to w (stderr when nil).
func NewConsole(w io.Writer, theme string) *Console {
	if w == nil {
		w = os.Stderr
	}
	return &Console{w: w, theme: strings.TrimSpace(theme)}
}

func (c *Console) Ready()                {}
func (c *Console) Expand()               {}
func (c *Console) HapticFeedback(string) {}

func (c *Console) ShowAlert(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "! %s\n", msg)
}

func (c *Console) ThemeBackground() string {
	if c.theme == "" {
		return DefaultBackground
	}
	return c.theme
}
