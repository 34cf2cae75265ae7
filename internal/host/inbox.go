package host

import (
	"strings"
	"sync"
	"time"
)

const maxPendingAlerts = 64

// Alert is one message queued for the web client.
type Alert struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Inbox buffers alerts and haptic cues until the web client polls for them.
type Inbox struct {
	mu       sync.Mutex
	alerts   []Alert
	haptics  []string
	theme    string
	ready    bool
	expanded bool
	now      func() time.Time
}

// NewInbox creates an empty inbox with an optional theme hint.
func NewInbox(theme string) *Inbox {
	return &Inbox{theme: strings.TrimSpace(theme), now: time.Now}
}

func (b *Inbox) Ready() {
	b.mu.Lock()
	b.ready = true
	b.mu.Unlock()
}

func (b *Inbox) Expand() {
	b.mu.Lock()
	b.expanded = true
	b.mu.Unlock()
}

// ShowAlert queues msg. The oldest alert is dropped when the buffer is full.
func (b *Inbox) ShowAlert(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.alerts) >= maxPendingAlerts {
		b.alerts = b.alerts[1:]
	}
	b.alerts = append(b.alerts, Alert{Message: msg, At: b.now()})
}

func (b *Inbox) HapticFeedback(kind string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.haptics) >= maxPendingAlerts {
		b.haptics = b.haptics[1:]
	}
	b.haptics = append(b.haptics, kind)
}

func (b *Inbox) ThemeBackground() string {
	if b.theme == "" {
		return DefaultBackground
	}
	return b.theme
}

// State reports whether Ready and Expand were called.
func (b *Inbox) State() (ready, expanded bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready, b.expanded
}

// Drain returns and clears the queued alerts and haptic cues.
func (b *Inbox) Drain() ([]Alert, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	alerts, haptics := b.alerts, b.haptics
	b.alerts, b.haptics = nil, nil
	if alerts == nil {
		alerts = []Alert{}
	}
	if haptics == nil {
		haptics = []string{}
	}
	return alerts, haptics
}
