// Package host abstracts the embedding environment: a chat mini-app shell
// when present, a plain console otherwise.
package host

// Haptic feedback kinds understood by mini-app hosts.
const (
	HapticSuccess = "success"
	HapticWarning = "warning"
	HapticError   = "error"
)

// DefaultBackground is used when the host gives no theme hint.
const DefaultBackground = "#f1f5f9"

// Host is the optional shell around the session. Every method must be safe
// to call when the shell has nothing to do.
type Host interface {
	Ready()
	Expand()
	ShowAlert(msg string)
	HapticFeedback(kind string)
	ThemeBackground() string
}

// Resolve returns h, or a Console on stderr when h is nil.
func Resolve(h Host) Host {
	if h == nil {
		return NewConsole(nil, "")
	}
	return h
}
