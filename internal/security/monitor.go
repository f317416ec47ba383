package security

import (
	"sync"
	"time"
)

// EventType classifies a reported client-side event.
type EventType string

const (
	// EventTabHidden is a tab switch or window minimize.
	EventTabHidden EventType = "tab_hidden"
	// EventFocusLost is a window blur.
	EventFocusLost EventType = "focus_lost"
	// EventDevTools is an attempt to open developer tools or save the page.
	EventDevTools EventType = "devtools"
)

// Warning is one timestamped observation.
type Warning struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Monitor is the soft half of the security policy: it counts tab-visibility
// and focus events during an active session and keeps warnings. It is purely
// observational and never blocks by itself; the hard lockout policy lives in
// the session manager.
type Monitor struct {
	mu         sync.Mutex
	now        func() time.Time
	tabHidden  int
	focusLost  int
	warnings   []Warning
	hasFocus   bool
	maxRecords int
}

func NewMonitor() *Monitor {
	return NewMonitorWithClock(time.Now)
}

func NewMonitorWithClock(now func() time.Time) *Monitor {
	return &Monitor{now: now, hasFocus: true, maxRecords: 100}
}

// Record registers an event and returns the running count for its type.
func (m *Monitor) Record(event EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int
	var msg string
	switch event {
	case EventTabHidden:
		m.tabHidden++
		count = m.tabHidden
		msg = "tab switched or window minimized"
	case EventFocusLost:
		m.focusLost++
		m.hasFocus = false
		count = m.focusLost
		msg = "window lost focus"
	case EventDevTools:
		msg = "attempted to use developer tools or save page"
	default:
		return 0
	}

	m.warnings = append(m.warnings, Warning{At: m.now(), Message: msg})
	if len(m.warnings) > m.maxRecords {
		m.warnings = m.warnings[len(m.warnings)-m.maxRecords:]
	}
	return count
}

// FocusRegained clears the lost-focus flag.
func (m *Monitor) FocusRegained() {
	m.mu.Lock()
	m.hasFocus = true
	m.mu.Unlock()
}

// Counts returns the tab-hidden and focus-lost totals.
func (m *Monitor) Counts() (tabHidden, focusLost int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tabHidden, m.focusLost
}

// Warnings returns a copy of the recorded warnings.
func (m *Monitor) Warnings() []Warning {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Warning(nil), m.warnings...)
}

// Reset clears all counters and warnings, e.g. on a fresh login.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tabHidden = 0
	m.focusLost = 0
	m.warnings = nil
	m.hasFocus = true
}
