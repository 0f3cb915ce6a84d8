package models

import "time"

// Persisted key names shared by every storage backend.
const (
	KeyServer     = "server"
	KeyDark       = "dark"
	KeyNotifs     = "notifs"
	KeyStrongOnly = "strong_only"
	KeyMinScore   = "min_score"
	KeySeenHashes = "seen_hashes"
	KeyLastCycle  = "last_cycle"
)

// PreferenceKeys lists the user-editable keys in display order.
var PreferenceKeys = []string{KeyServer, KeyDark, KeyNotifs, KeyStrongOnly, KeyMinScore}

// Preferences holds the user-editable settings read at the start of every cycle.
type Preferences struct {
	ServerURL            string  `json:"server"`
	DarkMode             bool    `json:"dark"`
	NotificationsEnabled bool    `json:"notifs"`
	StrongSignalsOnly    bool    `json:"strong_only"`
	MinScore             float64 `json:"min_score"`
}

// DefaultMinScore is the threshold applied when none has been stored.
const DefaultMinScore = 70.0

// DefaultPreferences returns the built-in preference values for the given server.
func DefaultPreferences(server string) Preferences {
	return Preferences{
		ServerURL:            server,
		DarkMode:             true,
		NotificationsEnabled: true,
		StrongSignalsOnly:    true,
		MinScore:             DefaultMinScore,
	}
}

// CycleReport summarises one polling cycle.
type CycleReport struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Skipped    bool          `json:"skipped,omitempty"`
	Fetched    int           `json:"fetched"`
	New        int           `json:"new"`
	Notified   int           `json:"notified"`
	Error      string        `json:"error,omitempty"`
	HistoryLen int           `json:"history_len"`
}
