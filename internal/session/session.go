package session

import "time"

// Mode names the execution path a history entry went through.
type Mode string

const (
	ModeBuiltin    Mode = "builtin"
	ModeSubprocess Mode = "subprocess"
	ModeDenied     Mode = "denied"
)

// Session is a point-in-time view of one session's state.
type Session struct {
	ID           string    `json:"id"`
	Cwd          string    `json:"cwd"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActive   time.Time `json:"lastActive"`
	CommandCount int       `json:"commandCount"`
}

// HistoryEntry records one command executed within a session.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	ExitCode  int       `json:"exitCode"`
	Cwd       string    `json:"cwd"`
	Mode      Mode      `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}
