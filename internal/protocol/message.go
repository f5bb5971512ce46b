package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client message types.
const (
	TypeCommandResult = "command.result"
	TypeSessionReset  = "session.reset"
	TypeError         = "error"
)

// Client → Server message types.
const (
	TypeCommandExecute = "command.execute"
)

// Error codes.
const (
	ErrInvalidMessage = "INVALID_MESSAGE"
	ErrInternal       = "INTERNAL_ERROR"
)

// CommandRequest is the body of POST /api/terminal and the payload of
// command.execute. Pointers distinguish absent fields from empty ones.
type CommandRequest struct {
	RequestID string  `json:"requestId,omitempty"`
	Command   *string `json:"command"`
	SessionID *string `json:"sessionId,omitempty"`
	Host      *string `json:"host,omitempty"`
}

// ExecutionResult is the normal response to a command.
type ExecutionResult struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exitCode"`
	Cwd      string `json:"cwd"`
}

// ErrorResponse is returned for malformed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FaultResponse is returned when the server itself failed.
type FaultResponse struct {
	Error  string `json:"error"`
	Output string `json:"output"`
}

// Discovery describes the workspace and the advisory command list.
type Discovery struct {
	Workspace       string   `json:"workspace"`
	AllowedCommands []string `json:"allowedCommands"`
}

// Server → Client payloads.

type CommandResultPayload struct {
	RequestID string `json:"requestId,omitempty"`
	SessionID string `json:"sessionId"`
	ExecutionResult
}

type SessionResetPayload struct {
	SessionID string `json:"sessionId"`
	Cwd       string `json:"cwd"`
}

type ErrorPayload struct {
	RequestID string `json:"requestId,omitempty"`
	Message   string `json:"message"`
	Code      string `json:"code"`
}

// FileNode represents a file or directory in the tree.
type FileNode struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	IsDir    bool       `json:"isDir"`
	Children []FileNode `json:"children,omitempty"`
	Size     int64      `json:"size,omitempty"`
}
