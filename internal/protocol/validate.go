package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed marks requests rejected before reaching policy or execution.
var ErrMalformed = errors.New("malformed request")

// Command is a validated command request with defaults applied by the
// caller.
type Command struct {
	RequestID string
	Command   string
	SessionID string
	Host      string
}

// validClientTypes is the set of allowed client→server message types.
var validClientTypes = map[string]bool{
	TypeCommandExecute: true,
}

// DecodeCommand parses and validates a command request body.
func DecodeCommand(raw []byte) (*Command, error) {
	var req CommandRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, malformed("invalid request body: %v", err)
	}
	return ValidateCommand(&req)
}

// ValidateCommand checks that command is present and non-empty. Session ID
// and host are opaque and passed through verbatim.
func ValidateCommand(req *CommandRequest) (*Command, error) {
	if req.Command == nil || *req.Command == "" {
		return nil, malformed("Command is required and must be a string")
	}
	cmd := &Command{RequestID: req.RequestID, Command: *req.Command}
	if req.SessionID != nil {
		cmd.SessionID = *req.SessionID
	}
	if req.Host != nil {
		cmd.Host = *req.Host
	}
	return cmd, nil
}

// ValidateClientMessage validates a raw JSON message from a client.
// Returns the parsed Message and any validation error.
func ValidateClientMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}

	if !validClientTypes[msg.Type] {
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}

	if msg.Payload == nil {
		return nil, fmt.Errorf("missing 'payload' field")
	}

	// Validate required payload fields per type.
	switch msg.Type {
	case TypeCommandExecute:
		if _, err := DecodeCommand(msg.Payload); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
	}

	return &msg, nil
}

// NewErrorMessage creates an error message ready to send to the client.
func NewErrorMessage(requestID, code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorPayload{
		RequestID: requestID,
		Code:      code,
		Message:   message,
	})
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
