package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"workspace-terminal/internal/protocol"
	"workspace-terminal/internal/shell"
	"workspace-terminal/internal/terminal"
	"workspace-terminal/internal/watcher"
)

const (
	maxRequestBody = 1 << 20
	treeDepth      = 3
)

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{Error: "invalid request body"})
		return
	}

	cmd, err := protocol.DecodeCommand(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{Error: clientMessage(err)})
		return
	}

	// The command outlives a dropped connection; only its timeout stops it.
	ctx := context.WithoutCancel(r.Context())
	result, err := s.service.Execute(ctx, requestFor(cmd))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.FaultResponse{
			Error:  "Internal server error",
			Output: "Error: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, executionResult(result))
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	engine := s.service.Policy()
	commands := engine.AllowedCommands()
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		commands = engine.Suggest(q)
	}

	writeJSON(w, http.StatusOK, protocol.Discovery{
		Workspace:       s.service.Workspace(),
		AllowedCommands: commands,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Store().List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.service.Store().Lookup(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, protocol.ErrorResponse{Error: "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	history, ok := s.service.Store().History(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, protocol.ErrorResponse{Error: "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleSessionTree(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.service.Store().Lookup(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, protocol.ErrorResponse{Error: "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, watcher.BuildFileTree(sess.Cwd, treeDepth))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.service.Store().Forget(r.PathValue("id")) {
		writeJSON(w, http.StatusNotFound, protocol.ErrorResponse{Error: "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// clientMessage strips the sentinel prefix from a validation error.
func clientMessage(err error) string {
	msg := err.Error()
	if errors.Is(err, protocol.ErrMalformed) {
		msg = strings.TrimPrefix(msg, protocol.ErrMalformed.Error()+": ")
	}
	return msg
}

func requestFor(cmd *protocol.Command) terminal.Request {
	req := terminal.Request{Command: cmd.Command, SessionID: cmd.SessionID, Host: cmd.Host}
	if req.SessionID == "" {
		req.SessionID = terminal.DefaultSessionID
	}
	if req.Host == "" {
		req.Host = terminal.LocalHost
	}
	return req
}

func executionResult(r shell.Result) protocol.ExecutionResult {
	return protocol.ExecutionResult{Output: r.Output, ExitCode: r.ExitCode, Cwd: r.Cwd}
}
