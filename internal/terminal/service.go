// Package terminal handles one command request end to end: it picks the
// execution mode, applies the command policy, runs the command and keeps
// the session's working directory.
package terminal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"workspace-terminal/internal/logging"
	"workspace-terminal/internal/policy"
	"workspace-terminal/internal/session"
	"workspace-terminal/internal/shell"
	"workspace-terminal/internal/tracing"
)

const (
	DefaultSessionID = "default"
	LocalHost        = "localhost"

	// simulatedCwd is reported for every simulated remote command.
	simulatedCwd = "/root"
)

// Mode is the execution variant selected for a request.
type Mode int

const (
	ModeLocal Mode = iota
	ModeSimulatedRemote
)

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeSimulatedRemote:
		return "simulated-remote"
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// ModeFor returns the execution mode for host.
func ModeFor(host string) Mode {
	if host == LocalHost {
		return ModeLocal
	}
	return ModeSimulatedRemote
}

// Request is a single command invocation.
type Request struct {
	Command   string
	SessionID string
	Host      string
}

// Runner executes a command through the OS interpreter.
type Runner interface {
	Run(ctx context.Context, command, cwd string) shell.Result
}

// Service orchestrates policy, built-ins, subprocess dispatch and session
// state.
type Service struct {
	store  *session.Store
	policy *policy.Engine
	runner Runner
	logger *slog.Logger
}

// New creates a Service. A nil logger discards output.
func New(store *session.Store, engine *policy.Engine, runner Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: store, policy: engine, runner: runner, logger: logger}
}

// Workspace returns the workspace root.
func (s *Service) Workspace() string {
	return s.store.Root()
}

// Policy returns the command policy in use.
func (s *Service) Policy() *policy.Engine {
	return s.policy
}

// Store returns the session store.
func (s *Service) Store() *session.Store {
	return s.store
}

// Execute runs req and returns its normalized result. Failures of the
// command itself are part of the Result; a non-nil error means the
// orchestration failed.
func (s *Service) Execute(ctx context.Context, req Request) (shell.Result, error) {
	if req.SessionID == "" {
		req.SessionID = DefaultSessionID
	}
	if req.Host == "" {
		req.Host = LocalHost
	}

	switch mode := ModeFor(req.Host); mode {
	case ModeSimulatedRemote:
		return simulate(req), nil
	case ModeLocal:
		return s.executeLocal(ctx, req)
	default:
		return shell.Result{}, fmt.Errorf("unsupported execution mode %v", mode)
	}
}

// simulate answers for a non-local host without touching any state.
func simulate(req Request) shell.Result {
	return shell.Result{
		Output:   fmt.Sprintf("[%s] Simulation: Executed \"%s\" on remote host.", req.Host, req.Command),
		ExitCode: 0,
		Cwd:      simulatedCwd,
	}
}

func (s *Service) executeLocal(ctx context.Context, req Request) (result shell.Result, err error) {
	requestID := uuid.NewString()
	started := time.Now()

	ctx, span := tracing.StartSpan(ctx, "terminal.execute")
	span.WithAttributes(map[string]string{"session.id": req.SessionID, "request.id": requestID})

	unlock := s.store.Lock(req.SessionID)
	defer unlock()

	var mode session.Mode
	defer func() {
		span.WithInt("exit.code", result.ExitCode).End(err)
		if err != nil {
			s.logger.Error("command_failed", "request", requestID, "session", req.SessionID, "error", err)
			return
		}
		s.store.Record(req.SessionID, session.HistoryEntry{
			ID:        requestID,
			Command:   req.Command,
			ExitCode:  result.ExitCode,
			Cwd:       result.Cwd,
			Mode:      mode,
			Timestamp: started.UTC(),
		})
		s.logger.Info("command_executed",
			"request", requestID,
			"session", req.SessionID,
			"mode", string(mode),
			"exit_code", result.ExitCode,
			"duration", time.Since(started))
	}()

	cwd := s.store.Get(req.SessionID)

	if decision := s.policy.Evaluate(req.Command); !decision.Allowed {
		mode = session.ModeDenied
		s.logger.Warn("command_denied", "request", requestID, "session", req.SessionID, "reason", decision.Reason)
		return shell.Result{Output: decision.Reason, ExitCode: 1, Cwd: cwd}, nil
	}

	inv := shell.Parse(req.Command)
	switch inv.Builtin() {
	case "cd":
		mode = session.ModeBuiltin
		result, err = shell.ChangeDir(s.store.Root(), cwd, inv.Target())
		if err != nil {
			return result, fmt.Errorf("cd in session %s: %w", req.SessionID, err)
		}
		if result.ExitCode == 0 {
			s.store.Set(req.SessionID, result.Cwd)
		}
		return result, nil
	case "pwd":
		mode = session.ModeBuiltin
		return shell.PrintDir(cwd), nil
	}

	mode = session.ModeSubprocess
	return s.runner.Run(ctx, req.Command, cwd), nil
}
