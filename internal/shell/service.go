// Package shell runs commands on the host on behalf of agents, behind
// three gates: maturity governance, command rules, and directory
// permissions. Processes are spawned argv-style with no shell in
// between, bounded by a timeout, and every spawn leaves exactly one
// execution session plus an audit entry.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avoronkov/warden/internal/audit"
	"github.com/avoronkov/warden/internal/cmdcheck"
	"github.com/avoronkov/warden/internal/dirperm"
	"github.com/avoronkov/warden/internal/governance"
	"github.com/avoronkov/warden/internal/model"
)

// DefaultTimeout bounds a spawned process when the request does not
// set one. MaxTimeout is the hard ceiling regardless of the request.
const (
	DefaultTimeout = 300 * time.Second
	MaxTimeout     = 10 * time.Minute
)

// PermissionError is returned when a request is refused before any
// process is spawned.
type PermissionError struct {
	Stage  string // "maturity", "command" or "directory"
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("shell: %s check refused: %s", e.Stage, e.Reason)
}

// SessionSink persists execution sessions. *store.Store satisfies it.
type SessionSink interface {
	AppendShellSession(ctx context.Context, sess *model.ShellExecutionSession) error
}

// Request describes one command execution ask.
type Request struct {
	AgentID    string
	Command    string
	WorkingDir string
	Complexity int
	Timeout    time.Duration
}

// Service is the host execution gateway.
type Service struct {
	gov      *governance.Service
	dirs     *dirperm.Service
	sessions SessionSink
	log      *audit.Log

	mu    sync.RWMutex
	rules *cmdcheck.Validator

	defaultTimeout time.Duration
	newID          func() string
	now            func() time.Time
}

// New wires the execution gateway. log may be nil to disable audit
// output (tests only); sessions must not be nil.
func New(gov *governance.Service, rules *cmdcheck.Validator, dirs *dirperm.Service, sessions SessionSink, log *audit.Log) *Service {
	return &Service{
		gov:            gov,
		rules:          rules,
		dirs:           dirs,
		sessions:       sessions,
		log:            log,
		defaultTimeout: DefaultTimeout,
		newID:          uuid.NewString,
		now:            time.Now,
	}
}

// SetDefaultTimeout overrides the timeout used when a request does not
// set one.
func (s *Service) SetDefaultTimeout(d time.Duration) {
	if d > 0 {
		s.defaultTimeout = d
	}
}

// SetRules swaps the command validator. Used by the config
// hot-reloader.
func (s *Service) SetRules(rules *cmdcheck.Validator) {
	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
}

// Execute runs the requested command if all three gates pass. A
// refusal returns *PermissionError and spawns nothing. Once a process
// is spawned, Execute returns a session whether the command succeeded,
// failed, or was killed on timeout; a non-zero exit is not an error.
func (s *Service) Execute(ctx context.Context, req Request) (*model.ShellExecutionSession, error) {
	decision, err := s.gov.CanPerformAction(ctx, req.AgentID, "shell_execute", cmdcheck.BaseCommand(req.Command), req.Complexity)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, s.deny(ctx, req, "maturity", decision.Reason)
	}

	s.mu.RLock()
	rules := s.rules
	s.mu.RUnlock()
	if res := rules.Validate(req.Command); !res.Valid {
		return nil, s.deny(ctx, req, "command", res.Reason)
	}

	workDir := ""
	if req.WorkingDir != "" {
		dirDecision, err := s.dirs.Resolve(req.AgentID, req.WorkingDir, decision.Level)
		if err != nil {
			return nil, s.deny(ctx, req, "directory", err.Error())
		}
		if !dirDecision.Allowed {
			return nil, s.deny(ctx, req, "directory", dirDecision.Reason)
		}
		workDir = dirDecision.ResolvedPath
	}

	return s.spawn(ctx, req, workDir)
}

// deny records the refusal in the audit log and builds the error.
func (s *Service) deny(_ context.Context, req Request, stage, reason string) error {
	if s.log != nil {
		_ = s.log.Record(audit.Entry{
			Kind:       audit.KindDenial,
			AgentID:    req.AgentID,
			Command:    req.Command,
			WorkingDir: req.WorkingDir,
			Reason:     fmt.Sprintf("%s: %s", stage, reason),
		})
	}
	return &PermissionError{Stage: stage, Reason: reason}
}

// spawn runs the command and records exactly one session, no matter
// how the process ends.
func (s *Service) spawn(ctx context.Context, req Request, workDir string) (*model.ShellExecutionSession, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Fields, not a shell: no globbing, no pipes, no substitution. The
	// command runs exactly as tokenized.
	argv := strings.Fields(req.Command)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := s.now()
	runErr := cmd.Run()
	duration := s.now().Sub(started)

	timedOut := runCtx.Err() == context.DeadlineExceeded
	exitCode := 0
	switch {
	case timedOut:
		exitCode = -1
	case runErr != nil:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			// Spawn-level failure (e.g. binary not found).
			exitCode = -1
			fmt.Fprintf(&stderr, "%v", runErr)
		}
	}

	sess := &model.ShellExecutionSession{
		ID:               s.newID(),
		AgentID:          req.AgentID,
		Command:          req.Command,
		WorkingDirectory: workDir,
		ExitCode:         exitCode,
		Stdout:           strings.ToValidUTF8(stdout.String(), "�"),
		Stderr:           strings.ToValidUTF8(stderr.String(), "�"),
		TimedOut:         timedOut,
		DurationSeconds:  duration.Seconds(),
		ExecutedAt:       started.UTC(),
	}

	if err := s.sessions.AppendShellSession(ctx, sess); err != nil {
		return sess, fmt.Errorf("record session: %w", err)
	}
	if s.log != nil {
		_ = s.log.Record(audit.Entry{
			Kind:       audit.KindExecution,
			AgentID:    req.AgentID,
			Command:    req.Command,
			WorkingDir: workDir,
			ExitCode:   exitCode,
			TimedOut:   timedOut,
		})
	}
	return sess, nil
}

// History returns an agent's past execution sessions when the sink
// also supports reads.
func (s *Service) History(ctx context.Context, agentID string) ([]*model.ShellExecutionSession, error) {
	lister, ok := s.sessions.(interface {
		ListShellSessions(ctx context.Context, agentID string) ([]*model.ShellExecutionSession, error)
	})
	if !ok {
		return nil, errors.New("shell: session sink does not support listing")
	}
	return lister.ListShellSessions(ctx, agentID)
}
