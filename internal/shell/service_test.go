package shell

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/avoronkov/warden/internal/audit"
	"github.com/avoronkov/warden/internal/cmdcheck"
	"github.com/avoronkov/warden/internal/dirperm"
	"github.com/avoronkov/warden/internal/govcache"
	"github.com/avoronkov/warden/internal/governance"
	"github.com/avoronkov/warden/internal/identity"
	"github.com/avoronkov/warden/internal/maturity"
	"github.com/avoronkov/warden/internal/model"
)

type sessionRecorder struct {
	sessions []*model.ShellExecutionSession
}

func (r *sessionRecorder) AppendShellSession(_ context.Context, sess *model.ShellExecutionSession) error {
	r.sessions = append(r.sessions, sess)
	return nil
}

func testService(t *testing.T) (*Service, *sessionRecorder, string) {
	t.Helper()

	reg := identity.NewStatic(map[string]identity.AgentRecord{
		"auto": {Level: maturity.Autonomous, ConfidenceScore: 0.9},
		"sup":  {Level: maturity.Supervised, ConfidenceScore: 0.6},
	})
	gov := governance.New(reg, govcache.New(), nil)

	rules := cmdcheck.New(cmdcheck.Rules{
		Whitelist: []string{"echo", "sleep", "false", "no-such-binary-here"},
		Blacklist: []string{"rm"},
	})

	table := dirperm.Table{}
	for _, level := range maturity.Levels {
		table[level] = []string{"/tmp"}
	}
	dirs, err := dirperm.New(govcache.New(), table, time.Minute)
	if err != nil {
		t.Fatalf("dirperm.New: %v", err)
	}

	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := audit.Open(logPath)
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	rec := &sessionRecorder{}
	return New(gov, rules, dirs, rec, log), rec, logPath
}

func TestExecuteWhitelistedCommand(t *testing.T) {
	svc, rec, logPath := testService(t)

	sess, err := svc.Execute(context.Background(), Request{
		AgentID:    "auto",
		Command:    "echo hello",
		WorkingDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sess.ExitCode != 0 || sess.TimedOut {
		t.Errorf("session: %+v", sess)
	}
	if strings.TrimSpace(sess.Stdout) != "hello" {
		t.Errorf("stdout = %q", sess.Stdout)
	}
	if len(rec.sessions) != 1 {
		t.Fatalf("recorded %d sessions, want exactly 1", len(rec.sessions))
	}

	n, err := audit.Verify(logPath)
	if err != nil {
		t.Fatalf("audit chain broken: %v", err)
	}
	if n != 1 {
		t.Errorf("audit entries = %d, want 1", n)
	}
}

func TestBlacklistedCommandNeverSpawns(t *testing.T) {
	svc, rec, logPath := testService(t)

	_, err := svc.Execute(context.Background(), Request{
		AgentID: "auto",
		Command: "rm -rf /tmp/x",
	})
	var perr *PermissionError
	if !errors.As(err, &perr) || perr.Stage != "command" {
		t.Fatalf("err = %v, want command PermissionError", err)
	}
	if len(rec.sessions) != 0 {
		t.Fatalf("denial produced %d sessions", len(rec.sessions))
	}

	// Denials still leave an audit trail.
	if n, err := audit.Verify(logPath); err != nil || n != 1 {
		t.Errorf("audit: n=%d err=%v, want one denial entry", n, err)
	}
}

func TestBelowAutonomousNeverSpawns(t *testing.T) {
	svc, rec, _ := testService(t)

	_, err := svc.Execute(context.Background(), Request{
		AgentID: "sup",
		Command: "echo hi",
	})
	var perr *PermissionError
	if !errors.As(err, &perr) || perr.Stage != "maturity" {
		t.Fatalf("err = %v, want maturity PermissionError", err)
	}
	if len(rec.sessions) != 0 {
		t.Fatalf("denial produced %d sessions", len(rec.sessions))
	}
}

func TestBlockedDirectoryRefused(t *testing.T) {
	svc, rec, _ := testService(t)

	_, err := svc.Execute(context.Background(), Request{
		AgentID:    "auto",
		Command:    "echo hi",
		WorkingDir: "/etc",
	})
	var perr *PermissionError
	if !errors.As(err, &perr) || perr.Stage != "directory" {
		t.Fatalf("err = %v, want directory PermissionError", err)
	}
	if len(rec.sessions) != 0 {
		t.Fatal("blocked directory still spawned")
	}
}

func TestTimeoutKillsProcess(t *testing.T) {
	svc, rec, _ := testService(t)

	start := time.Now()
	sess, err := svc.Execute(context.Background(), Request{
		AgentID: "auto",
		Command: "sleep 30",
		Timeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("timeout did not kill process, took %v", elapsed)
	}
	if !sess.TimedOut || sess.ExitCode != -1 {
		t.Errorf("session after timeout: %+v", sess)
	}
	// A killed process is still a spawn: exactly one session.
	if len(rec.sessions) != 1 {
		t.Fatalf("recorded %d sessions, want 1", len(rec.sessions))
	}
}

func TestSpawnFailureStillRecordsSession(t *testing.T) {
	svc, rec, _ := testService(t)

	sess, err := svc.Execute(context.Background(), Request{
		AgentID: "auto",
		Command: "no-such-binary-here --flag",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sess.ExitCode != -1 || sess.Stderr == "" {
		t.Errorf("spawn failure session: %+v", sess)
	}
	if len(rec.sessions) != 1 {
		t.Fatalf("recorded %d sessions, want 1", len(rec.sessions))
	}
}

func TestNonZeroExitIsNotAnError(t *testing.T) {
	svc, _, _ := testService(t)

	sess, err := svc.Execute(context.Background(), Request{
		AgentID: "auto",
		Command: "false",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sess.ExitCode != 1 || sess.TimedOut {
		t.Errorf("session: %+v", sess)
	}
}

func TestRulesHotSwap(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.Execute(ctx, Request{AgentID: "auto", Command: "echo ok"}); err != nil {
		t.Fatalf("before swap: %v", err)
	}

	svc.SetRules(cmdcheck.New(cmdcheck.Rules{Blacklist: []string{"echo"}}))
	_, err := svc.Execute(ctx, Request{AgentID: "auto", Command: "echo ok"})
	var perr *PermissionError
	if !errors.As(err, &perr) || perr.Stage != "command" {
		t.Fatalf("after swap: err = %v, want command PermissionError", err)
	}
}
