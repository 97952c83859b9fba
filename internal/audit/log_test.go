package audit

import (
	"os"
	"path/filepath"
	"testing"
)

func testLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestChainVerifies(t *testing.T) {
	l, path := testLog(t)

	entries := []Entry{
		{Kind: KindExecution, AgentID: "a1", Command: "ls -la", ExitCode: 0},
		{Kind: KindDenial, AgentID: "a2", Command: "rm -rf /", Reason: "blacklisted"},
		{Kind: KindExecution, AgentID: "a1", Command: "sleep 999", ExitCode: -1, TimedOut: true},
	}
	for _, e := range entries {
		if err := l.Record(e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	n, err := Verify(path)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n != len(entries) {
		t.Errorf("verified %d entries, want %d", n, len(entries))
	}
}

func TestReopenRecoversChainTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	l1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l1.Record(Entry{Kind: KindExecution, AgentID: "a1", Command: "echo hi"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	l1.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := l2.Record(Entry{Kind: KindExecution, AgentID: "a1", Command: "echo again"}); err != nil {
		t.Fatalf("Record after reopen: %v", err)
	}
	l2.Close()

	if n, err := Verify(path); err != nil || n != 2 {
		t.Errorf("Verify after reopen = (%d, %v), want (2, nil)", n, err)
	}
}

func TestTamperDetected(t *testing.T) {
	l, path := testLog(t)
	for i := 0; i < 3; i++ {
		if err := l.Record(Entry{Kind: KindExecution, AgentID: "a1", Command: "date"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	// Flip a byte in the middle of the file.
	data[len(data)/2] ^= 0x01
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("rewrite log: %v", err)
	}

	if _, err := Verify(path); err == nil {
		t.Fatal("expected chain verification to fail after tampering")
	}
}
