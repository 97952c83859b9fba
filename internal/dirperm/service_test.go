package dirperm

import (
	"errors"
	"testing"
	"time"

	"github.com/avoronkov/warden/internal/govcache"
	"github.com/avoronkov/warden/internal/maturity"
)

func testService(t *testing.T) *Service {
	t.Helper()
	s, err := New(govcache.New(), DefaultTable, time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestStudentTmpWork(t *testing.T) {
	s := testService(t)
	d, err := s.Resolve("agent-1", "/tmp/work", maturity.Student)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !d.Allowed {
		t.Errorf("student in /tmp/work should be allowed: %+v", d)
	}
	if !d.SuggestOnly {
		t.Error("student decisions must be suggest-only")
	}
}

func TestBlockedPrefixBeatsEveryMaturity(t *testing.T) {
	s := testService(t)
	for _, level := range maturity.Levels {
		d, err := s.Resolve("agent-1", "/etc/warden", level)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", level, err)
		}
		if d.Allowed {
			t.Errorf("blocked prefix allowed at %s: %+v", level, d)
		}
	}
}

func TestTraversalResolvedBeforeMatching(t *testing.T) {
	s := testService(t)
	d, err := s.Resolve("agent-1", "/tmp/work/../../etc/passwd", maturity.Autonomous)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Allowed {
		t.Errorf("dotted path escaping into /etc should be blocked: %+v", d)
	}
}

func TestAsymmetricMidLadder(t *testing.T) {
	s := testService(t)

	// Intern reaches all of /tmp; supervised only the curated sandbox.
	if d, _ := s.Resolve("a", "/tmp/scratch", maturity.Intern); !d.Allowed {
		t.Errorf("intern should reach /tmp/scratch: %+v", d)
	}
	if d, _ := s.Resolve("a", "/tmp/scratch", maturity.Supervised); d.Allowed {
		t.Errorf("supervised should not reach /tmp/scratch: %+v", d)
	}
}

func TestAutonomousNotSuggestOnly(t *testing.T) {
	s := testService(t)
	d, err := s.Resolve("agent-1", "/tmp/work", maturity.Autonomous)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !d.Allowed || d.SuggestOnly {
		t.Errorf("autonomous should execute directly: %+v", d)
	}
}

func TestPrefixBoundary(t *testing.T) {
	s := testService(t)
	// /tmpfoo must not match the /tmp prefix.
	d, err := s.Resolve("agent-1", "/tmpfoo", maturity.Intern)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Allowed {
		t.Errorf("/tmpfoo should not match /tmp prefix: %+v", d)
	}
}

func TestEmptyDirectoryIsValidationError(t *testing.T) {
	s := testService(t)
	_, err := s.Resolve("agent-1", "", maturity.Intern)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestDecisionCached(t *testing.T) {
	cache := govcache.New()
	s, err := New(cache, DefaultTable, time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Resolve("agent-1", "/tmp/work", maturity.Student); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := cache.Get("agent-1", "dir:/tmp/work"); !ok {
		t.Error("expected decision in cache after resolve")
	}
}

func TestTableCompletenessValidated(t *testing.T) {
	partial := Table{
		maturity.Student: {"/tmp/work"},
	}
	if _, err := New(govcache.New(), partial, time.Minute); err == nil {
		t.Fatal("expected error for table missing ladder rungs")
	}
}

func TestSetTableRejectsIncomplete(t *testing.T) {
	s := testService(t)
	if err := s.SetTable(Table{maturity.Intern: {"/tmp"}}); err == nil {
		t.Fatal("expected error for incomplete replacement table")
	}
}
