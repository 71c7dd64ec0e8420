package audit

import (
	"context"
	"path/filepath"
	"testing"

	"tradingengine/internal/applier"
	"tradingengine/internal/infra"
)

func TestSink_RecordBatchAndCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	s.RecordBatch(ctx, 1_700_000_000_000, 0, applier.BatchApplied{
		Total:    3,
		Counters: applier.Counters{OrdersInserted: 2, TradesInserted: 1},
	})

	n, err := s.BatchCount(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 recorded batch, got %d", n)
	}
}

// TestSink_CircuitBreakerOpensAfterRepeatedWriteFailures drives the
// sink's circuit breaker through RecordBatch itself, rather than
// exercising infra.CircuitBreaker's state machine directly (that is
// covered in internal/infra/circuit_breaker_test.go). Closing the
// underlying db handle makes every subsequent write fail, so
// DefaultCircuitBreakerConfig's FailureThreshold (5) consecutive
// RecordBatch calls should trip it open and silently skip further
// writes instead of surfacing the failure to the applier.
func TestSink_CircuitBreakerOpensAfterRepeatedWriteFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if s.CircuitState() != infra.StateClosed {
		t.Fatalf("expected CLOSED before any failures, got %s", s.CircuitState())
	}

	s.db.Close() // every write from here on fails

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.RecordBatch(ctx, 1_700_000_000_000, 0, applier.BatchApplied{Total: 1})
	}

	if s.CircuitState() != infra.StateOpen {
		t.Fatalf("expected OPEN after 5 consecutive write failures, got %s", s.CircuitState())
	}

	// A further call must not even attempt the closed db: Allow() short-circuits it.
	s.RecordBatch(ctx, 1_700_000_000_001, 0, applier.BatchApplied{Total: 1})
	if s.CircuitState() != infra.StateOpen {
		t.Fatalf("expected OPEN to persist while within the breaker's timeout, got %s", s.CircuitState())
	}
}

func TestSink_MetadataRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.UpsertMetadata(ctx, "build", "v1", 1_700_000_000_000); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := s.UpsertMetadata(ctx, "build", "v2", 1_700_000_001_000); err != nil {
		t.Fatalf("upsert overwrite failed: %v", err)
	}

	var value string
	if err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", "build").Scan(&value); err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if value != "v2" {
		t.Errorf("expected overwritten value v2, got %q", value)
	}
}
