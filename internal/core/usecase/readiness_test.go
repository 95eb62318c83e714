package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type schemaProbeFake struct {
	calls atomic.Int32
	stage string
	err   error
	delay time.Duration
}

func (f *schemaProbeFake) ProbeSchema(context.Context) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.stage, f.err
}

func TestReadinessCachesReadySnapshotWithinTTL(t *testing.T) {
	probe := &schemaProbeFake{stage: "complete"}
	uc := NewReadinessUseCase(probe, time.Minute, nil)
	now := fixedNow()
	uc.now = func() time.Time { return now }

	first := uc.Snapshot(context.Background())
	second := uc.Snapshot(context.Background())
	if !first.Ready || first.Stage != "complete" || first.Attempts != 1 {
		t.Fatalf("unexpected snapshot %+v", first)
	}
	if second != first || probe.calls.Load() != 1 {
		t.Fatalf("expected cached snapshot, probe calls = %d", probe.calls.Load())
	}

	now = now.Add(2 * time.Minute)
	third := uc.Snapshot(context.Background())
	if probe.calls.Load() != 2 || third.Attempts != 2 {
		t.Fatalf("expected refresh after TTL, got %+v (calls=%d)", third, probe.calls.Load())
	}

	uc.Invalidate()
	uc.Snapshot(context.Background())
	if probe.calls.Load() != 3 {
		t.Fatalf("expected probe after invalidate, calls=%d", probe.calls.Load())
	}
}

func TestReadinessReprobesWhileNotReady(t *testing.T) {
	probe := &schemaProbeFake{stage: "tables", err: errors.New("relation processing_jobs does not exist")}
	uc := NewReadinessUseCase(probe, time.Minute, nil)
	uc.now = fixedNow

	first := uc.Snapshot(context.Background())
	if first.Ready || first.Error == "" || first.Stage != "tables" {
		t.Fatalf("unexpected snapshot %+v", first)
	}
	probe.err = nil
	probe.stage = "complete"
	second := uc.Snapshot(context.Background())
	if !second.Ready || second.Attempts != 2 {
		t.Fatalf("expected ready snapshot on second probe, got %+v", second)
	}
}

func TestReadinessSharesConcurrentProbe(t *testing.T) {
	probe := &schemaProbeFake{stage: "complete", delay: 50 * time.Millisecond}
	uc := NewReadinessUseCase(probe, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if snap := uc.Snapshot(context.Background()); !snap.Ready {
				t.Errorf("expected ready snapshot")
			}
		}()
	}
	wg.Wait()
	if calls := probe.calls.Load(); calls != 1 {
		t.Fatalf("expected a single shared probe, got %d", calls)
	}
}
