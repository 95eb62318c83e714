package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/ports"
)

const DefaultReadinessTTL = 30 * time.Second

// ReadinessUseCase caches the store schema readiness. A ready snapshot is
// reused until it is older than the TTL; a not-ready snapshot is re-probed on
// the next call. Concurrent refreshes share one probe.
type ReadinessUseCase struct {
	probe  ports.SchemaProbe
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	group    singleflight.Group
	mu       sync.RWMutex
	snapshot domain.ReadinessSnapshot
	checked  bool
	attempts int
}

func NewReadinessUseCase(probe ports.SchemaProbe, ttl time.Duration, logger *slog.Logger) *ReadinessUseCase {
	if ttl <= 0 {
		ttl = DefaultReadinessTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadinessUseCase{probe: probe, ttl: ttl, logger: logger, now: time.Now}
}

func (uc *ReadinessUseCase) Snapshot(ctx context.Context) domain.ReadinessSnapshot {
	uc.mu.RLock()
	snap, fresh := uc.snapshot, uc.checked && uc.snapshot.Ready && uc.now().Sub(uc.snapshot.CheckedAt) < uc.ttl
	uc.mu.RUnlock()
	if fresh {
		return snap
	}

	v, _, _ := uc.group.Do("readiness", func() (any, error) {
		return uc.refresh(ctx), nil
	})
	return v.(domain.ReadinessSnapshot)
}

// Invalidate forces the next Snapshot call to probe.
func (uc *ReadinessUseCase) Invalidate() {
	uc.mu.Lock()
	uc.checked = false
	uc.mu.Unlock()
}

func (uc *ReadinessUseCase) refresh(ctx context.Context) domain.ReadinessSnapshot {
	stage, err := uc.probe.ProbeSchema(ctx)

	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.attempts++
	snap := domain.ReadinessSnapshot{
		Ready:     err == nil,
		Stage:     stage,
		CheckedAt: uc.now().UTC(),
		Attempts:  uc.attempts,
	}
	if err != nil {
		snap.Error = err.Error()
		uc.logger.Warn("store schema not ready", "stage", stage, "attempts", uc.attempts, "error", err)
	} else if !uc.snapshot.Ready {
		uc.logger.Info("store schema ready", "stage", stage, "attempts", uc.attempts)
	}
	uc.snapshot = snap
	uc.checked = true
	return snap
}
