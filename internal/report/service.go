package report

import (
	"context"
	"log/slog"

	"ispledger/internal/cache"
	"ispledger/internal/core"
)

// Service serves dashboard figures through a cache that is cleared on
// every state change.
type Service struct {
	cache  cache.Cache[DashboardStats]
	logger *slog.Logger

	// OnLookup, when set, observes cache hits and misses.
	OnLookup func(hit bool)
}

func NewService(c cache.Cache[DashboardStats], logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cache: c, logger: logger}
}

// Dashboard returns cached stats for monthKey, computing them from st on a
// miss. Cache failures are logged and fall through to computation.
func (s *Service) Dashboard(ctx context.Context, st core.GlobalState, monthKey string) DashboardStats {
	if s.cache != nil {
		stats, ok, err := s.cache.Get(ctx, monthKey)
		if err != nil {
			s.logger.WarnContext(ctx, "Dashboard cache read failed", "error", err)
		}
		if s.OnLookup != nil {
			s.OnLookup(ok)
		}
		if ok {
			return stats
		}
	}
	stats := Dashboard(st, monthKey)
	if s.cache != nil {
		if err := s.cache.Set(ctx, monthKey, stats); err != nil {
			s.logger.WarnContext(ctx, "Dashboard cache write failed", "error", err)
		}
	}
	return stats
}

// Invalidate drops all cached figures. It matches store.SaveHook.
func (s *Service) Invalidate(ctx context.Context, _ string, _ core.GlobalState) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Clear(ctx); err != nil {
		s.logger.WarnContext(ctx, "Dashboard cache clear failed", "error", err)
	}
}
