package node

import (
	"context"
	"time"
)

// cleanupLoop periodically bounds in-memory state per §4.7: the most
// recent MaxInstancesPerView AgreementInstance entries for the node's
// current view. CleanupInterval defaults to 60s; the source's hourly
// cleanup_old_data ran against a much larger retention window (1000
// audit logs, 100 quotes) so this loop runs more often against a
// smaller per-view bound, matching the scale of in-memory state rather
// than the source's on-disk tables.
func (s *Supervisor) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *Supervisor) runCleanup() {
	view := s.sm.CurrentView()
	evicted := s.sm.PruneView(view, s.cfg.MaxInstancesPerView)
	if evicted > 0 {
		s.logger.Printf("cleanup: evicted %d stale agreement instances from view %d", evicted, view)
	}
}
