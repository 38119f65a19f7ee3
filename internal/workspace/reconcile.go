package workspace

import (
	"log"

	"revyze/engine/internal/ledger"
	"revyze/engine/internal/model"
)

func migrateVersions(versions []model.ProjectVersion) ([]model.ProjectVersion, bool) {
	return ledger.MigrateLegacy(versions)
}

// ApplySnapshot is the reconciliation gate. Every remote snapshot for an
// open project passes through here before it may replace local state.
//
// Order matters: the soft-delete short-circuit bypasses everything else,
// including the suppression window, because a deleted project must vanish
// no matter how recently the user edited it. Acceptance is whole-document
// last-writer-wins; field-level merge is explicitly not attempted.
func (s *Service) ApplySnapshot(incoming *model.Project) {
	if incoming == nil {
		return
	}

	// 1. Soft-delete short-circuit.
	if incoming.Deleted() {
		s.evict(incoming.ID)
		return
	}

	// 2. Normalize so comparisons are apples-to-apples with locally
	// migrated state.
	normalized, _ := migrateProject(incoming)

	s.mu.Lock()

	// 3. Self-suppression window: presumed echo of our own write, or a
	// remote write racing an in-flight local one. Accepting it would
	// visibly undo the user's action for a flash.
	if s.suppression.Suppress(s.now()) {
		s.mu.Unlock()
		log.Printf("reconcile: suppressed snapshot for %s inside write window", incoming.ID)
		return
	}

	// 4. No-op filter.
	if current, ok := s.projects[normalized.ID]; ok && model.Equal(current, normalized) {
		s.mu.Unlock()
		return
	}

	// 5. Whole-document acceptance.
	s.projects[normalized.ID] = normalized
	s.mu.Unlock()
}

// evict removes a project from the local working set and, when it was the
// open one, tears down the subscription and tells the consumer to navigate
// away.
func (s *Service) evict(projectID string) {
	s.mu.Lock()
	delete(s.projects, projectID)
	wasActive := s.activeProjectID == projectID
	var unsub func()
	if wasActive {
		s.activeProjectID = ""
		unsub = s.unsubscribe
		s.unsubscribe = nil
	}
	evicted := s.onEvicted
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if wasActive && evicted != nil {
		evicted(projectID)
	}
}
