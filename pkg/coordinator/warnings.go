package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Warning categories for non-fatal, advisory conditions surfaced alongside
// a project's metrics.
const (
	WarningCategoryProvider   = "provider"    // e.g. completion calls failing or rate-limited
	WarningCategoryOrphanTask = "orphan_task" // an in_progress task was recovered on startup
	WarningCategoryWatchdog   = "watchdog"    // a session is making no forward progress
)

// Warning is a non-fatal advisory surfaced to operators without halting a
// session — the task/session failure machinery already reports hard
// failures; Warning is for conditions worth a human's attention that
// otherwise wouldn't show up anywhere.
type Warning struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// warningsRegistry holds in-memory, per-project warnings. Like the
// teacher's SystemWarningsService, it is transient: warnings reset on
// process restart and are never persisted to the store.
type warningsRegistry struct {
	mu     sync.RWMutex
	byProj map[int64]map[string]*Warning
}

func newWarningsRegistry() *warningsRegistry {
	return &warningsRegistry{byProj: make(map[int64]map[string]*Warning)}
}

// add records a warning for projectID, replacing any existing
// warning of the same category so a recurring condition doesn't pile up
// duplicate entries.
func (r *warningsRegistry) add(projectID int64, category, message string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	warnings, ok := r.byProj[projectID]
	if !ok {
		warnings = make(map[string]*Warning)
		r.byProj[projectID] = warnings
	}
	for id, w := range warnings {
		if w.Category == category {
			delete(warnings, id)
			break
		}
	}
	id := uuid.New().String()
	warnings[id] = &Warning{ID: id, Category: category, Message: message, CreatedAt: time.Now()}
	return id
}

// list returns projectID's active warnings, oldest first.
func (r *warningsRegistry) list(projectID int64) []*Warning {
	r.mu.RLock()
	defer r.mu.RUnlock()

	warnings := r.byProj[projectID]
	out := make([]*Warning, 0, len(warnings))
	for _, w := range warnings {
		cp := *w
		out = append(out, &cp)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.Before(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// clear removes a project's warning of the given category, e.g. once the
// condition it reported has resolved.
func (r *warningsRegistry) clear(projectID int64, category string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	warnings := r.byProj[projectID]
	for id, w := range warnings {
		if w.Category == category {
			delete(warnings, id)
			return
		}
	}
}

// Warnings returns the active advisory warnings for a project — recovered
// orphan tasks, watchdog stalls, provider trouble — none of which halt the
// session but are worth surfacing alongside its metrics.
func (c *Coordinator) Warnings(projectID int64) []*Warning {
	return c.warnings.list(projectID)
}

// NoteOrphanRecovery records a warning that count in_progress tasks were
// reset to ready for projectID during the startup orphan scan, so an
// operator can see that a crash or restart left work stranded.
func (c *Coordinator) NoteOrphanRecovery(projectID int64, count int) {
	if count == 0 {
		return
	}
	c.warnings.add(projectID, WarningCategoryOrphanTask,
		fmt.Sprintf("%d in_progress task(s) recovered to ready after an interrupted run", count))
}
