package tasks

import (
	"log/slog"
	"sort"
	"time"
)

// AbandonStale fails every active task that has not been updated for longer than
// maxIdle and returns their ids, oldest first. A non-positive maxIdle is a no-op.
func AbandonStale(store *Store, maxIdle time.Duration) []string {
	if maxIdle <= 0 {
		return nil
	}
	cutoff := store.now().Add(-maxIdle)

	var stale []*Task
	for _, t := range store.tasks {
		if t.Status.Active() && t.UpdatedAt.Before(cutoff) {
			stale = append(stale, t)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Seq < stale[j].Seq })

	ids := make([]string, 0, len(stale))
	for _, t := range stale {
		store.Fail(t.ID, "abandoned after "+maxIdle.String()+" without a reply")
		ids = append(ids, t.ID)
	}
	if len(ids) > 0 {
		slog.Info("abandoned stale tasks", "count", len(ids))
	}
	return ids
}
