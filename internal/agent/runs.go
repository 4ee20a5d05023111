package agent

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ActiveRun tracks a running research so it can be aborted.
type ActiveRun struct {
	RunID      string    `json:"run_id"`
	SessionKey string    `json:"session_key,omitempty"`
	Query      string    `json:"query"`
	StartedAt  time.Time `json:"started_at"`

	cancel context.CancelCauseFunc
}

// RunTracker is the registry of in-flight runs.
type RunTracker struct {
	mu   sync.Mutex
	runs map[string]*ActiveRun
}

func NewRunTracker() *RunTracker {
	return &RunTracker{runs: make(map[string]*ActiveRun)}
}

// Register records a run. cancel is called with ErrAborted on abort.
func (t *RunTracker) Register(runID, sessionKey, query string, cancel context.CancelCauseFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[runID] = &ActiveRun{
		RunID:      runID,
		SessionKey: sessionKey,
		Query:      query,
		StartedAt:  time.Now(),
		cancel:     cancel,
	}
}

// Unregister removes a finished run.
func (t *RunTracker) Unregister(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.runs, runID)
}

// Abort cancels one run. A non-empty sessionKey must match the key the run
// was started with. Returns true if the run was found and cancelled.
func (t *RunTracker) Abort(runID, sessionKey string) bool {
	t.mu.Lock()
	run, ok := t.runs[runID]
	if ok && sessionKey != "" && run.SessionKey != sessionKey {
		ok = false
	}
	if ok {
		delete(t.runs, runID)
	}
	t.mu.Unlock()

	if ok {
		run.cancel(ErrAborted)
	}
	return ok
}

// AbortSession cancels every run of sessionKey and returns their IDs.
func (t *RunTracker) AbortSession(sessionKey string) []string {
	t.mu.Lock()
	var victims []*ActiveRun
	for id, run := range t.runs {
		if run.SessionKey == sessionKey {
			victims = append(victims, run)
			delete(t.runs, id)
		}
	}
	t.mu.Unlock()

	ids := make([]string, 0, len(victims))
	for _, run := range victims {
		run.cancel(ErrAborted)
		ids = append(ids, run.RunID)
	}
	sort.Strings(ids)
	return ids
}

// Active lists in-flight runs, oldest first.
func (t *RunTracker) Active() []ActiveRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ActiveRun, 0, len(t.runs))
	for _, run := range t.runs {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
