package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/applibrary/internal/shared/types"
)

// DefaultRetention is how many finished imports the tracker remembers.
const DefaultRetention = 256

// Tracker keeps the pollable status of recent imports.
type Tracker struct {
	mu        sync.RWMutex
	imports   map[string]*types.ImportStatus
	retention int
	now       func() time.Time
}

// NewTracker creates a tracker remembering up to retention finished imports
func NewTracker(retention int) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{
		imports:   make(map[string]*types.ImportStatus),
		retention: retention,
		now:       time.Now,
	}
}

// Start records a new import
func (t *Tracker) Start(id string, source types.ImportSource, origin, sourceLocation string, state types.ImportState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.imports[id] = &types.ImportStatus{
		ID:             id,
		Source:         source,
		Origin:         origin,
		SourceLocation: sourceLocation,
		State:          state,
		StartedAt:      t.now(),
	}
	t.prune()
}

// SetState moves a running import to a new state
func (t *Tracker) SetState(id string, state types.ImportState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.imports[id]; ok && !s.State.IsFinished() {
		s.State = state
	}
}

// Complete marks an import as registered
func (t *Tracker) Complete(id, entryID string) {
	t.finish(id, func(s *types.ImportStatus) {
		s.State = types.ImportCompleted
		s.EntryID = entryID
	})
}

// Fail marks an import as failed at stage
func (t *Tracker) Fail(id, stage string, err error) {
	t.finish(id, func(s *types.ImportStatus) {
		s.State = types.ImportFailed
		s.FailedStage = stage
		if err != nil {
			s.Error = err.Error()
		}
	})
}

// Get returns a copy of an import's status
func (t *Tracker) Get(id string) (types.ImportStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.imports[id]
	if !ok {
		return types.ImportStatus{}, false
	}
	return *s, true
}

// List returns all known imports, newest first
func (t *Tracker) List() []types.ImportStatus {
	t.mu.RLock()
	out := make([]types.ImportStatus, 0, len(t.imports))
	for _, s := range t.imports {
		out = append(out, *s)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

func (t *Tracker) finish(id string, apply func(*types.ImportStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.imports[id]
	if !ok || s.State.IsFinished() {
		return
	}
	apply(s)
	now := t.now()
	s.FinishedAt = &now
	t.prune()
}

// prune drops the oldest finished imports beyond retention. Caller holds mu.
func (t *Tracker) prune() {
	var finished []*types.ImportStatus
	for _, s := range t.imports {
		if s.State.IsFinished() {
			finished = append(finished, s)
		}
	}
	if len(finished) <= t.retention {
		return
	}

	sort.Slice(finished, func(i, j int) bool {
		return finished[i].FinishedAt.Before(*finished[j].FinishedAt)
	})
	for _, s := range finished[:len(finished)-t.retention] {
		delete(t.imports, s.ID)
	}
}
