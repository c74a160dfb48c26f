// Package statusserver exposes a small HTTP surface -- health, and
// per-run progress over Server-Sent Events -- for a long-running load or
// dump invocation. A CLI run wires a Tracker into UploadOptions.OnProgress/
// DumpOptions.OnProgress and registers it with the Server; nothing in
// internal/core imports this package.
package statusserver

import (
	"sort"
	"sync"
	"time"

	"github.com/stomita/salesforce-migration-automatic/internal/core"
)

// RunState is a snapshot of one in-flight or completed run.
type RunState struct {
	RunID      string
	Kind       string // "load" | "dump"
	Objects    []string
	StartedAt  time.Time
	FinishedAt time.Time
	Done       bool
	Err        string

	LoadProgress core.UploadProgress
	DumpProgress core.DumpProgress
}

// Tracker holds the live and recently-finished runs a Server can report on.
// Safe for concurrent use: the engine calls Update from its own goroutine
// while HTTP handlers read Snapshot/Subscribe concurrently.
type Tracker struct {
	mu        sync.RWMutex
	runs      map[string]*RunState
	listeners map[string][]chan RunState
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		runs:      make(map[string]*RunState),
		listeners: make(map[string][]chan RunState),
	}
}

// Start registers a new run under runID.
func (t *Tracker) Start(runID, kind string, objects []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[runID] = &RunState{
		RunID:     runID,
		Kind:      kind,
		Objects:   objects,
		StartedAt: time.Now(),
	}
}

// UpdateLoad records load progress for runID and notifies subscribers.
func (t *Tracker) UpdateLoad(runID string, p core.UploadProgress) {
	t.mu.Lock()
	run, ok := t.runs[runID]
	if !ok {
		t.mu.Unlock()
		return
	}
	run.LoadProgress = p
	snapshot := *run
	t.mu.Unlock()
	t.notify(runID, snapshot)
}

// UpdateDump records dump progress for runID and notifies subscribers.
func (t *Tracker) UpdateDump(runID string, p core.DumpProgress) {
	t.mu.Lock()
	run, ok := t.runs[runID]
	if !ok {
		t.mu.Unlock()
		return
	}
	run.DumpProgress = p
	snapshot := *run
	t.mu.Unlock()
	t.notify(runID, snapshot)
}

// Finish marks a run complete, recording err (if non-nil) as its failure
// reason, then sends the final snapshot to every subscriber channel for
// that run (if its buffer has room) and closes the channel.
func (t *Tracker) Finish(runID string, err error) {
	t.mu.Lock()
	run, ok := t.runs[runID]
	if !ok {
		t.mu.Unlock()
		return
	}
	run.Done = true
	run.FinishedAt = time.Now()
	if err != nil {
		run.Err = err.Error()
	}
	snapshot := *run
	listeners := t.listeners[runID]
	delete(t.listeners, runID)
	t.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- snapshot:
		default:
		}
		close(ch)
	}
}

// Snapshot returns the current state of runID, or false if unknown.
func (t *Tracker) Snapshot(runID string) (RunState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[runID]
	if !ok {
		return RunState{}, false
	}
	return *run, true
}

// List returns a snapshot of every tracked run, most recently started
// first.
func (t *Tracker) List() []RunState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]RunState, 0, len(t.runs))
	for _, run := range t.runs {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Subscribe returns a channel (buffered, 8 slots) that receives updates for
// runID until the run finishes; an update is dropped when the buffer is
// full. On finish the channel receives the final snapshot and is then
// closed. Returns false if runID is unknown or already finished.
func (t *Tracker) Subscribe(runID string) (<-chan RunState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[runID]
	if !ok || run.Done {
		return nil, false
	}
	ch := make(chan RunState, 8)
	t.listeners[runID] = append(t.listeners[runID], ch)
	return ch, true
}

func (t *Tracker) notify(runID string, snapshot RunState) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, ch := range t.listeners[runID] {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
