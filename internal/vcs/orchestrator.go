// Package vcs orchestrates the snapshot lifecycle: it composes the
// serialized store adapter, the revision store, and the mutation
// listener, and enforces the per-store state machine.
package vcs

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/scribelab/chronicle/internal/dump"
	"github.com/scribelab/chronicle/internal/gitstore"
	"github.com/scribelab/chronicle/internal/listener"
	"github.com/scribelab/chronicle/internal/message"
	"github.com/scribelab/chronicle/pkg/config"
	"github.com/scribelab/chronicle/pkg/errclass"
	"github.com/scribelab/chronicle/pkg/logging"
	"github.com/scribelab/chronicle/pkg/model"
)

// InitialMessage is the commit message of the first snapshot.
const InitialMessage = "initial snapshot"

// State is the orchestrator's per-store lifecycle flag.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateIdle          State = "idle"
	StateCommitting    State = "committing"
	StateRestoring     State = "restoring"
)

// Signals receives asynchronous restore notifications for the host UI.
// Methods are invoked on a separate goroutine and must not block
// indefinitely.
type Signals interface {
	RestoreCompleted(ref model.Ref)
	RestoreFailed(ref model.Ref, err error)
}

// NopSignals discards all signals.
type NopSignals struct{}

func (NopSignals) RestoreCompleted(model.Ref)     {}
func (NopSignals) RestoreFailed(model.Ref, error) {}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State              State           `json:"state"`
	Initialized        bool            `json:"initialized"`
	Head               *model.Snapshot `json:"head,omitempty"`
	UncommittedChanges bool            `json:"uncommitted_changes"`
	DroppedEvents      int64           `json:"dropped_events"`
}

// Orchestrator owns the snapshot lifecycle for one primary datastore.
// Exactly one instance is active per store; the host process is
// single-instance per project, so no filesystem locking is used.
type Orchestrator struct {
	storePath string // primary sqlite database
	root      string // the .chronicle directory

	store    *gitstore.Store
	adapter  *dump.Adapter
	listener *listener.Listener
	signals  Signals
	log      *logging.Logger

	mu     sync.Mutex
	state  State
	queued []model.MutationNotification

	// storeMu serializes access to the revision store and the dump
	// adapter. Dumps swap the state directory wholesale, so a store
	// query racing a commit could observe the work tree mid-swap.
	storeMu sync.Mutex
}

// Options configures an orchestrator.
type Options struct {
	Config  *config.Config
	Signals Signals
	Logger  *logging.Logger
}

// New constructs the orchestrator for the datastore at storePath. The
// chronicle directory is created as a sibling of the store. Backend
// absence surfaces here as E_BACKEND_MISSING: a configuration error,
// not a per-operation one.
func New(storePath string, opts Options) (*Orchestrator, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	sig := opts.Signals
	if sig == nil {
		sig = NopSignals{}
	}
	log := opts.Logger
	if log == nil {
		log = logging.WithFields(map[string]any{"component": "vcs"})
	}

	root := filepath.Join(filepath.Dir(storePath), config.ChronicleDirName)
	store := gitstore.New(root, cfg.GitBinary)
	if err := store.CheckBackend(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		storePath: storePath,
		root:      root,
		store:     store,
		adapter:   dump.NewAdapter(cfg.ExcludeUnits),
		signals:   sig,
		log:       log,
		state:     StateUninitialized,
	}
	o.listener = listener.New(o.autoCommit, listener.Options{
		QuietPeriod: cfg.DebounceWindow,
		MaxWait:     cfg.MaxWait,
		Logger:      log,
	})

	if store.IsInitialized() {
		o.state = StateIdle
		o.listener.Enable()
	}
	return o, nil
}

// OnNotification feeds one mutation notification into the debounce
// window. Safe to call from any goroutine; never blocks.
func (o *Orchestrator) OnNotification(n model.MutationNotification) {
	o.listener.Notify(n)
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Initialize sets up version control for the store: revision-store
// init, initial dump, initial commit, then the listener starts
// accepting notifications. Calling it twice returns
// E_ALREADY_INITIALIZED.
func (o *Orchestrator) Initialize() error {
	o.mu.Lock()
	if o.state != StateUninitialized {
		o.mu.Unlock()
		return errclass.ErrAlreadyInitialized.WithMessagef("store %s is already under version control", o.storePath)
	}
	o.state = StateCommitting
	o.mu.Unlock()

	fail := func(err error) error {
		o.mu.Lock()
		o.state = StateUninitialized
		o.mu.Unlock()
		return err
	}

	o.storeMu.Lock()
	err := o.store.Init()
	if err == nil {
		err = o.adapter.Dump(o.storePath, o.store.StateDir())
	}
	var snap *model.Snapshot
	if err == nil {
		snap, err = o.store.Commit(InitialMessage)
	}
	o.storeMu.Unlock()
	if err != nil {
		return fail(err)
	}

	o.log.Info("version control initialized", map[string]any{
		"store":    o.storePath,
		"snapshot": snap.ID.ShortID(),
	})

	o.drainQueued(nil)
	o.listener.Enable()
	return nil
}

// autoCommit is the listener's flush target. A flush arriving while a
// commit is in flight is queued, never dropped; a flush arriving
// during a restore is dropped (the listener is disabled for the
// restore's duration, this is a backstop).
func (o *Orchestrator) autoCommit(batch []model.MutationNotification) {
	o.mu.Lock()
	switch o.state {
	case StateUninitialized, StateRestoring:
		o.mu.Unlock()
		return
	case StateCommitting:
		o.queued = append(o.queued, batch...)
		o.mu.Unlock()
		return
	}
	o.state = StateCommitting
	o.mu.Unlock()

	o.drainQueued(batch)
}

// drainQueued commits batch, then every batch queued while Committing,
// and returns the orchestrator to Idle. The caller must hold the
// Committing state. Every path out of Committing funnels through here
// so a flush that raced a commit is re-flushed, never lost.
func (o *Orchestrator) drainQueued(batch []model.MutationNotification) {
	for {
		if len(batch) > 0 {
			o.commitBatch(batch)
		}

		o.mu.Lock()
		if len(o.queued) == 0 {
			o.state = StateIdle
			o.mu.Unlock()
			return
		}
		batch, o.queued = o.queued, nil
		o.mu.Unlock()
	}
}

// commitBatch dumps and commits one batch. Dump or commit failures are
// logged and abandoned for this cycle: dumps are cumulative, so the
// next successful flush captures everything. The listener stays
// enabled.
func (o *Orchestrator) commitBatch(batch []model.MutationNotification) {
	msg := message.Synthesize(batch)

	o.storeMu.Lock()
	defer o.storeMu.Unlock()

	if err := o.adapter.Dump(o.storePath, o.store.StateDir()); err != nil {
		o.log.ErrorErr("snapshot dump failed, will retry on next flush", err, map[string]any{
			"events": len(batch),
		})
		return
	}

	snap, err := o.store.Commit(msg)
	if err != nil {
		if errors.Is(err, errclass.ErrNothingToCommit) {
			o.log.Debug("flush produced no changes", map[string]any{"events": len(batch)})
			return
		}
		o.log.ErrorErr("snapshot commit failed, will retry on next flush", err, map[string]any{
			"events": len(batch),
		})
		return
	}

	o.log.Info("snapshot committed", map[string]any{
		"snapshot": snap.ID.ShortID(),
		"events":   len(batch),
		"message":  msg,
	})
}

// Commit forces a snapshot outside the debounce cycle, with the given
// note as message. This is the escape hatch a caller uses to clear
// uncommitted changes before a restore.
func (o *Orchestrator) Commit(note string) (*model.Snapshot, error) {
	o.mu.Lock()
	switch o.state {
	case StateUninitialized:
		o.mu.Unlock()
		return nil, errclass.ErrNotInitialized.WithMessagef("store %s is not under version control", o.storePath)
	case StateCommitting, StateRestoring:
		o.mu.Unlock()
		return nil, errclass.ErrBusy.WithMessagef("operation in flight: %s", o.state)
	}
	o.state = StateCommitting
	o.mu.Unlock()

	// A listener flush landing mid-commit queues its batch; drain it on
	// the way out so those mutations reach a snapshot too.
	defer o.drainQueued(nil)

	o.storeMu.Lock()
	defer o.storeMu.Unlock()

	if err := o.adapter.Dump(o.storePath, o.store.StateDir()); err != nil {
		return nil, err
	}
	return o.store.Commit(note)
}

// ListSnapshots returns up to limit snapshots, newest first.
func (o *Orchestrator) ListSnapshots(limit int) ([]*model.Snapshot, error) {
	if err := o.requireInitialized(); err != nil {
		return nil, err
	}
	o.storeMu.Lock()
	defer o.storeMu.Unlock()
	return o.store.Log(limit)
}

// ViewDiff compares the serialized units of two snapshots.
func (o *Orchestrator) ViewDiff(from, to model.Ref) ([]model.DiffEntry, error) {
	if err := o.requireInitialized(); err != nil {
		return nil, err
	}
	o.storeMu.Lock()
	defer o.storeMu.Unlock()
	return o.store.Diff(from, to)
}

// HasUncommittedChanges reports whether the serialized state differs
// from the head snapshot.
func (o *Orchestrator) HasUncommittedChanges() (bool, error) {
	if err := o.requireInitialized(); err != nil {
		return false, err
	}
	o.storeMu.Lock()
	defer o.storeMu.Unlock()
	return o.store.HasUncommittedChanges()
}

// Status reports the orchestrator's current state for the host UI.
func (o *Orchestrator) Status() (*Status, error) {
	o.mu.Lock()
	st := &Status{
		State:         o.state,
		Initialized:   o.state != StateUninitialized,
		DroppedEvents: o.listener.Dropped(),
	}
	o.mu.Unlock()

	if !st.Initialized {
		return st, nil
	}
	if st.State != StateIdle {
		// A commit or restore is rewriting the work tree; changes are
		// in flight.
		st.UncommittedChanges = true
		return st, nil
	}

	o.storeMu.Lock()
	defer o.storeMu.Unlock()
	head, err := o.store.Head()
	if err == nil {
		st.Head = head
	}
	dirty, err := o.store.HasUncommittedChanges()
	if err != nil {
		return nil, err
	}
	st.UncommittedChanges = dirty
	return st, nil
}

// Restore replaces the live datastore's contents with those captured
// in the referenced snapshot. The only destructive operation.
//
// Preconditions: initialized, no commit or restore in flight, no
// uncommitted changes. History is never rewritten: the snapshot is
// checked out into the serialized state, loaded into a rebuilt store,
// and the rebuilt store is rename-swapped into place.
func (o *Orchestrator) Restore(ref model.Ref) error {
	o.mu.Lock()
	switch o.state {
	case StateUninitialized:
		o.mu.Unlock()
		return errclass.ErrNotInitialized.WithMessagef("store %s is not under version control", o.storePath)
	case StateCommitting, StateRestoring:
		o.mu.Unlock()
		return errclass.ErrBusy.WithMessagef("operation in flight: %s", o.state)
	}
	o.state = StateRestoring
	o.mu.Unlock()

	// Notifications arriving mid-restore describe a datastore that is
	// about to be replaced wholesale; drop them.
	o.listener.Disable()

	err := o.restore(ref)
	if errors.Is(err, errclass.ErrCorruptedRestore) {
		// The primary datastore's state is ambiguous. Leave the
		// orchestrator wedged in Restoring with the listener disabled;
		// the host must surface a blocking error.
		o.log.ErrorErr("restore corrupted the datastore, manual intervention required", err, map[string]any{
			"ref": ref.String(),
		})
		go o.signals.RestoreFailed(ref, err)
		return err
	}

	o.mu.Lock()
	o.state = StateIdle
	o.mu.Unlock()
	o.listener.Enable()

	if err != nil {
		go o.signals.RestoreFailed(ref, err)
		return err
	}
	o.log.Info("restore completed", map[string]any{"ref": ref.String()})
	go o.signals.RestoreCompleted(ref)
	return nil
}

func (o *Orchestrator) restore(ref model.Ref) error {
	o.storeMu.Lock()
	defer o.storeMu.Unlock()

	if _, err := o.store.Resolve(ref); err != nil {
		return err
	}

	dirty, err := o.store.HasUncommittedChanges()
	if err != nil {
		return err
	}
	if dirty {
		// Never silently dump-then-discard un-flushed work; the caller
		// must force a commit first.
		return errclass.ErrUncommittedChanges.WithMessage("commit outstanding changes before restoring")
	}

	if err := o.store.Checkout(ref); err != nil {
		return err
	}

	if err := o.adapter.Load(o.storePath, o.store.StateDir(), true); err != nil {
		if errors.Is(err, errclass.ErrCorruptedRestore) {
			return err
		}
		// The rebuild failed before the swap, so the datastore is
		// untouched. Put the serialized state back on head and abort.
		if resetErr := o.store.ResetToHead(); resetErr != nil {
			o.log.ErrorErr("failed to reset serialized state after aborted restore", resetErr)
		}
		return err
	}
	return nil
}

// Close tears the orchestrator down at project-close time. It does not
// wait for an in-flight commit; the next successful flush after reopen
// captures cumulative changes.
func (o *Orchestrator) Close() {
	o.listener.Close()
}

func (o *Orchestrator) requireInitialized() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateUninitialized {
		return errclass.ErrNotInitialized.WithMessagef("store %s is not under version control", o.storePath)
	}
	return nil
}
