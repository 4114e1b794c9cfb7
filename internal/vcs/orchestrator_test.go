package vcs_test

import (
	"database/sql"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/scribelab/chronicle/internal/dump"
	"github.com/scribelab/chronicle/internal/vcs"
	"github.com/scribelab/chronicle/pkg/config"
	"github.com/scribelab/chronicle/pkg/errclass"
	"github.com/scribelab/chronicle/pkg/model"
)

func newProject(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available on PATH")
	}
	dir := t.TempDir()
	store := filepath.Join(dir, "project.sqlite")

	db, err := sql.Open("sqlite", store)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE sources (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO sources VALUES (1, 'interview_01')`)
	require.NoError(t, err)
	return store
}

func execStore(t *testing.T, store, stmt string, args ...any) {
	t.Helper()
	db, err := sql.Open("sqlite", store)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(stmt, args...)
	require.NoError(t, err)
}

func queryNames(t *testing.T, store string) []string {
	t.Helper()
	db, err := sql.Open("sqlite", store)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query(`SELECT name FROM sources ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	return names
}

func newOrchestrator(t *testing.T, store string, opts vcs.Options) *vcs.Orchestrator {
	t.Helper()
	if opts.Config == nil {
		opts.Config = config.Default()
		opts.Config.DebounceWindow = 50 * time.Millisecond
	}
	o, err := vcs.New(store, opts)
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %v", timeout)
}

func historyLen(t *testing.T, o *vcs.Orchestrator) int {
	t.Helper()
	snaps, err := o.ListSnapshots(0)
	require.NoError(t, err)
	return len(snaps)
}

func TestInitialize_CreatesFirstSnapshot(t *testing.T) {
	store := newProject(t)
	o := newOrchestrator(t, store, vcs.Options{})

	require.NoError(t, o.Initialize())
	assert.Equal(t, vcs.StateIdle, o.State())

	snaps, err := o.ListSnapshots(0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, vcs.InitialMessage, snaps[0].Message)
	assert.Nil(t, snaps[0].ParentID)
}

func TestInitialize_TwiceReturnsAlreadyInitialized(t *testing.T) {
	store := newProject(t)
	o := newOrchestrator(t, store, vcs.Options{})

	require.NoError(t, o.Initialize())
	err := o.Initialize()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrAlreadyInitialized))

	// History length remains 1.
	assert.Equal(t, 1, historyLen(t, o))
}

func TestOperations_RequireInitialization(t *testing.T) {
	store := newProject(t)
	o := newOrchestrator(t, store, vcs.Options{})

	_, err := o.ListSnapshots(0)
	assert.True(t, errors.Is(err, errclass.ErrNotInitialized))

	err = o.Restore(model.Head)
	assert.True(t, errors.Is(err, errclass.ErrNotInitialized))

	_, err = o.Commit("manual")
	assert.True(t, errors.Is(err, errclass.ErrNotInitialized))
}

func TestAutoCommit_CoalescesBurst(t *testing.T) {
	store := newProject(t)
	o := newOrchestrator(t, store, vcs.Options{})
	require.NoError(t, o.Initialize())

	execStore(t, store, `INSERT INTO sources VALUES (2, 'interview_02')`)

	now := time.Now()
	o.OnNotification(model.MutationNotification{Kind: model.KindCodingCreate, OccurredAt: now, SubjectSummary: "code 'trust'"})
	o.OnNotification(model.MutationNotification{Kind: model.KindCodingApply, OccurredAt: now, SubjectSummary: "applied"})
	o.OnNotification(model.MutationNotification{Kind: model.KindSourcesImport, OccurredAt: now, SubjectSummary: "interview_02"})

	waitFor(t, 5*time.Second, func() bool { return historyLen(t, o) == 2 })

	snaps, err := o.ListSnapshots(1)
	require.NoError(t, err)
	assert.Equal(t, "2 coding changes, 1 sources changes", snaps[0].Message)
}

func TestAutoCommit_EmptyFlushIsNoOp(t *testing.T) {
	store := newProject(t)
	o := newOrchestrator(t, store, vcs.Options{})
	require.NoError(t, o.Initialize())

	// A notification with no actual datastore change dumps identical
	// bytes; the commit surfaces NothingToCommit internally and no
	// snapshot appears.
	o.OnNotification(model.MutationNotification{Kind: model.KindCodingApply, OccurredAt: time.Now(), SubjectSummary: "no-op"})

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, historyLen(t, o))
}

func TestCommit_Manual(t *testing.T) {
	store := newProject(t)
	o := newOrchestrator(t, store, vcs.Options{})
	require.NoError(t, o.Initialize())

	execStore(t, store, `INSERT INTO sources VALUES (2, 'interview_02')`)

	snap, err := o.Commit("before restore")
	require.NoError(t, err)
	assert.Equal(t, "before restore", snap.Message)
	assert.Equal(t, 2, historyLen(t, o))
}

func TestCommit_NothingToCommit(t *testing.T) {
	store := newProject(t)
	o := newOrchestrator(t, store, vcs.Options{})
	require.NoError(t, o.Initialize())

	_, err := o.Commit("no changes")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrNothingToCommit))
}

type recordingSignals struct {
	mu        sync.Mutex
	completed []model.Ref
	failed    []model.Ref
}

func (r *recordingSignals) RestoreCompleted(ref model.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, ref)
}

func (r *recordingSignals) RestoreFailed(ref model.Ref, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, ref)
}

func (r *recordingSignals) completedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed)
}

func (r *recordingSignals) failedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failed)
}

func TestRestore_SecondToLastCommit(t *testing.T) {
	store := newProject(t)
	sig := &recordingSignals{}
	o := newOrchestrator(t, store, vcs.Options{Signals: sig})
	require.NoError(t, o.Initialize())

	// Three commits on top of the initial snapshot.
	execStore(t, store, `INSERT INTO sources VALUES (2, 'second')`)
	_, err := o.Commit("add second")
	require.NoError(t, err)

	execStore(t, store, `INSERT INTO sources VALUES (3, 'third')`)
	_, err = o.Commit("add third")
	require.NoError(t, err)

	execStore(t, store, `INSERT INTO sources VALUES (4, 'fourth')`)
	_, err = o.Commit("add fourth")
	require.NoError(t, err)

	require.NoError(t, o.Restore("HEAD~1"))

	// The store matches the state captured at the second-to-last commit.
	assert.Equal(t, []string{"interview_01", "second", "third"}, queryNames(t, store))

	// Restore does not rewrite history: all four commits remain.
	assert.Equal(t, 4, historyLen(t, o))
	assert.Equal(t, vcs.StateIdle, o.State())

	waitFor(t, 2*time.Second, func() bool { return sig.completedCount() == 1 })
	assert.Equal(t, 0, sig.failedCount())
}

func TestRestore_UncommittedChangesRejected(t *testing.T) {
	store := newProject(t)
	o := newOrchestrator(t, store, vcs.Options{})
	require.NoError(t, o.Initialize())

	execStore(t, store, `INSERT INTO sources VALUES (2, 'second')`)
	_, err := o.Commit("add second")
	require.NoError(t, err)

	// Produce un-flushed serialized changes directly, as a crashed or
	// interrupted commit cycle would leave behind.
	stateDir := filepath.Join(filepath.Dir(store), config.ChronicleDirName, "state")
	execStore(t, store, `INSERT INTO sources VALUES (3, 'third')`)
	require.NoError(t, dump.NewAdapter(nil).Dump(store, stateDir))

	err = o.Restore("HEAD~1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrUncommittedChanges))

	// Primary datastore untouched.
	assert.Equal(t, []string{"interview_01", "second", "third"}, queryNames(t, store))
	assert.Equal(t, vcs.StateIdle, o.State())
}

func TestRestore_UnknownRef(t *testing.T) {
	store := newProject(t)
	sig := &recordingSignals{}
	o := newOrchestrator(t, store, vcs.Options{Signals: sig})
	require.NoError(t, o.Initialize())

	err := o.Restore("no-such-snapshot")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrRefNotFound))
	assert.Equal(t, vcs.StateIdle, o.State())

	waitFor(t, 2*time.Second, func() bool { return sig.failedCount() == 1 })
}

func TestRestore_ListenerDisabledDuringRestore(t *testing.T) {
	store := newProject(t)
	o := newOrchestrator(t, store, vcs.Options{})
	require.NoError(t, o.Initialize())

	execStore(t, store, `INSERT INTO sources VALUES (2, 'second')`)
	_, err := o.Commit("add second")
	require.NoError(t, err)

	require.NoError(t, o.Restore("HEAD~1"))

	// The listener accepts notifications again after the restore.
	execStore(t, store, `INSERT INTO sources VALUES (5, 'after-restore')`)
	o.OnNotification(model.MutationNotification{Kind: model.KindSourcesImport, OccurredAt: time.Now(), SubjectSummary: "after-restore"})

	waitFor(t, 5*time.Second, func() bool { return historyLen(t, o) == 3 })
}

func TestViewDiff(t *testing.T) {
	store := newProject(t)
	o := newOrchestrator(t, store, vcs.Options{})
	require.NoError(t, o.Initialize())

	execStore(t, store, `INSERT INTO sources VALUES (2, 'second')`)
	_, err := o.Commit("add second")
	require.NoError(t, err)

	entries, err := o.ViewDiff("HEAD~1", "HEAD")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sources", entries[0].UnitName)
	assert.Equal(t, model.ChangeModified, entries[0].ChangeKind)
	assert.Equal(t, 1, entries[0].AffectedRowCount)

	// Diffing a ref against itself is empty.
	entries, err = o.ViewDiff(model.Head, model.Head)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStatus(t *testing.T) {
	store := newProject(t)
	o := newOrchestrator(t, store, vcs.Options{})

	st, err := o.Status()
	require.NoError(t, err)
	assert.False(t, st.Initialized)
	assert.Equal(t, vcs.StateUninitialized, st.State)

	require.NoError(t, o.Initialize())

	st, err = o.Status()
	require.NoError(t, err)
	assert.True(t, st.Initialized)
	assert.Equal(t, vcs.StateIdle, st.State)
	require.NotNil(t, st.Head)
	assert.Equal(t, vcs.InitialMessage, st.Head.Message)
	assert.False(t, st.UncommittedChanges)
}

func TestNew_MissingBackendIsConfigurationError(t *testing.T) {
	store := newProject(t)
	cfg := config.Default()
	cfg.GitBinary = "definitely-not-a-real-vcs-binary"

	_, err := vcs.New(store, vcs.Options{Config: cfg})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrBackendMissing))
}

func TestNew_ReopensInitializedStore(t *testing.T) {
	store := newProject(t)
	o := newOrchestrator(t, store, vcs.Options{})
	require.NoError(t, o.Initialize())
	o.Close()

	reopened := newOrchestrator(t, store, vcs.Options{})
	assert.Equal(t, vcs.StateIdle, reopened.State())
	assert.Equal(t, 1, historyLen(t, reopened))
}

// slowCommitGit wraps the real git binary with a script that stalls
// the commit subcommand, holding the orchestrator in Committing long
// enough for concurrent calls to observe it.
func slowCommitGit(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell wrapper requires a POSIX shell")
	}
	gitPath, err := exec.LookPath("git")
	require.NoError(t, err)

	script := filepath.Join(t.TempDir(), "slow-git")
	body := "#!/bin/sh\n" +
		"for a in \"$@\"; do\n" +
		"  if [ \"$a\" = commit ]; then sleep 1; fi\n" +
		"done\n" +
		"exec \"" + gitPath + "\" \"$@\"\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))
	return script
}

func TestCommit_FlushDuringCommitIsDrained(t *testing.T) {
	store := newProject(t)
	cfg := config.Default()
	cfg.DebounceWindow = 50 * time.Millisecond
	cfg.GitBinary = slowCommitGit(t)
	o := newOrchestrator(t, store, vcs.Options{Config: cfg})
	require.NoError(t, o.Initialize())

	execStore(t, store, `INSERT INTO sources VALUES (2, 'second')`)

	commitErr := make(chan error, 1)
	go func() {
		_, err := o.Commit("manual")
		commitErr <- err
	}()

	// Deliver a mutation while the manual commit is stalled; its flush
	// must be queued and committed once the manual commit returns.
	waitFor(t, 5*time.Second, func() bool { return o.State() == vcs.StateCommitting })
	execStore(t, store, `INSERT INTO sources VALUES (3, 'third')`)
	o.OnNotification(model.MutationNotification{Kind: model.KindSourcesImport, OccurredAt: time.Now(), SubjectSummary: "third"})

	require.NoError(t, <-commitErr)
	waitFor(t, 10*time.Second, func() bool { return historyLen(t, o) == 3 })
	waitFor(t, 5*time.Second, func() bool { return o.State() == vcs.StateIdle })

	// The drained snapshot captured row 3.
	require.NoError(t, o.Restore(model.Head))
	assert.Equal(t, []string{"interview_01", "second", "third"}, queryNames(t, store))
}

func TestStatus_DuringCommitReportsBusyState(t *testing.T) {
	store := newProject(t)
	cfg := config.Default()
	cfg.DebounceWindow = 50 * time.Millisecond
	cfg.GitBinary = slowCommitGit(t)
	o := newOrchestrator(t, store, vcs.Options{Config: cfg})
	require.NoError(t, o.Initialize())

	execStore(t, store, `INSERT INTO sources VALUES (2, 'second')`)

	commitErr := make(chan error, 1)
	go func() {
		_, err := o.Commit("manual")
		commitErr <- err
	}()

	waitFor(t, 5*time.Second, func() bool { return o.State() == vcs.StateCommitting })
	st, err := o.Status()
	require.NoError(t, err)
	assert.Equal(t, vcs.StateCommitting, st.State)
	assert.True(t, st.UncommittedChanges)

	require.NoError(t, <-commitErr)
}
