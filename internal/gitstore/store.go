// Package gitstore wraps the git executable as a typed, append-only
// revision store over the serialized state directory. The repository
// metadata lives apart from the work tree so the work tree can be
// replaced wholesale by dumps.
package gitstore

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/scribelab/chronicle/pkg/errclass"
	"github.com/scribelab/chronicle/pkg/model"
	"github.com/scribelab/chronicle/pkg/pathutil"
)

const (
	// HistoryDirName holds the repository metadata (the git dir).
	HistoryDirName = "history"
	// StateDirName is the tracked work tree of serialized units.
	StateDirName = "state"

	commitAuthor = "chronicle"
	commitEmail  = "chronicle@localhost"
)

// Store is a revision store rooted at a .chronicle directory.
type Store struct {
	root   string // the .chronicle directory
	binary string
}

// New creates a store. root is the .chronicle directory; binary names
// the git executable (empty means "git").
func New(root, binary string) *Store {
	if binary == "" {
		binary = "git"
	}
	return &Store{root: root, binary: binary}
}

// CheckBackend verifies the version-control executable is available.
// Absence is a configuration error, surfaced at startup rather than
// per operation.
func (s *Store) CheckBackend() error {
	if _, err := exec.LookPath(s.binary); err != nil {
		return errclass.ErrBackendMissing.WithMessagef("%s not found on PATH", s.binary)
	}
	return nil
}

// HistoryDir returns the repository metadata directory.
func (s *Store) HistoryDir() string {
	return filepath.Join(s.root, HistoryDirName)
}

// StateDir returns the tracked work tree directory.
func (s *Store) StateDir() string {
	return filepath.Join(s.root, StateDirName)
}

// IsInitialized reports whether the store has been initialized.
func (s *Store) IsInitialized() bool {
	info, err := os.Stat(filepath.Join(s.HistoryDir(), "HEAD"))
	return err == nil && !info.IsDir()
}

// Init creates the history repository and the state work tree. Fails if
// the store is already initialized.
func (s *Store) Init() error {
	if s.IsInitialized() {
		return errclass.ErrAlreadyInitialized.WithMessagef("revision store exists at %s", s.HistoryDir())
	}
	if err := s.CheckBackend(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.StateDir(), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if _, err := s.run("init", "--quiet", "--initial-branch=main"); err != nil {
		return fmt.Errorf("init revision store: %w", err)
	}
	return nil
}

// Commit stages everything under the state directory and creates a new
// snapshot whose parent is the current head. Returns E_NOTHING_TO_COMMIT
// when no files changed since the last snapshot.
func (s *Store) Commit(message string) (*model.Snapshot, error) {
	dirty, err := s.HasUncommittedChanges()
	if err != nil {
		return nil, err
	}
	if !dirty {
		return nil, errclass.ErrNothingToCommit.WithMessage("state matches head snapshot")
	}

	if _, err := s.run("add", "-A", "--", "."); err != nil {
		return nil, fmt.Errorf("stage changes: %w", err)
	}
	if _, err := s.run("commit", "--quiet", "--allow-empty-message", "-m", message); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	snap, err := s.Head()
	if err != nil {
		return nil, fmt.Errorf("read new head: %w", err)
	}
	return snap, nil
}

// Head returns the snapshot at the current head.
func (s *Store) Head() (*model.Snapshot, error) {
	snaps, err := s.Log(1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, errclass.ErrRefNotFound.WithMessage("no snapshots yet")
	}
	return snaps[0], nil
}

// Log returns up to limit snapshots, newest first. limit <= 0 means no
// bound.
func (s *Store) Log(limit int) ([]*model.Snapshot, error) {
	args := []string{"log", "--pretty=format:%H%x09%P%x09%ct%x09%s"}
	if limit > 0 {
		args = append(args, "-n", strconv.Itoa(limit))
	}
	out, err := s.run(args...)
	if err != nil {
		// An empty repository has no log yet.
		if strings.Contains(err.Error(), "does not have any commits") {
			return nil, nil
		}
		return nil, fmt.Errorf("read log: %w", err)
	}

	var snaps []*model.Snapshot
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		snap, err := parseLogLine(line)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Resolve maps a reference to a full snapshot ID.
func (s *Store) Resolve(ref model.Ref) (model.SnapshotID, error) {
	if err := validateRef(ref); err != nil {
		return "", err
	}
	out, err := s.run("rev-parse", "--verify", "--quiet", ref.String()+"^{commit}")
	if err != nil {
		return "", errclass.ErrRefNotFound.WithMessagef("unknown revision %s", ref)
	}
	return model.SnapshotID(strings.TrimSpace(out)), nil
}

// Diff compares the serialized units of two snapshots.
func (s *Store) Diff(from, to model.Ref) ([]model.DiffEntry, error) {
	if _, err := s.Resolve(from); err != nil {
		return nil, err
	}
	if _, err := s.Resolve(to); err != nil {
		return nil, err
	}

	// Rename detection would collapse a dropped-and-recreated unit into
	// one entry with a tab-joined path pair; report it as delete + add.
	status, err := s.run("diff", "--no-renames", "--name-status", from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("diff name-status: %w", err)
	}
	numstat, err := s.run("diff", "--no-renames", "--numstat", from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("diff numstat: %w", err)
	}
	return combineDiff(status, numstat)
}

// Checkout makes the state directory match the referenced snapshot
// exactly, without moving head: history is append-only. Fails with
// E_UNCOMMITTED_CHANGES if the state directory currently differs from
// the head snapshot.
func (s *Store) Checkout(ref model.Ref) error {
	id, err := s.Resolve(ref)
	if err != nil {
		return err
	}
	dirty, err := s.HasUncommittedChanges()
	if err != nil {
		return err
	}
	if dirty {
		return errclass.ErrUncommittedChanges.WithMessage("state directory differs from head snapshot")
	}

	// Restore every tracked file to the referenced snapshot, then drop
	// files that exist at head but not at the reference.
	if _, err := s.run("checkout", "--quiet", id.String(), "--", "."); err != nil {
		return fmt.Errorf("checkout %s: %w", ref, err)
	}
	if err := s.removeExtraneous(id); err != nil {
		return err
	}
	return nil
}

// removeExtraneous deletes work-tree files not present in the snapshot.
// git checkout <ref> -- . only adds and overwrites; files created since
// ref would otherwise survive and corrupt the restored state.
func (s *Store) removeExtraneous(id model.SnapshotID) error {
	tracked, err := s.run("ls-tree", "-r", "--name-only", id.String())
	if err != nil {
		return fmt.Errorf("list snapshot files: %w", err)
	}
	keep := make(map[string]struct{})
	for _, name := range strings.Split(strings.TrimSpace(tracked), "\n") {
		if name != "" {
			keep[name] = struct{}{}
		}
	}

	current, err := s.run("ls-files")
	if err != nil {
		return fmt.Errorf("list work tree files: %w", err)
	}
	for _, name := range strings.Split(strings.TrimSpace(current), "\n") {
		if name == "" {
			continue
		}
		if _, ok := keep[name]; ok {
			continue
		}
		if _, err := s.run("rm", "--quiet", "--force", "--", name); err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// ResetToHead forces the state directory back to the head snapshot,
// discarding any divergence. Used to roll back an aborted restore.
func (s *Store) ResetToHead() error {
	if _, err := s.run("reset", "--hard", "--quiet", "HEAD"); err != nil {
		return fmt.Errorf("reset to head: %w", err)
	}
	return nil
}

// HasUncommittedChanges reports whether the state directory differs
// from the head snapshot.
func (s *Store) HasUncommittedChanges() (bool, error) {
	out, err := s.run("status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("status: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

func (s *Store) run(args ...string) (string, error) {
	base := []string{
		"--git-dir", s.HistoryDir(),
		"--work-tree", s.StateDir(),
		"-c", "user.name=" + commitAuthor,
		"-c", "user.email=" + commitEmail,
		"-c", "commit.gpgsign=false",
		"-c", "core.autocrlf=false",
	}
	cmd := exec.Command(s.binary, append(base, args...)...)
	cmd.Dir = s.StateDir()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("%s %s: %s (%v)", s.binary, args[0], msg, err)
	}
	return stdout.String(), nil
}

func parseLogLine(line string) (*model.Snapshot, error) {
	parts := strings.SplitN(line, "\t", 4)
	if len(parts) != 4 {
		return nil, fmt.Errorf("malformed log line: %q", line)
	}
	epoch, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed commit time: %q", parts[2])
	}

	snap := &model.Snapshot{
		ID:        model.SnapshotID(parts[0]),
		Message:   parts[3],
		CreatedAt: time.Unix(epoch, 0).UTC(),
	}
	// Merge parents never occur on a linear history; keep the first.
	if p := strings.Fields(parts[1]); len(p) > 0 {
		pid := model.SnapshotID(p[0])
		snap.ParentID = &pid
	}
	return snap, nil
}

// combineDiff joins git's name-status classification with numstat
// line counts into DiffEntry values. Each unit file carries one
// CREATE header line, which is excluded from added/deleted row counts.
func combineDiff(status, numstat string) ([]model.DiffEntry, error) {
	counts := map[string][2]int{}
	for _, line := range strings.Split(strings.TrimSpace(numstat), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		added, _ := strconv.Atoi(fields[0])
		deleted, _ := strconv.Atoi(fields[1])
		counts[fields[2]] = [2]int{added, deleted}
	}

	var entries []model.DiffEntry
	for _, line := range strings.Split(strings.TrimSpace(status), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed diff status line: %q", line)
		}
		c := counts[fields[1]]
		entry := model.DiffEntry{UnitName: unitName(fields[1])}
		switch fields[0][0] {
		case 'A':
			entry.ChangeKind = model.ChangeAdded
			entry.AffectedRowCount = max(c[0]-1, 0)
		case 'D':
			entry.ChangeKind = model.ChangeDeleted
			entry.AffectedRowCount = max(c[1]-1, 0)
		default:
			entry.ChangeKind = model.ChangeModified
			entry.AffectedRowCount = max(c[0], c[1])
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func unitName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func validateRef(ref model.Ref) error {
	// Peel symbolic ~N / ^N suffixes before name validation. Bare
	// trailing digits stay put: an abbreviated snapshot ID may consist
	// of digits alone.
	trimmed := ref.String()
	for {
		peeled := strings.TrimRight(trimmed, "0123456789")
		if !strings.HasSuffix(peeled, "~") && !strings.HasSuffix(peeled, "^") {
			break
		}
		trimmed = peeled[:len(peeled)-1]
	}
	if trimmed == "" {
		return errclass.ErrNameInvalid.WithMessagef("ref must not be empty: %s", ref)
	}
	return pathutil.ValidateRef(trimmed)
}
