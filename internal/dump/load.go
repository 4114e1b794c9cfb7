package dump

import (
	"bufio"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/scribelab/chronicle/pkg/errclass"
	"github.com/scribelab/chronicle/pkg/fsutil"
)

// Load rebuilds the store at sourcePath from the serialized units in
// snapshotDir. The rebuild happens in a temporary database which is
// rename-swapped into place only on full success, so a failing unit
// leaves the existing store untouched.
//
// If replaceExisting is false and sourcePath already holds data, Load
// fails with E_TARGET_EXISTS.
func (a *Adapter) Load(sourcePath, snapshotDir string, replaceExisting bool) error {
	if !replaceExisting {
		if info, err := os.Stat(sourcePath); err == nil && info.Size() > 0 {
			return errclass.ErrTargetExists.WithMessagef("store already exists: %s", sourcePath)
		}
	}

	units, err := ListUnits(snapshotDir)
	if err != nil {
		return errclass.ErrLoadFailed.WithMessagef("list units: %v", err)
	}
	if len(units) == 0 {
		return errclass.ErrLoadFailed.WithMessagef("no serialized units in %s", snapshotDir)
	}

	tmp, err := os.CreateTemp(filepath.Dir(sourcePath), filepath.Base(sourcePath)+".rebuild-*")
	if err != nil {
		return errclass.ErrLoadFailed.WithMessagef("create rebuild target: %v", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	os.Remove(tmpPath) // sqlite creates the file itself
	defer func() {
		os.Remove(tmpPath)
		os.Remove(tmpPath + "-journal")
		os.Remove(tmpPath + "-wal")
		os.Remove(tmpPath + "-shm")
	}()

	if err := a.rebuild(tmpPath, snapshotDir, units); err != nil {
		return err
	}

	if err := fsutil.SwapPath(tmpPath, sourcePath); err != nil {
		// SwapPath rolls the original back into place on failure; if
		// even that failed the store is gone and the state is ambiguous.
		if _, statErr := os.Stat(sourcePath); statErr != nil {
			return errclass.ErrCorruptedRestore.WithMessagef("store swap failed and rollback failed: %v", err)
		}
		return errclass.ErrLoadFailed.WithMessagef("swap rebuilt store: %v", err)
	}
	return nil
}

func (a *Adapter) rebuild(dbPath, snapshotDir string, units []string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return errclass.ErrLoadFailed.WithMessagef("open rebuild target: %v", err)
	}
	defer db.Close()

	// Foreign keys stay off during the rebuild: units execute in name
	// order, not dependency order.
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		return errclass.ErrLoadFailed.WithMessagef("set pragma: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return errclass.ErrLoadFailed.WithMessagef("begin rebuild: %v", err)
	}
	defer tx.Rollback()

	for _, unit := range units {
		if err := execUnit(tx, filepath.Join(snapshotDir, unit)); err != nil {
			return errclass.ErrLoadFailed.WithMessagef("unit %s: %v", unit, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errclass.ErrLoadFailed.WithMessagef("commit rebuild: %v", err)
	}
	return nil
}

// execUnit executes a serialized unit, one statement per line. Lines
// are read without a size cap: a single row holding a large text or
// blob cell dumps to an arbitrarily long INSERT.
func execUnit(tx *sql.Tx, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	for {
		line, readErr := r.ReadString('\n')
		if stmt := strings.TrimSpace(line); stmt != "" {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
