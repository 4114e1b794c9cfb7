// Package dump converts the primary SQLite store to and from a
// directory of line-diffable SQL text units, one file per table.
package dump

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/scribelab/chronicle/pkg/errclass"
	"github.com/scribelab/chronicle/pkg/fsutil"
	"github.com/scribelab/chronicle/pkg/pathutil"
)

// UnitExt is the filename extension of a serialized unit.
const UnitExt = ".sql"

// SchemaUnit holds non-table schema objects (indexes, views, triggers).
const SchemaUnit = "schema" + UnitExt

// Adapter performs bidirectional conversion between the live store and
// the serialized directory. It owns the serialized files exclusively.
type Adapter struct {
	exclude map[string]struct{}
}

// NewAdapter creates an adapter. excludeUnits names tables skipped by
// dumps, typically large derived tables such as full-text indexes.
func NewAdapter(excludeUnits []string) *Adapter {
	ex := make(map[string]struct{}, len(excludeUnits))
	for _, u := range excludeUnits {
		ex[u] = struct{}{}
	}
	return &Adapter{exclude: ex}
}

func (a *Adapter) excluded(table string) bool {
	_, ok := a.exclude[table]
	return ok
}

// Dump serializes the store at sourcePath into destDir, one unit per
// included table plus a schema unit, replacing prior contents. Output
// is deterministic: rows are ordered by primary key, so unchanged data
// produces byte-identical files. Writes stage into a sibling temp
// directory and swap in atomically, so a failed dump never leaves
// destDir looking complete.
func (a *Adapter) Dump(sourcePath, destDir string) error {
	db, err := openRO(sourcePath)
	if err != nil {
		return errclass.ErrDumpFailed.WithMessagef("open source: %v", err)
	}
	defer db.Close()

	tables, err := a.listTables(db)
	if err != nil {
		return errclass.ErrDumpFailed.WithMessagef("list tables: %v", err)
	}

	staging, err := os.MkdirTemp(filepath.Dir(destDir), filepath.Base(destDir)+".staging-*")
	if err != nil {
		return errclass.ErrDumpFailed.WithMessagef("create staging dir: %v", err)
	}
	defer os.RemoveAll(staging)

	for _, t := range tables {
		if err := a.dumpTable(db, t, staging); err != nil {
			return err
		}
	}
	if err := a.dumpSchema(db, staging); err != nil {
		return err
	}

	if err := fsutil.SwapPath(staging, destDir); err != nil {
		return errclass.ErrDumpFailed.WithMessagef("swap into place: %v", err)
	}
	return nil
}

type table struct {
	name      string
	createSQL string
}

func (a *Adapter) listTables(db *sql.DB) ([]table, error) {
	rows, err := db.Query(
		`SELECT name, sql FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND sql IS NOT NULL
		 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []table
	for rows.Next() {
		var t table
		if err := rows.Scan(&t.name, &t.createSQL); err != nil {
			return nil, err
		}
		if a.excluded(t.name) {
			continue
		}
		if err := pathutil.ValidateUnitName(t.name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (a *Adapter) dumpTable(db *sql.DB, t table, destDir string) error {
	orderBy, err := orderClause(db, t.name)
	if err != nil {
		return errclass.ErrDumpFailed.WithMessagef("inspect %s: %v", t.name, err)
	}

	rows, err := db.Query(fmt.Sprintf(`SELECT * FROM %s ORDER BY %s`, quoteIdent(t.name), orderBy))
	if err != nil {
		return errclass.ErrDumpFailed.WithMessagef("read %s: %v", t.name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return errclass.ErrDumpFailed.WithMessagef("columns of %s: %v", t.name, err)
	}

	var sb strings.Builder
	sb.WriteString(oneLine(t.createSQL))
	sb.WriteString(";\n")

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return errclass.ErrDumpFailed.WithMessagef("scan %s: %v", t.name, err)
		}
		sb.WriteString("INSERT INTO ")
		sb.WriteString(quoteIdent(t.name))
		sb.WriteString(" VALUES (")
		for i, v := range vals {
			if i > 0 {
				sb.WriteString(",")
			}
			lit, err := literal(v)
			if err != nil {
				return errclass.ErrUnsupportedColumn.WithMessagef("%s.%s: %v", t.name, cols[i], err)
			}
			sb.WriteString(lit)
		}
		sb.WriteString(");\n")
	}
	if err := rows.Err(); err != nil {
		return errclass.ErrDumpFailed.WithMessagef("iterate %s: %v", t.name, err)
	}

	path := filepath.Join(destDir, t.name+UnitExt)
	if err := fsutil.AtomicWrite(path, []byte(sb.String()), 0644); err != nil {
		return errclass.ErrDumpFailed.WithMessagef("write unit %s: %v", t.name, err)
	}
	return nil
}

// dumpSchema writes indexes, views and triggers into one shared unit.
// Objects attached to excluded tables are skipped with them.
func (a *Adapter) dumpSchema(db *sql.DB, destDir string) error {
	rows, err := db.Query(
		`SELECT type, name, tbl_name, sql FROM sqlite_master
		 WHERE type IN ('index', 'view', 'trigger')
		   AND name NOT LIKE 'sqlite_%' AND sql IS NOT NULL
		 ORDER BY type, name`)
	if err != nil {
		return errclass.ErrDumpFailed.WithMessagef("list schema objects: %v", err)
	}
	defer rows.Close()

	var sb strings.Builder
	for rows.Next() {
		var typ, name, tblName, createSQL string
		if err := rows.Scan(&typ, &name, &tblName, &createSQL); err != nil {
			return errclass.ErrDumpFailed.WithMessagef("scan schema object: %v", err)
		}
		if a.excluded(tblName) {
			continue
		}
		sb.WriteString(oneLine(createSQL))
		sb.WriteString(";\n")
	}
	if err := rows.Err(); err != nil {
		return errclass.ErrDumpFailed.WithMessagef("iterate schema objects: %v", err)
	}

	path := filepath.Join(destDir, SchemaUnit)
	if err := fsutil.AtomicWrite(path, []byte(sb.String()), 0644); err != nil {
		return errclass.ErrDumpFailed.WithMessagef("write schema unit: %v", err)
	}
	return nil
}

// orderClause returns the ORDER BY expression giving a stable,
// primary-key-ascending row order. Tables without an explicit primary
// key fall back to rowid.
func orderClause(db *sql.DB, tableName string) (string, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(tableName)))
	if err != nil {
		return "", err
	}
	defer rows.Close()

	// pk ordinal -> column name
	pk := map[int]string{}
	for rows.Next() {
		var (
			cid          int
			name, ctype  string
			notnull, pkn int
			dflt         any
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pkn); err != nil {
			return "", err
		}
		if pkn > 0 {
			pk[pkn] = name
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(pk) == 0 {
		return "rowid", nil
	}

	ords := make([]int, 0, len(pk))
	for n := range pk {
		ords = append(ords, n)
	}
	sort.Ints(ords)
	parts := make([]string, len(ords))
	for i, n := range ords {
		parts[i] = quoteIdent(pk[n])
	}
	return strings.Join(parts, ", "), nil
}

// ListUnits returns the serialized unit filenames in dir, sorted, with
// the shared schema unit last so loads apply indexes and triggers after
// the data they reference.
func ListUnits(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var units []string
	hasSchema := false
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != UnitExt {
			continue
		}
		if e.Name() == SchemaUnit {
			hasSchema = true
			continue
		}
		units = append(units, e.Name())
	}
	sort.Strings(units)
	if hasSchema {
		units = append(units, SchemaUnit)
	}
	return units, nil
}

func openRO(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=10000"); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// oneLine flattens a stored CREATE statement onto a single line so the
// unit stays one-statement-per-line. Line comments are dropped: folded
// onto one line they would comment out the rest of the statement.
// Quoted regions pass through untouched.
func oneLine(s string) string {
	var sb strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			sb.WriteByte(c)
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
			sb.WriteByte(c)
		case c == '[':
			quote = ']'
			sb.WriteByte(c)
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			sb.WriteByte(' ')
		case c == '\n' || c == '\r' || c == '\t':
			sb.WriteByte(' ')
		default:
			sb.WriteByte(c)
		}
	}
	return strings.TrimSpace(sb.String())
}
