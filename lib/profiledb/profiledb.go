// Package profiledb stores dumped training profiles in SQLite for
// offline analysis. The database is a flat relational view of one or
// more profile streams; it is not consulted at runtime.
package profiledb

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/preheat/training"
)

var log = commonlog.GetLogger("preheat.db")

// ErrRunNotFound indicates the requested run id has no rows.
var ErrRunNotFound = errors.New("run not found")

// Store handles SQLite storage for training profiles.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (creating if needed) a profile database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS klasses (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			loader TEXT NOT NULL DEFAULT '',
			iclock INTEGER NOT NULL DEFAULT 0,
			clinit_done INTEGER NOT NULL DEFAULT 0,
			touched INTEGER NOT NULL DEFAULT 0,
			fieldinit_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, name, loader)
		)`,
		`CREATE TABLE IF NOT EXISTS methods (
			run_id TEXT NOT NULL,
			klass TEXT NOT NULL,
			loader TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			signature TEXT NOT NULL,
			level_mask INTEGER NOT NULL DEFAULT 0,
			only_inlined INTEGER NOT NULL DEFAULT 0,
			highest_top_level INTEGER NOT NULL DEFAULT 0,
			last_compile_id INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, klass, loader, name, signature)
		)`,
		`CREATE TABLE IF NOT EXISTS compiles (
			run_id TEXT NOT NULL,
			klass TEXT NOT NULL,
			method TEXT NOT NULL,
			signature TEXT NOT NULL,
			tier INTEGER NOT NULL,
			compile_id INTEGER NOT NULL,
			is_inlined INTEGER NOT NULL DEFAULT 0,
			nm_size INTEGER NOT NULL DEFAULT 0,
			init_deps_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, klass, method, signature, compile_id)
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ImportRegistry writes every record of a loaded registry into the
// database under its run id. Re-importing the same run replaces its
// rows.
func (s *Store) ImportRegistry(reg *training.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runID := reg.RunID()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting import: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"klasses", "methods", "compiles"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	// Collect first: the iteration callback must not call back into the
	// registry, and the importers read locked record state.
	var klasses []*training.ClassRecord
	var methods []*training.MethodRecord
	reg.IterateAll(func(key training.Key, rec training.Record) {
		switch v := rec.(type) {
		case *training.ClassRecord:
			klasses = append(klasses, v)
		case *training.MethodRecord:
			methods = append(methods, v)
		}
	})

	for _, ktd := range klasses {
		if err := importKlass(tx, runID, ktd); err != nil {
			return err
		}
	}
	for _, mtd := range methods {
		if err := importMethod(tx, runID, mtd); err != nil {
			return err
		}
	}
	count := len(klasses) + len(methods)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}
	log.Infof("imported %d records for run %s into %s", count, runID, s.path)
	return nil
}

func importKlass(tx *sql.Tx, runID string, ktd *training.ClassRecord) error {
	_, err := tx.Exec(
		`INSERT OR REPLACE INTO klasses
		 (run_id, name, loader, iclock, clinit_done, touched, fieldinit_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, ktd.Name().Name(), ktd.LoaderName().Name(),
		ktd.ClinitSequence(), ktd.ClinitIsDone(),
		ktd.HasInitializationTouch(), ktd.FieldInitCount(),
	)
	if err != nil {
		return fmt.Errorf("importing klass %s: %w", ktd.Name(), err)
	}
	return nil
}

func importMethod(tx *sql.Tx, runID string, mtd *training.MethodRecord) error {
	klass := mtd.Klass()
	_, err := tx.Exec(
		`INSERT OR REPLACE INTO methods
		 (run_id, klass, loader, name, signature, level_mask, only_inlined,
		  highest_top_level, last_compile_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, klass.Name().Name(), klass.LoaderName().Name(),
		mtd.Name().Name(), mtd.Signature().Name(),
		mtd.TierMask(), mtd.OnlyInlined(),
		mtd.HighestTopTier(), mtd.LastCompileID(),
	)
	if err != nil {
		return fmt.Errorf("importing method %s: %w", mtd.Name(), err)
	}

	var compErr error
	mtd.EachCompile(func(ctd *training.CompileRecord) {
		if compErr != nil {
			return
		}
		_, compErr = tx.Exec(
			`INSERT OR REPLACE INTO compiles
			 (run_id, klass, method, signature, tier, compile_id, is_inlined,
			  nm_size, init_deps_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, klass.Name().Name(), mtd.Name().Name(), mtd.Signature().Name(),
			ctd.Tier(), ctd.CompileID(), ctd.IsInlined(),
			ctd.CodeSize(), len(ctd.InitDeps()),
		)
	})
	if compErr != nil {
		return fmt.Errorf("importing compiles of %s: %w", mtd.Name(), compErr)
	}
	return nil
}

// Runs lists the distinct run ids present in the database.
func (s *Store) Runs() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT run_id FROM klasses
		 UNION SELECT DISTINCT run_id FROM methods ORDER BY run_id`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		runs = append(runs, id)
	}
	return runs, rows.Err()
}

// RunSummary aggregates one run's stored rows.
type RunSummary struct {
	RunID        string
	Klasses      int
	Initialized  int
	Methods      int
	TopLevel     int
	Compiles     int
	HighestTier  int
	TotalNMBytes int64
}

// Summarize computes aggregate counts for one run.
func (s *Store) Summarize(runID string) (*RunSummary, error) {
	sum := &RunSummary{RunID: runID}

	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(clinit_done), 0)
		 FROM klasses WHERE run_id = ?`, runID).
		Scan(&sum.Klasses, &sum.Initialized)
	if err != nil {
		return nil, fmt.Errorf("summarizing klasses: %w", err)
	}

	err = s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(only_inlined = 0), 0)
		 FROM methods WHERE run_id = ?`, runID).
		Scan(&sum.Methods, &sum.TopLevel)
	if err != nil {
		return nil, fmt.Errorf("summarizing methods: %w", err)
	}

	err = s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(MAX(tier), 0), COALESCE(SUM(nm_size), 0)
		 FROM compiles WHERE run_id = ?`, runID).
		Scan(&sum.Compiles, &sum.HighestTier, &sum.TotalNMBytes)
	if err != nil {
		return nil, fmt.Errorf("summarizing compiles: %w", err)
	}

	if sum.Klasses == 0 && sum.Methods == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return sum, nil
}

// HotMethod is one row of the hottest-methods query.
type HotMethod struct {
	Klass     string
	Name      string
	Signature string
	Tier      int
	NMSize    int
}

// HottestMethods returns a run's top-level methods ordered by highest
// tier then code size, limited to n rows.
func (s *Store) HottestMethods(runID string, n int) ([]HotMethod, error) {
	rows, err := s.db.Query(
		`SELECT klass, name, signature, highest_top_level,
		        COALESCE((SELECT MAX(nm_size) FROM compiles c
		                  WHERE c.run_id = m.run_id AND c.klass = m.klass
		                    AND c.method = m.name AND c.signature = m.signature), 0)
		 FROM methods m
		 WHERE run_id = ? AND only_inlined = 0
		 ORDER BY highest_top_level DESC, 5 DESC, klass, name
		 LIMIT ?`, runID, n)
	if err != nil {
		return nil, fmt.Errorf("querying hottest methods: %w", err)
	}
	defer rows.Close()

	var out []HotMethod
	for rows.Next() {
		var hm HotMethod
		if err := rows.Scan(&hm.Klass, &hm.Name, &hm.Signature, &hm.Tier, &hm.NMSize); err != nil {
			return nil, err
		}
		out = append(out, hm)
	}
	return out, rows.Err()
}
