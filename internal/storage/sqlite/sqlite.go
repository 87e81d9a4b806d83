// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
//
// Every group gets its own database file (group_<id>.db) inside the data
// directory. Each file is opened through two handles: a single-connection
// writer that starts immediate transactions, and a reader pool used by
// View. WAL journaling lets readers proceed while the writer is busy.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/groupledger/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

const (
	filePrefix = "group_"
	fileSuffix = ".db"

	// Per-connection pragmas; applied by the driver to every new connection.
	pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
)

// SQLiteStore implements storage.Store using one SQLite file per group.
type SQLiteStore struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	groups map[int64]*groupDB
	closed bool
}

type groupDB struct {
	writer *sql.DB
	reader *sql.DB
}

// New creates a new SQLiteStore rooted at dir.
// It creates the directory if needed. Group databases are opened and
// migrated lazily on first access.
func New(dir string, logger *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{
		dir:    dir,
		logger: logger,
		groups: make(map[int64]*groupDB),
	}, nil
}

// Close closes every open group database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, g := range s.groups {
		if err := g.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close group %d: %w", id, err)
		}
	}
	s.groups = map[int64]*groupDB{}
	s.closed = true
	return firstErr
}

// Update runs fn in a read-write transaction on the group's database.
func (s *SQLiteStore) Update(ctx context.Context, groupID int64, fn func(tx storage.Tx) error) error {
	g, err := s.group(ctx, groupID)
	if err != nil {
		return err
	}
	return runTx(ctx, g.writer, groupID, fn, true)
}

// View runs fn in a transaction on the reader pool. Nothing is committed.
func (s *SQLiteStore) View(ctx context.Context, groupID int64, fn func(tx storage.Tx) error) error {
	g, err := s.group(ctx, groupID)
	if err != nil {
		return err
	}
	return runTx(ctx, g.reader, groupID, fn, false)
}

// Groups lists the groups that have a database file in the data directory.
func (s *SQLiteStore) Groups(ctx context.Context) ([]int64, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var ids []int64
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func runTx(ctx context.Context, db *sql.DB, groupID int64, fn func(tx storage.Tx) error, commit bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx, groupID: groupID}); err != nil {
		return err
	}
	if !commit {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// group returns the open database for a group, creating and migrating it on first use.
func (s *SQLiteStore) group(ctx context.Context, groupID int64) (*groupDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if g, ok := s.groups[groupID]; ok {
		return g, nil
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s%d%s", filePrefix, groupID, fileSuffix))
	g, err := openGroup(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open group %d: %w", groupID, err)
	}
	s.groups[groupID] = g
	s.logger.Debug("Group database opened", "group_id", groupID, "path", path)
	return g, nil
}

func openGroup(ctx context.Context, path string) (*groupDB, error) {
	dsn := "file:" + path + "?" + pragmas

	// Open writer with immediate transactions so a write never fails
	// while upgrading a read lock.
	writer, err := sql.Open("sqlite", dsn+"&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	writer.SetMaxOpenConns(1)

	// Run migrations
	if err := runMigrations(ctx, writer); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &groupDB{writer: writer, reader: reader}, nil
}

func (g *groupDB) close() error {
	rerr := g.reader.Close()
	if err := g.writer.Close(); err != nil {
		return err
	}
	return rerr
}
