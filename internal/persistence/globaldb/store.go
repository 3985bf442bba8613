// Package globaldb is the durable global store: named, codec-serialized records attached to
// a canonical realm, persisted in sqlite with explicit dirty marking.
package globaldb

import (
	"context"
	"database/sql"
	"encoding"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"riftgate.ai/internal/realm"
)

// Record is a piece of saved data. Implementations serialize themselves and must be safe to
// marshal from the flush goroutine while the tick thread mutates them.
type Record interface {
	RecordName() string
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

var ErrClosed = errors.New("global store closed")

type entry struct {
	owner realm.ID
	rec   Record
	dirty bool
}

type Store struct {
	db  *sql.DB
	log zerolog.Logger

	mu      sync.Mutex
	records map[string]*entry
	closed  bool

	persistDebounce time.Duration
	persistCh       chan struct{}
	persistFlush    chan chan error
	persistStop     chan struct{}
	persistWG       sync.WaitGroup
	closeOnce       sync.Once
}

func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:              db,
		log:             logger.With().Str("component", "globaldb").Logger(),
		records:         map[string]*entry{},
		persistDebounce: 250 * time.Millisecond,
		persistCh:       make(chan struct{}, 1),
		persistFlush:    make(chan chan error, 8),
		persistStop:     make(chan struct{}),
	}
	s.persistWG.Add(1)
	go s.persistLoop()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS records (
			name TEXT PRIMARY KEY,
			realm TEXT NOT NULL,
			data BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', '1');`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// GetOrCreate binds rec to the store. Persisted data, if any, is decoded into rec; otherwise rec
// is kept as-is and scheduled for its first write.
func (s *Store) GetOrCreate(ctx context.Context, owner realm.ID, rec Record) error {
	name := rec.RecordName()
	if name == "" {
		return fmt.Errorf("record with empty name")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if e, ok := s.records[name]; ok && e.rec != rec {
		s.mu.Unlock()
		return fmt.Errorf("record %q already bound", name)
	}
	s.mu.Unlock()

	var (
		data       []byte
		storedOver string
	)
	err := s.db.QueryRowContext(ctx, `SELECT realm, data FROM records WHERE name = ?`, name).Scan(&storedOver, &data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.mu.Lock()
		s.records[name] = &entry{owner: owner, rec: rec, dirty: true}
		s.schedulePersistLocked()
		s.mu.Unlock()
		return nil
	case err != nil:
		return fmt.Errorf("load record %q: %w", name, err)
	}
	if storedOver != string(owner) {
		s.log.Warn().Str("record", name).Str("stored_realm", storedOver).Str("realm", string(owner)).Msg("record realm changed")
	}
	if err := rec.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("decode record %q: %w", name, err)
	}
	s.mu.Lock()
	s.records[name] = &entry{owner: owner, rec: rec}
	s.mu.Unlock()
	return nil
}

// MarkDirty schedules a persisted write of the named record.
func (s *Store) MarkDirty(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[name]
	if !ok {
		return
	}
	e.dirty = true
	s.schedulePersistLocked()
}

func (s *Store) Dirty(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[name]
	return ok && e.dirty
}

func (s *Store) schedulePersistLocked() {
	select {
	case s.persistCh <- struct{}{}:
	default:
	}
}

func (s *Store) persistLoop() {
	defer s.persistWG.Done()
	var timer *time.Timer
	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
	}
	for {
		var timerCh <-chan time.Time
		if timer != nil {
			timerCh = timer.C
		}
		select {
		case <-s.persistStop:
			stopTimer()
			if err := s.persistNow(context.Background()); err != nil {
				s.log.Error().Err(err).Msg("final flush")
			}
			return
		case <-s.persistCh:
			if timer == nil {
				timer = time.NewTimer(s.persistDebounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(s.persistDebounce)
			}
		case ack := <-s.persistFlush:
			stopTimer()
			ack <- s.persistNow(context.Background())
		case <-timerCh:
			stopTimer()
			if err := s.persistNow(context.Background()); err != nil {
				s.log.Error().Err(err).Msg("flush")
			}
		}
	}
}

// Flush blocks until every dirty record has been written.
func (s *Store) Flush(ctx context.Context) error {
	ack := make(chan error, 1)
	select {
	case s.persistFlush <- ack:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// persistNow writes all dirty records in a single transaction so records flushed together
// are durable together.
func (s *Store) persistNow(ctx context.Context) error {
	type pending struct {
		name  string
		owner realm.ID
		data  []byte
	}
	s.mu.Lock()
	names := make([]string, 0, len(s.records))
	for name, e := range s.records {
		if e.dirty {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	batch := make([]pending, 0, len(names))
	for _, name := range names {
		e := s.records[name]
		data, err := e.rec.MarshalBinary()
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("encode record %q: %w", name, err)
		}
		batch = append(batch, pending{name: name, owner: e.owner, data: data})
		e.dirty = false
	}
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO records(name, realm, data, updated_at) VALUES(?,?,?,?)
			ON CONFLICT(name) DO UPDATE SET realm=excluded.realm, data=excluded.data, updated_at=excluded.updated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		now := time.Now().UTC().Format(time.RFC3339Nano)
		for _, p := range batch {
			if _, err := stmt.ExecContext(ctx, p.name, string(p.owner), p.data, now); err != nil {
				return fmt.Errorf("write record %q: %w", p.name, err)
			}
		}
		return nil
	})
	if err != nil {
		s.mu.Lock()
		for _, p := range batch {
			if e, ok := s.records[p.name]; ok {
				e.dirty = true
			}
		}
		s.mu.Unlock()
	}
	return err
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Names lists persisted record names, for admin inspection.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM records ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.persistStop)
		s.persistWG.Wait()
		err = s.db.Close()
	})
	return err
}
