// Package questions stores quiz questions in an embedded BadgerDB.
package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "q/"

// ImportedKey is written by ImportCSV. Its presence marks a database that
// has been populated.
const ImportedKey = "meta/imported"

// ErrNotFound is returned by Get for an unknown question number.
var ErrNotFound = errors.New("question not found")

// Question is one quiz question. Text maps sentence index to sentence.
type Question struct {
	QNum int            `json:"qnum"`
	Fold string         `json:"fold"`
	Page string         `json:"page"`
	Text map[int]string `json:"text"`
}

// MaxSentence returns the highest sentence index, or -1 without text.
func (q *Question) MaxSentence() int {
	maxSent := -1
	for i := range q.Text {
		if i > maxSent {
			maxSent = i
		}
	}
	return maxSent
}

// Config holds the options of a question store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path     string
	InMemory bool
	// ReadOnly opens an existing database without taking the write lock
	// exclusively; Put and ImportCSV fail.
	ReadOnly   bool
	SyncWrites bool
	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// DefaultConfig returns the configuration for a persistent store at path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests; data is lost on Close.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Store is a question database. It is safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens the store described by cfg, creating the directory of a
// writable persistent store.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Path == "":
		return nil, errors.New("path is required for a persistent question store")
	default:
		if !cfg.ReadOnly {
			if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
				return nil, fmt.Errorf("create question store directory %s: %w", cfg.Path, err)
			}
		}
		opts = badger.DefaultOptions(cfg.Path).WithReadOnly(cfg.ReadOnly)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open question store: %w", err)
	}
	return &Store{db: db}, nil
}

// manifestFile exists in every directory badger has opened for writing.
const manifestFile = "MANIFEST"

// Peek reports whether key is in the persistent store at path. It opens the
// store read-only and closes it before returning, and reports false without
// touching the disk when no store exists at path.
func Peek(path, key string, log *slog.Logger) (bool, error) {
	if _, err := os.Stat(filepath.Join(path, manifestFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("question store %s: %w", path, err)
	}
	s, err := Open(Config{Path: path, ReadOnly: true, Logger: log})
	if err != nil {
		return false, err
	}
	defer s.Close()
	return s.Has(key)
}

// Key returns the store key of question qnum. Keys sort in qnum order.
func Key(qnum int) string {
	return fmt.Sprintf("%s%010d", keyPrefix, qnum)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces q.
func (s *Store) Put(q *Question) error {
	if q.QNum < 0 {
		return fmt.Errorf("invalid question number %d", q.QNum)
	}
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode question %d: %w", q.QNum, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(Key(q.QNum)), data)
	})
}

// Get returns question qnum or ErrNotFound.
func (s *Store) Get(qnum int) (*Question, error) {
	var q Question
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(Key(qnum)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &q)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("question %d: %w", qnum, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read question %d: %w", qnum, err)
	}
	return &q, nil
}

// Has reports whether key is present. It lets the store back key targets.
func (s *Store) Has(key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// All returns every question ordered by qnum.
func (s *Store) All(ctx context.Context) ([]*Question, error) {
	var out []*Question
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var q Question
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &q)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", item.Key(), err)
			}
			out = append(out, &q)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].QNum < out[j].QNum })
	return out, nil
}
