package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v4"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

// BadgerConfig configures a [BadgerStore].
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps the database in RAM. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives BadgerDB's internal messages. Nil disables them.
	Logger *log.Logger
}

// BadgerStore stores artifacts in an embedded BadgerDB database.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger adapts log.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *log.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens a BadgerDB-backed store.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, emerrors.New(emerrors.ErrCodeInvalidInput, "badger store needs a path")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, emerrors.Wrap(emerrors.ErrCodeStorage, err, "create database directory %s", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, emerrors.Wrap(emerrors.ErrCodeStorage, err, "open badger database")
	}
	return &BadgerStore{db: db}, nil
}

// Get reads key in a read-only transaction.
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := emerrors.ValidateKey(key); err != nil {
		return nil, false, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("read", key, err)
	}
	return data, true, nil
}

// Put writes key in its own transaction.
func (s *BadgerStore) Put(_ context.Context, key string, data []byte) error {
	if err := emerrors.ValidateKey(key); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	return storageErr("write", key, err)
}

// Has checks key presence without copying the value.
func (s *BadgerStore) Has(_ context.Context, key string) (bool, error) {
	if err := emerrors.ValidateKey(key); err != nil {
		return false, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("stat", key, err)
	}
	return true, nil
}

// Delete removes key.
func (s *BadgerStore) Delete(_ context.Context, key string) error {
	if err := emerrors.ValidateKey(key); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return storageErr("delete", key, err)
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
