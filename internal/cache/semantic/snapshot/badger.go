package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps the snapshot under one key of an embedded badger
// database.
type BadgerStore struct {
	db  *badger.DB
	key []byte
}

// NewBadgerStore opens a badger database at dir, or in memory.
func NewBadgerStore(dir string, inMemory bool, key string, logger *slog.Logger) (*BadgerStore, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create badger dir %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, key: []byte(key)}, nil
}

func (b *BadgerStore) Name() string { return BackendBadger }

func (b *BadgerStore) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key, data)
	})
}

func (b *BadgerStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return out, nil
}

func (b *BadgerStore) Close() error { return b.db.Close() }

// badgerLogger routes badger's logging into slog. Info is demoted to debug
// since badger is chatty on open and close.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
