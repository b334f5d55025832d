package profiles

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// BadgerStore keeps profiles in an embedded BadgerDB. Records are msgpack
// encoded under "profile/<id>"; "owner/<owner>/<id>" keys index them by owner.
type BadgerStore struct {
	db *badger.DB
}

type BadgerOptions struct {
	Dir string
	// InMemory runs badger without disk persistence (tests).
	InMemory bool
}

func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("profiles: badger dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open profile store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func profileKey(id string) []byte { return []byte("profile/" + id) }

func ownerPrefix(ownerID string) []byte { return []byte("owner/" + ownerID + "/") }

func ownerKey(ownerID, id string) []byte { return append(ownerPrefix(ownerID), id...) }

func (s *BadgerStore) Save(_ context.Context, p Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	val, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		// Drop a stale owner index entry if ownership changed.
		if prev, err := getProfile(txn, p.ID); err == nil && prev.OwnerID != p.OwnerID {
			if err := txn.Delete(ownerKey(prev.OwnerID, p.ID)); err != nil {
				return err
			}
		}
		if err := txn.Set(profileKey(p.ID), val); err != nil {
			return err
		}
		return txn.Set(ownerKey(p.OwnerID, p.ID), []byte{})
	})
}

func (s *BadgerStore) Get(_ context.Context, id string) (Profile, error) {
	var p Profile
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		p, err = getProfile(txn, id)
		return err
	})
	return p, err
}

func (s *BadgerStore) ListByOwner(_ context.Context, ownerID string, limit int) ([]Profile, error) {
	prefix := ownerPrefix(ownerID)
	out := make([]Profile, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := string(it.Item().Key()[len(prefix):])
			p, err := getProfile(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return newestFirst(out, limit), nil
}

func (s *BadgerStore) Delete(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		p, err := getProfile(txn, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txn.Delete(ownerKey(p.OwnerID, id)); err != nil {
			return err
		}
		return txn.Delete(profileKey(id))
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func getProfile(txn *badger.Txn, id string) (Profile, error) {
	item, err := txn.Get(profileKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	err = item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &p)
	})
	if err != nil {
		return Profile{}, fmt.Errorf("decode profile %s: %w", id, err)
	}
	return p, nil
}

// badgerLogger forwards warnings and errors to the standard logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{})   { log.Printf("[badger] ERROR: "+f, v...) }
func (badgerLogger) Warningf(f string, v ...interface{}) { log.Printf("[badger] WARN: "+f, v...) }
func (badgerLogger) Infof(string, ...interface{})        {}
func (badgerLogger) Debugf(string, ...interface{})       {}
