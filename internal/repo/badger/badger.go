// Package badger stores endpoints in an embedded Badger key/value database.
// Each endpoint lives under its own key, so status writes for different
// endpoints never touch the same record.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/hamed0406/servicepoller/internal/domain"
	"github.com/hamed0406/servicepoller/internal/repo"
)

var _ repo.Store = (*Store)(nil)

const keyPrefix = "endpoint:"

type Store struct {
	db *badgerdb.DB
}

// record is the on-disk shape; status is kept in its persisted string form.
type record struct {
	ID     string    `json:"id"`
	URL    string    `json:"url"`
	Name   string    `json:"name"`
	Added  time.Time `json:"added"`
	Status string    `json:"status"`
}

func Open(path string) (*Store, error) {
	opts := badgerdb.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil
	opts = opts.WithValueLogFileSize(1 << 20)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func endpointKey(id domain.EndpointID) []byte {
	return []byte(keyPrefix + string(id))
}

func toRecord(e domain.Endpoint) record {
	return record{
		ID:     string(e.ID),
		URL:    e.URL,
		Name:   e.Name,
		Added:  e.Added,
		Status: e.Status.String(),
	}
}

func (r record) endpoint() (domain.Endpoint, error) {
	st, err := domain.ParseStatus(r.Status)
	if err != nil {
		return domain.Endpoint{}, err
	}
	return domain.Endpoint{
		ID:     domain.EndpointID(r.ID),
		URL:    r.URL,
		Name:   r.Name,
		Added:  r.Added,
		Status: st,
	}, nil
}

func (s *Store) Create(ctx context.Context, e *domain.Endpoint) error {
	e.ID = domain.EndpointID(uuid.NewString())
	if e.Added.IsZero() {
		e.Added = time.Now().UTC()
	}
	if e.Name == "" {
		e.Name = domain.DefaultName
	}
	e.Status = domain.StatusUnknown

	data, err := json.Marshal(toRecord(*e))
	if err != nil {
		return &repo.StoreError{Op: "create", ID: e.ID, Err: err}
	}
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(endpointKey(e.ID), data)
	})
	if err != nil {
		return &repo.StoreError{Op: "create", ID: e.ID, Err: err}
	}
	return nil
}

func (s *Store) ListAll(ctx context.Context) ([]domain.Endpoint, error) {
	var out []domain.Endpoint
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r record
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &r)
			}); err != nil {
				return err
			}
			e, err := r.endpoint()
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, &repo.StoreError{Op: "list", Err: err}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Added.Before(out[j].Added) })
	return out, nil
}

// WriteStatus does its read-modify-write inside a single transaction.
func (s *Store) WriteStatus(ctx context.Context, id domain.EndpointID, status domain.Status) error {
	if !status.Valid() {
		return &repo.StoreError{Op: "write_status", ID: id, Err: domain.ErrInvalidStatus}
	}
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(endpointKey(id))
		if err != nil {
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return repo.ErrNotFound
			}
			return err
		}
		var r record
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &r)
		}); err != nil {
			return err
		}
		r.Status = status.String()
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return txn.Set(endpointKey(id), data)
	})
	if err != nil {
		return &repo.StoreError{Op: "write_status", ID: id, Err: err}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id domain.EndpointID) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(endpointKey(id))
	})
	if err != nil {
		return &repo.StoreError{Op: "delete", ID: id, Err: err}
	}
	return nil
}
