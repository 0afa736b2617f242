package datastore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/assembly/internal/merge"
	bolt "go.etcd.io/bbolt"
)

// schemaBucket holds the per-collection schema-version counters, persisted
// independently of the record data.
const schemaBucket = "__schema"

// defaultCollection is used when the settings carry no db name.
const defaultCollection = "records"

// localTier serves records from an embedded bbolt database: one file per
// store name, one bucket per collection. The collection is lazily created
// on first use, bumping its schema-version counter.
type localTier struct {
	settings Settings
	path     string

	mu sync.Mutex
	db *bolt.DB
}

func newLocalTier(settings Settings, baseDir string) *localTier {
	return &localTier{
		settings: settings,
		path:     filepath.Join(baseDir, settings.Store+".db"),
	}
}

func (l *localTier) collection() []byte {
	if l.settings.DB != "" {
		return []byte(l.settings.DB)
	}
	return []byte(defaultCollection)
}

// open lazily opens the database file and ensures the collection exists,
// incrementing the schema version when it has to be created.
func (l *localTier) open() (*bolt.DB, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db != nil {
		return l.db, nil
	}

	db, err := bolt.Open(l.path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open local store %s: %w", l.path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		schema, err := tx.CreateBucketIfNotExists([]byte(schemaBucket))
		if err != nil {
			return err
		}
		name := l.collection()
		if tx.Bucket(name) == nil {
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
			version := uint64(0)
			if prev := schema.Get(name); prev != nil {
				version = binary.BigEndian.Uint64(prev)
			}
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, version+1)
			if err := schema.Put(name, buf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("upgrade local store %s: %w", l.path, err)
	}

	l.db = db
	return db, nil
}

// SchemaVersion reports the collection's persisted schema version, mostly
// for diagnostics.
func (l *localTier) schemaVersion() (uint64, error) {
	db, err := l.open()
	if err != nil {
		return 0, err
	}
	var version uint64
	err = db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket([]byte(schemaBucket)).Get(l.collection()); raw != nil {
			version = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	return version, err
}

func (l *localTier) get(ctx context.Context, key string) (Record, error) {
	db, err := l.open()
	if err != nil {
		return nil, err
	}
	var rec Record
	err = db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(l.collection()).Get([]byte(key))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (l *localTier) query(ctx context.Context, q Record) ([]Record, error) {
	db, err := l.open()
	if err != nil {
		return nil, err
	}
	var out []Record
	err = db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(l.collection()).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if merge.Matches(q, rec) {
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *localTier) count(ctx context.Context, q Record) (int, error) {
	recs, err := l.query(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (l *localTier) set(ctx context.Context, rec Record) (Record, error) {
	db, err := l.open()
	if err != nil {
		return nil, err
	}

	key, _ := rec[KeyField].(string)
	if key == "" {
		key = uuid.NewString()
		rec = merge.Clone(rec).(map[string]any)
		rec[KeyField] = key
	}

	var stored Record
	err = db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(l.collection())
		stored = merge.Integrate(merge.Clone(rec).(map[string]any), Record{})
		if raw := bucket.Get([]byte(key)); raw != nil {
			var existing Record
			if err := json.Unmarshal(raw, &existing); err != nil {
				return err
			}
			stored = merge.Integrate(merge.Clone(rec).(map[string]any), existing)
		}
		encoded, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), encoded)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (l *localTier) del(ctx context.Context, key string) (any, error) {
	db, err := l.open()
	if err != nil {
		return nil, err
	}

	if key == "" {
		var all []Record
		err = db.Update(func(tx *bolt.Tx) error {
			bucket := tx.Bucket(l.collection())
			if err := bucket.ForEach(func(k, v []byte) error {
				var rec Record
				if err := json.Unmarshal(v, &rec); err != nil {
					return err
				}
				all = append(all, rec)
				return nil
			}); err != nil {
				return err
			}
			if err := tx.DeleteBucket(l.collection()); err != nil {
				return err
			}
			_, err := tx.CreateBucket(l.collection())
			return err
		})
		if err != nil {
			return nil, err
		}
		return all, nil
	}

	var removed Record
	err = db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(l.collection())
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &removed); err != nil {
			return err
		}
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return nil, err
	}
	if removed == nil {
		return nil, nil
	}
	return removed, nil
}

func (l *localTier) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}
