// Package state manages sensorhub's persistent state using BoltDB.
// All writes are transactional; reads use read-only transactions to minimise contention.
package state

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	v1 "github.com/f9-o/sensorhub/api/v1"
)

// Bucket names
var (
	bucketNodes       = []byte("nodes")
	bucketGenerations = []byte("generations")
	bucketReadings    = []byte("readings")
)

// DB wraps a BoltDB instance with typed accessor methods.
type DB struct {
	bolt *bbolt.DB
}

// Open opens (or creates) the state database at the given path.
func Open(path string) (*DB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db %q: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketNodes, bucketGenerations, bucketReadings} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %q: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &DB{bolt: db}, nil
}

// Close closes the underlying BoltDB file.
func (db *DB) Close() error {
	return db.bolt.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.bolt.Path()
}

// Size returns the current database size in bytes.
func (db *DB) Size() (int64, error) {
	var size int64
	err := db.bolt.View(func(tx *bbolt.Tx) error {
		size = tx.Size()
		return nil
	})
	return size, err
}

// Snapshot writes a consistent copy of the whole database to w.
func (db *DB) Snapshot(w io.Writer) (int64, error) {
	var n int64
	err := db.bolt.View(func(tx *bbolt.Tx) error {
		var err error
		n, err = tx.WriteTo(w)
		return err
	})
	return n, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Node registry
// ─────────────────────────────────────────────────────────────────────────────

// PutNode upserts a NodeInfo record keyed by its address.
func (db *DB) PutNode(info v1.NodeInfo) error {
	return db.putJSON(bucketNodes, info.Address, info)
}

// GetNode retrieves a NodeInfo by address. Returns nil, nil if not found.
func (db *DB) GetNode(address string) (*v1.NodeInfo, error) {
	var info v1.NodeInfo
	found, err := db.getJSON(bucketNodes, address, &info)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &info, nil
}

// DeleteNode removes a node record.
func (db *DB) DeleteNode(address string) error {
	return db.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketNodes).Delete([]byte(address))
	})
}

// ListNodes returns all registered nodes ordered by address.
func (db *DB) ListNodes() ([]v1.NodeInfo, error) {
	var nodes []v1.NodeInfo
	err := db.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var info v1.NodeInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return fmt.Errorf("unmarshal node %q: %w", k, err)
			}
			nodes = append(nodes, info)
			return nil
		})
	})
	return nodes, err
}

// UpdateNodeStatus updates the status, last_seen, response time and fail_count fields.
func (db *DB) UpdateNodeStatus(address string, status v1.NodeStatus, responseTime time.Duration, failCount int) error {
	return db.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data := b.Get([]byte(address))
		if data == nil {
			return fmt.Errorf("node %q not found", address)
		}
		var info v1.NodeInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return fmt.Errorf("unmarshal node %q: %w", address, err)
		}
		info.Status = status
		info.FailCount = failCount
		if status == v1.NodeOnline {
			info.LastSeen = time.Now().UTC()
			info.ResponseTime = responseTime
		}
		out, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		return b.Put([]byte(address), out)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Generation history
// ─────────────────────────────────────────────────────────────────────────────

// PutGeneration stores a report/archive generation record.
func (db *DB) PutGeneration(rec v1.GenerationRecord) error {
	return db.putJSON(bucketGenerations, rec.ID, rec)
}

// ListGenerations returns generation records, newest first. An empty artifact
// returns every record.
func (db *DB) ListGenerations(artifact string) ([]v1.GenerationRecord, error) {
	var recs []v1.GenerationRecord
	err := db.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGenerations).ForEach(func(k, v []byte) error {
			var r v1.GenerationRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if artifact == "" || r.Artifact == artifact {
				recs = append(recs, r)
			}
			return nil
		})
	})
	sort.Slice(recs, func(i, j int) bool { return recs[i].StartedAt.After(recs[j].StartedAt) })
	return recs, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Reading history (agent side)
// ─────────────────────────────────────────────────────────────────────────────

// readingKey sorts lexicographically in time order.
func readingKey(ts time.Time) string {
	return ts.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

// AppendReading stores one reading snapshot.
func (db *DB) AppendReading(snap v1.ReadingSnapshot) error {
	return db.putJSON(bucketReadings, readingKey(snap.Timestamp), snap)
}

// ListReadings returns snapshots recorded at or after since, oldest first.
func (db *DB) ListReadings(since time.Time) ([]v1.ReadingSnapshot, error) {
	var out []v1.ReadingSnapshot
	err := db.bolt.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketReadings).Cursor()
		for k, v := c.Seek([]byte(readingKey(since))); k != nil; k, v = c.Next() {
			var s v1.ReadingSnapshot
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("unmarshal reading %q: %w", k, err)
			}
			out = append(out, s)
		}
		return nil
	})
	return out, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Generic helpers
// ─────────────────────────────────────────────────────────────────────────────

func (db *DB) putJSON(bucket []byte, key string, val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return db.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (db *DB) getJSON(bucket []byte, key string, out any) (bool, error) {
	var found bool
	err := db.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, out)
	})
	return found, err
}
