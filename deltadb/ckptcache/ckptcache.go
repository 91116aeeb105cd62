// Package ckptcache caches parsed day-checkpoints in a local bbolt
// database, so repeated historical queries over the same day don't
// re-parse its .ckpt file from scratch. Grounded on the teacher's
// db/bolt wrapper, repurposed from arbitrary JSON buckets to a single
// "checkpoints" bucket keyed by "<year>/<yday>".
package ckptcache

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketName = "checkpoints"

// Cache wraps a bbolt database holding serialized day-checkpoints.
type Cache struct {
	db *bolt.DB
}

// record is the cached representation of a day's checkpoint: plain
// JSON text per key, since jx.Value itself is not a json.Marshaler and
// round-tripping through its own printer is both sufficient and cheap.
type record struct {
	Records map[string]string `json:"records"`
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("ckptcache: open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ckptcache: create bucket: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

func dayKey(year, yday int) string { return fmt.Sprintf("%04d/%03d", year, yday) }

// Get returns the cached printed-JX text for each record key of the
// given day, or ok=false if the day has not been cached.
func (c *Cache) Get(year, yday int) (map[string]string, bool, error) {
	var rec record
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		data := b.Get([]byte(dayKey(year, yday)))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, false, err
	}
	return rec.Records, found, nil
}

// Put stores printed-JX text for each record key of the given day,
// replacing any prior entry for that day.
func (c *Cache) Put(year, yday int, records map[string]string) error {
	data, err := json.Marshal(record{Records: records})
	if err != nil {
		return fmt.Errorf("ckptcache: marshal: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put([]byte(dayKey(year, yday)), data)
	})
}

// Invalidate drops the cached entry for a day. Table calls this
// whenever it writes a fresh checkpoint for that day (rotation), so a
// historical query never reads stale cached data for a day the table
// process itself just rewrote.
func (c *Cache) Invalidate(year, yday int) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Delete([]byte(dayKey(year, yday)))
	})
}
