package scraper

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/opay-dz/opay/internal/metrics"
)

var imagesBucket = []byte("images")

type entry struct {
	Images   []string  `json:"images"`
	StoredAt time.Time `json:"stored_at"`
}

// Cache keeps successful scrape results in a bbolt file for ttl.
type Cache struct {
	db  *bolt.DB
	ttl time.Duration
}

func OpenCache(path string, ttl time.Duration) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open scrape cache %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(imagesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create cache bucket")
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns cached images for key unless missing or older than the ttl.
func (c *Cache) Get(key string, now time.Time) ([]string, bool) {
	var e entry
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(imagesBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		found = now.Sub(e.StoredAt) < c.ttl
		return nil
	})
	if !found {
		metrics.ScrapeCache.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.ScrapeCache.WithLabelValues("hit").Inc()
	return e.Images, true
}

func (c *Cache) Put(key string, images []string, now time.Time) error {
	raw, err := json.Marshal(entry{Images: images, StoredAt: now})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(imagesBucket).Put([]byte(key), raw)
	})
}

// Prune deletes expired entries and returns how many were removed.
func (c *Cache) Prune(now time.Time) (int, error) {
	removed := 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(imagesBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var e entry
			if json.Unmarshal(v, &e) != nil || now.Sub(e.StoredAt) >= c.ttl {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, errors.Wrap(err, "prune scrape cache")
}

func (c *Cache) Close() error {
	return c.db.Close()
}
