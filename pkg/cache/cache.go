// Package cache holds the row set of the currently viewed table. The
// backend stays the sole source of truth: every mutation invalidates
// the cached set and the service layer reloads it in full.
package cache

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/recoilme/pudge"
	"github.com/rs/zerolog"
)

type Cacher interface {
	// Get returns true if we get a hit in the cache and are able to
	// deserialize into the provided struct
	Get(key string, into any) bool

	// Set will serialize the provided data and store it in our cache
	Set(key string, val any)

	// Invalidate drops the entry for key, if any
	Invalidate(key string)

	Stats() Statistics
}

type entry struct {
	Payload  []byte
	CachedAt time.Time
}

type Statistics struct {
	TotalRequests int
	TotalHits     int
	TotalMisses   int
}

type Client struct {
	expiresAfter time.Duration
	db           *pudge.Db
	log          zerolog.Logger

	requests *int32
	hits     *int32
}

func (c *Client) Get(key string, into any) bool {
	atomic.AddInt32(c.requests, 1)

	res := &entry{}

	err := c.db.Get(key, res)
	if err != nil {
		if errors.Is(err, pudge.ErrKeyNotFound) {
			c.log.Debug().Msgf("cache miss on: %s", key)
			return false
		}

		c.log.Info().Err(err).Msgf("fetching cached value: %s", key)
		return false
	}

	if time.Since(res.CachedAt) > c.expiresAfter {
		c.log.Debug().Msgf("cache expiry on: %s", key)
		return false
	}

	err = json.Unmarshal(res.Payload, into)
	if err != nil {
		c.log.Info().Err(err).Msgf("deserializing cached value: %s", key)
		return false
	}

	atomic.AddInt32(c.hits, 1)
	return true
}

func (c *Client) Set(key string, val any) {
	data, err := json.Marshal(val)
	if err != nil {
		c.log.Info().Err(err).Msgf("serializing value for cache: %s", key)
		return
	}

	err = c.db.Set(key, &entry{Payload: data, CachedAt: time.Now().UTC()})
	if err != nil {
		c.log.Info().Err(err).Msgf("updating cache: %s", key)
	}
}

func (c *Client) Invalidate(key string) {
	err := c.db.Delete(key)
	if err != nil && !errors.Is(err, pudge.ErrKeyNotFound) {
		c.log.Info().Err(err).Msgf("invalidating cache: %s", key)
	}
}

func (c *Client) Stats() Statistics {
	requests := atomic.LoadInt32(c.requests)
	hits := atomic.LoadInt32(c.hits)

	return Statistics{
		TotalRequests: int(requests),
		TotalHits:     int(hits),
		TotalMisses:   int(requests - hits),
	}
}

func (c *Client) Close() error {
	return c.db.Close()
}

func New(path string, expiresAfter time.Duration, log zerolog.Logger) (*Client, error) {
	db, err := pudge.Open(path, &pudge.Config{SyncInterval: 1})
	if err != nil {
		return nil, err
	}

	return &Client{
		expiresAfter: expiresAfter,
		db:           db,
		log:          log,
		hits:         new(int32),
		requests:     new(int32),
	}, nil
}
