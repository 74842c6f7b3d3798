package kafkaconsumer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// seqDedupe remembers the highest sequence applied per tile.
type seqDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func newSeqDedupe(size int) *seqDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, uint64](size)
	return &seqDedupe{lru: c}
}

// returns true if seq is greater than the last one applied for key
func (d *seqDedupe) fresh(key string, seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(key)
	return !ok || seq > last
}

// records seq as applied for key; lower sequences never overwrite higher ones
func (d *seqDedupe) mark(key string, seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && seq <= last {
		return
	}
	d.lru.Add(key, seq)
}
