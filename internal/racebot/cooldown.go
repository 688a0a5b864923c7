package racebot

import (
	"fmt"
	"sync"
	"time"

	"github.com/equinox-racing/racebot/internal/cache"
)

// CooldownTable remembers when each race was last advanced successfully.
// It lives only as long as the process. Room is made only by dropping
// entries whose cooldown window has passed, so a race still cooling down is
// never forgotten: when every cached entry is live the table holds the extra
// races in overflow until their window ends.
type CooldownTable struct {
	mtx      sync.Mutex
	cache    cache.Cache
	capacity int
	window   time.Duration
	overflow map[uint64]time.Time
}

func NewCooldownTable(capacity int, window time.Duration) (*CooldownTable, error) {
	c, err := cache.NewLRU(capacity)
	if err != nil {
		return nil, fmt.Errorf("cooldown table: %w", err)
	}

	return &CooldownTable{
		cache:    c,
		capacity: capacity,
		window:   window,
		overflow: make(map[uint64]time.Time),
	}, nil
}

// LastAdvance returns the time of the last confirmed advance of raceID.
func (t *CooldownTable) LastAdvance(raceID uint64) (time.Time, bool) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if v, ok := t.cache.Get(raceID); ok {
		at, ok := v.(time.Time)
		return at, ok
	}

	at, ok := t.overflow[raceID]
	return at, ok
}

// Record stores at as the last advance of raceID. Last write wins.
func (t *CooldownTable) Record(raceID uint64, at time.Time) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if _, ok := t.cache.Peek(raceID); !ok && t.cache.Len() >= t.capacity {
		t.expire(at)
	}

	if _, ok := t.cache.Peek(raceID); ok || t.cache.Len() < t.capacity {
		t.cache.Add(raceID, at)
		delete(t.overflow, raceID)
		return
	}

	t.overflow[raceID] = at
}

// expire drops entries whose window ended before now and moves live
// overflow entries into the freed room.
func (t *CooldownTable) expire(now time.Time) {
	for _, key := range t.cache.Keys() {
		v, ok := t.cache.Peek(key)
		if !ok {
			continue
		}
		if at, ok := v.(time.Time); !ok || now.Sub(at) >= t.window {
			t.cache.Delete(key)
		}
	}

	for raceID, at := range t.overflow {
		switch {
		case now.Sub(at) >= t.window:
			delete(t.overflow, raceID)
		case t.cache.Len() < t.capacity:
			t.cache.Add(raceID, at)
			delete(t.overflow, raceID)
		}
	}
}

func (t *CooldownTable) Len() int {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	return t.cache.Len() + len(t.overflow)
}
