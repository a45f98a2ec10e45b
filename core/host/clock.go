package host

import (
	"sync/atomic"
	"time"
)

// Clock supplies the current block height.
type Clock interface {
	Height() uint64
}

// ManualClock only moves when told to. Tests and single-operator deployments
// drive it explicitly.
type ManualClock struct {
	height atomic.Uint64
}

func NewManualClock(start uint64) *ManualClock {
	c := &ManualClock{}
	c.height.Store(start)
	return c
}

func (c *ManualClock) Height() uint64 { return c.height.Load() }

// Advance moves the clock forward by n blocks and returns the new height.
func (c *ManualClock) Advance(n uint64) uint64 { return c.height.Add(n) }

// Set jumps to height if it is ahead of the current one. Heights never move
// backwards.
func (c *ManualClock) Set(height uint64) bool {
	for {
		current := c.height.Load()
		if height <= current {
			return false
		}
		if c.height.CompareAndSwap(current, height) {
			return true
		}
	}
}

// WallClock derives the height from elapsed wall time since genesis.
type WallClock struct {
	Genesis   time.Time
	BlockTime time.Duration
	Now       func() time.Time
}

func (c WallClock) Height() uint64 {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if c.BlockTime <= 0 {
		return 0
	}
	elapsed := now().Sub(c.Genesis)
	if elapsed <= 0 {
		return 0
	}
	return uint64(elapsed / c.BlockTime)
}
