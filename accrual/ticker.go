package accrual

import (
	"sync"
	"time"
)

// Ticker invokes a callback at a fixed interval to drive display refreshes.
// It performs no network I/O; the callback is expected to read trackers only.
// Stop is an explicit unsubscribe that halts the goroutine and releases the
// underlying timer, so teardown never relies on garbage collection.
type Ticker struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewTicker starts a ticker firing fn every interval.
func NewTicker(interval time.Duration, fn func(now time.Time)) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	t := &Ticker{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				fn(now)
			case <-t.stop:
				return
			}
		}
	}()
	return t
}

// Stop halts the ticker and waits for the worker goroutine to exit. It is
// safe to call more than once.
func (t *Ticker) Stop() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}
