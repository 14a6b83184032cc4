// Package syncpoller keeps a local copy of one connection in step with the
// server by polling. The server is authoritative: a fetched record replaces the
// local copy only when its updated_at differs.
package syncpoller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

const DefaultInterval = 5 * time.Second

// Snapshot is one authoritative read of a connection.
type Snapshot struct {
	UpdatedAt time.Time
	// Raw is the record as the server returned it.
	Raw json.RawMessage
}

type Fetcher interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// VersionChecker returns only updated_at so an unchanged record costs no full fetch.
type VersionChecker interface {
	Version(ctx context.Context) (time.Time, error)
}

type Options struct {
	Interval time.Duration
	// Versions is optional.
	Versions VersionChecker
	OnChange func(prev, next *Snapshot)
	// OnError sees transient failures; the poller retries on the next tick.
	OnError func(err error)
}

type Poller struct {
	fetcher Fetcher
	opts    Options

	mu      sync.RWMutex
	current *Snapshot
}

func New(fetcher Fetcher, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Poller{fetcher: fetcher, opts: opts}
}

// Current returns the local copy, nil before the first successful fetch.
func (p *Poller) Current() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Run polls immediately and then every Interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if p.opts.OnError != nil {
				p.opts.OnError(err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll runs one dirty-check and reports whether the local copy was replaced.
func (p *Poller) Poll(ctx context.Context) (bool, error) {
	prev := p.Current()

	if prev != nil && p.opts.Versions != nil {
		v, err := p.opts.Versions.Version(ctx)
		if err == nil && v.Equal(prev.UpdatedAt) {
			return false, nil
		}
		// a failed version check falls through to a full fetch
	}

	next, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return false, err
	}
	if next == nil {
		return false, errors.New("syncpoller: fetcher returned no snapshot")
	}
	if prev != nil && next.UpdatedAt.Equal(prev.UpdatedAt) {
		return false, nil
	}

	p.mu.Lock()
	p.current = next
	p.mu.Unlock()

	if p.opts.OnChange != nil {
		p.opts.OnChange(prev, next)
	}
	return true, nil
}
