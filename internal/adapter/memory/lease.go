// Package memory provides process-local implementations of the lease, task
// store and event log ports. They back single-replica deployments and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/port/lease"
)

// Leaser is a keyed mutex. Entries are dropped once no holder or waiter remains.
type Leaser struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{} // capacity 1; a value in the channel means held
	refs int
}

var _ lease.Leaser = (*Leaser)(nil)

// NewLeaser creates an empty Leaser.
func NewLeaser() *Leaser {
	return &Leaser{slots: make(map[string]*slot)}
}

// Acquire obtains the lease for key. Block waits until the holder releases
// or ctx ends; Reject fails at once with domain.ErrConflict.
func (l *Leaser) Acquire(ctx context.Context, key string, mode lease.Mode) (func(), error) {
	s := l.ref(key)

	if mode == lease.Reject {
		select {
		case s.ch <- struct{}{}:
		default:
			l.unref(key)
			return nil, fmt.Errorf("lease %s: %w: mutation already in progress", key, domain.ErrConflict)
		}
	} else {
		select {
		case s.ch <- struct{}{}:
		case <-ctx.Done():
			l.unref(key)
			return nil, fmt.Errorf("lease %s: %w", key, ctx.Err())
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(key)
		})
	}, nil
}

// Held reports whether key is currently leased.
func (l *Leaser) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	return ok && len(s.ch) == 1
}

func (l *Leaser) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Leaser) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
