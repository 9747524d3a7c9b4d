package deploy

import (
	"context"
	"sort"
	"sync"
)

// LockTable serializes deployments that share a router. Locks for a set of
// routers are always taken in sorted name order, so two deployments can
// never hold each other's routers.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]chan struct{})}
}

func (t *LockTable) lockFor(name string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[name] = ch
	}
	return ch
}

// Acquire blocks until every named router is held or ctx is done. The
// returned function releases all of them.
func (t *LockTable) Acquire(ctx context.Context, names []string) (func(), error) {
	sorted := uniqueSorted(names)
	held := make([]chan struct{}, 0, len(sorted))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, name := range sorted {
		ch := t.lockFor(name)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// TryAcquire is Acquire without blocking. It reports false when any router
// is already held.
func (t *LockTable) TryAcquire(names []string) (func(), bool) {
	sorted := uniqueSorted(names)
	held := make([]chan struct{}, 0, len(sorted))
	for _, name := range sorted {
		ch := t.lockFor(name)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		default:
			for i := len(held) - 1; i >= 0; i-- {
				<-held[i]
			}
			return nil, false
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				<-held[i]
			}
		})
	}, true
}

func uniqueSorted(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
