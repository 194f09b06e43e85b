package relay

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

type roomLock struct {
	mu   sync.Mutex
	refs int
}

// roomLocks hands out one mutex per room name. Entries live only while some
// goroutine holds or waits on them.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

// lock acquires the locks for every non-empty name in sorted order and
// returns the function that releases them.
func (l *roomLocks) lock(names ...string) func() {
	names = lo.Uniq(lo.Compact(names))
	slices.Sort(names)

	held := make([]*roomLock, 0, len(names))
	for _, name := range names {
		l.mu.Lock()
		rl, ok := l.locks[name]
		if !ok {
			rl = &roomLock{}
			l.locks[name] = rl
		}
		rl.refs++
		l.mu.Unlock()

		rl.mu.Lock()
		held = append(held, rl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()

			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, names[i])
			}
			l.mu.Unlock()
		}
	}
}

// size returns the number of live lock entries.
func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
