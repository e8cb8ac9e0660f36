package callflow

import "sync"

// callLocks serializes turns per call. Entries are reference counted and
// removed once no turn holds or waits for them, so the map only grows with
// the number of calls that are mid-turn.
type callLocks struct {
	mu    sync.Mutex
	locks map[string]*callLock
}

type callLock struct {
	mu   sync.Mutex
	refs int
}

func newCallLocks() *callLocks {
	return &callLocks{locks: make(map[string]*callLock)}
}

// lock blocks until the caller owns callID and returns the unlock func.
func (l *callLocks) lock(callID string) func() {
	l.mu.Lock()
	cl, ok := l.locks[callID]
	if !ok {
		cl = &callLock{}
		l.locks[callID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()

	return func() {
		cl.mu.Unlock()

		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, callID)
		}
		l.mu.Unlock()
	}
}

func (l *callLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
