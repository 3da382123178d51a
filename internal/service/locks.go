package service

import "sync"

type recipientLock struct {
	sync.Mutex
	waiters int
}

// recipientLocks hands out one mutex per key and forgets it once nobody holds or waits on it.
type recipientLocks struct {
	mu    sync.Mutex
	locks map[string]*recipientLock
}

func (r *recipientLocks) lock(key string) (unlock func()) {
	r.mu.Lock()
	if r.locks == nil {
		r.locks = make(map[string]*recipientLock)
	}
	l, ok := r.locks[key]
	if !ok {
		l = &recipientLock{}
		r.locks[key] = l
	}
	l.waiters++
	r.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		r.mu.Lock()
		l.waiters--
		if l.waiters == 0 {
			delete(r.locks, key)
		}
		r.mu.Unlock()
	}
}

func (r *recipientLocks) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
