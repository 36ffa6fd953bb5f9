// Package accountlock provides a mutex arena keyed by account number.
// Requests for different accounts proceed in parallel; requests for the
// same account serialize on a shared mutex.
package accountlock

import "sync"

type Arena struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New() *Arena {
	return &Arena{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for the given account, creating it on first use.
// Mutexes are never evicted; the arena is bounded by the number of accounts.
func (a *Arena) Lock(accountNumber string) {
	a.get(accountNumber).Lock()
}

func (a *Arena) Unlock(accountNumber string) {
	a.get(accountNumber).Unlock()
}

func (a *Arena) get(accountNumber string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.locks[accountNumber]
	if !ok {
		l = &sync.Mutex{}
		a.locks[accountNumber] = l
	}
	return l
}
