package services

import "sync"

// KeyedMutex serializes work per key while allowing full parallelism
// across keys. The correlation, SLA and assignment services share one
// instance keyed by company ID so all per-tenant critical sections
// (find-existing-incident-or-create, breach handling, assignment)
// serialize on the same mutex.
type KeyedMutex struct {
	locks sync.Map // key → *sync.Mutex
}

// NewKeyedMutex creates a new keyed mutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock acquires the mutex for key, creating it on first use.
func (k *KeyedMutex) Lock(key uint) {
	m, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	m.(*sync.Mutex).Lock()
}

// Unlock releases the mutex for key.
func (k *KeyedMutex) Unlock(key uint) {
	m, ok := k.locks.Load(key)
	if !ok {
		return
	}
	m.(*sync.Mutex).Unlock()
}
