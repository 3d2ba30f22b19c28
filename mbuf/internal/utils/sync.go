package utils

import (
	"sync"
)

// OptionalMutex is a sync.Mutex that only locks when UseMutex is set. Pools are driven by a single
// owner by default and leave it off.
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}
