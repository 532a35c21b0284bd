package authclient

import (
	"sync"
)

// FlagStore remembers that a refresh cookie may exist
// It never holds the token itself, the cookie jar does
type FlagStore interface {
	Get() (bool, error)
	Set(v bool) error
}

type MemoryFlag struct {
	mu sync.Mutex
	v  bool
}

func (f *MemoryFlag) Get() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v, nil
}

func (f *MemoryFlag) Set(v bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.v = v
	return nil
}
