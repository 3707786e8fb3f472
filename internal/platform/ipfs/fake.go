package ipfs

import (
	"context"
	"sync"
)

// FakePinner is an in-memory Pinner for development mode and tests.
type FakePinner struct {
	mu     sync.Mutex
	pinned map[string]bool
	// PinErr, when set, is returned from every Pin call.
	PinErr error
}

// NewFakePinner creates an empty fake.
func NewFakePinner() *FakePinner {
	return &FakePinner{pinned: make(map[string]bool)}
}

func (f *FakePinner) Pin(_ context.Context, cid string) error {
	if err := validateCID(cid); err != nil {
		return err
	}
	if f.PinErr != nil {
		return f.PinErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned[cid] = true
	return nil
}

func (f *FakePinner) Stat(_ context.Context, cid string) (*Stat, error) {
	if err := validateCID(cid); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.pinned[cid] {
		return nil, ErrNotFound
	}
	return &Stat{CID: cid, Size: 1}, nil
}

// Pinned reports whether the CID was pinned.
func (f *FakePinner) Pinned(cid string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pinned[cid]
}
