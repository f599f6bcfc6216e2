// Package keylock provides exclusive sections addressed by string keys, so
// that work on one bucket or upload never waits on another.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Locks is a registry of per-key locks. Entries exist only while some
// goroutine holds or waits for them. The zero value is ready to use.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty lock registry.
func New() *Locks {
	return &Locks{}
}

// Lock blocks until the section for key is free or ctx is done. On success
// the returned function releases the section and must be called exactly once.
func (l *Locks) Lock(ctx context.Context, key string) (func(), error) {
	e := l.acquireEntry(key)

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.releaseEntry(key)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.releaseEntry(key)
		})
	}, nil
}

// Held returns the number of keys currently held or waited on.
func (l *Locks) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Locks) acquireEntry(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.entries == nil {
		l.entries = make(map[string]*entry)
	}

	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Locks) releaseEntry(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// BucketKey is the lock key for a bucket.
func BucketKey(bucket string) string {
	return "bucket:" + bucket
}

// UploadKey is the lock key for a multipart upload.
func UploadKey(uploadID string) string {
	return "upload:" + uploadID
}
