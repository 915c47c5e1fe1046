// Package testutil provides testing utilities for the performance layer.
package testutil

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/plannerhq/perflayer/pkg/kvstore"
)

// FakeStore is an in-memory kvstore.Store for unit tests.
//
// It supports failure injection (to exercise degrade-to-miss and
// fail-open paths) and a controllable clock so TTL and window expiry can
// be tested without sleeping.
type FakeStore struct {
	mu      sync.Mutex
	data    map[string]fakeEntry
	now     time.Time
	failing bool

	// Call counters for assertions.
	GetCalls    int
	SetCalls    int
	IncrByCalls int
}

type fakeEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewFakeStore creates an empty fake store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		data: make(map[string]fakeEntry),
		now:  time.Now(),
	}
}

// Fail makes every subsequent operation return kvstore.ErrUnavailable.
func (s *FakeStore) Fail(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// Advance moves the fake clock forward, expiring entries whose TTL has
// elapsed.
func (s *FakeStore) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

// Len returns the number of live entries.
func (s *FakeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.data {
		if !s.expired(e) {
			n++
		}
	}
	return n
}

func (s *FakeStore) expired(e fakeEntry) bool {
	return !e.expiresAt.IsZero() && s.now.After(e.expiresAt)
}

// Get implements kvstore.Store.
func (s *FakeStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalls++
	if s.failing {
		return nil, kvstore.ErrUnavailable
	}
	e, ok := s.data[key]
	if !ok || s.expired(e) {
		return nil, kvstore.ErrNotFound
	}
	return e.value, nil
}

// Set implements kvstore.Store.
func (s *FakeStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetCalls++
	if s.failing {
		return kvstore.ErrUnavailable
	}
	e := fakeEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now.Add(ttl)
	}
	s.data[key] = e
	return nil
}

// Delete implements kvstore.Store.
func (s *FakeStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return kvstore.ErrUnavailable
	}
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

// IncrBy implements kvstore.Store.
func (s *FakeStore) IncrBy(_ context.Context, key string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IncrByCalls++
	if s.failing {
		return 0, kvstore.ErrUnavailable
	}
	var current int64
	if e, ok := s.data[key]; ok && !s.expired(e) {
		n, err := strconv.ParseInt(string(e.value), 10, 64)
		if err == nil {
			current = n
		}
	}
	current += amount
	prev := s.data[key]
	s.data[key] = fakeEntry{
		value:     []byte(strconv.FormatInt(current, 10)),
		expiresAt: prev.expiresAt,
	}
	return current, nil
}

// Expire implements kvstore.Store.
func (s *FakeStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return kvstore.ErrUnavailable
	}
	if e, ok := s.data[key]; ok {
		e.expiresAt = s.now.Add(ttl)
		s.data[key] = e
	}
	return nil
}

// Keys implements kvstore.Store using glob-style matching.
func (s *FakeStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, kvstore.ErrUnavailable
	}
	var keys []string
	for k, e := range s.data {
		if s.expired(e) {
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Exists implements kvstore.Store.
func (s *FakeStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return false, kvstore.ErrUnavailable
	}
	e, ok := s.data[key]
	return ok && !s.expired(e), nil
}

// Ping implements kvstore.Store.
func (s *FakeStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return kvstore.ErrUnavailable
	}
	return nil
}

// Close implements kvstore.Store.
func (s *FakeStore) Close() error { return nil }
