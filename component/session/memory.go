package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBackend keeps sessions in process memory. All sessions are lost when
// the process ends, and they are not shared between replicas.
type MemoryBackend struct {
	sync.Mutex
	m   map[string]*record
	now func() time.Time
}

type record struct {
	Data    []byte
	Expires *time.Time
}

func (r *record) expired(now time.Time) bool {
	return r.Expires != nil && now.After(*r.Expires)
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		m:   make(map[string]*record),
		now: time.Now,
	}
}

func (s *MemoryBackend) Load(_ context.Context, id string) ([]byte, error) {
	s.Lock()
	defer s.Unlock()

	r, ok := s.m[id]
	if !ok || r.expired(s.now()) {
		return nil, &notFoundError{fmt.Errorf("session %s not found", id)}
	}
	return r.Data, nil
}

func (s *MemoryBackend) Save(_ context.Context, id string, data []byte, ttl time.Duration) error {
	s.Lock()
	defer s.Unlock()

	r := &record{Data: append([]byte(nil), data...)}
	if ttl > 0 {
		exp := s.now().Add(ttl)
		r.Expires = &exp
	}
	s.m[id] = r
	return nil
}

func (s *MemoryBackend) Delete(_ context.Context, id string) error {
	s.Lock()
	defer s.Unlock()

	delete(s.m, id)
	return nil
}

// GarbageCollect drops expired sessions, returning how many were removed.
func (s *MemoryBackend) GarbageCollect() int {
	s.Lock()
	defer s.Unlock()

	now := s.now()
	var n int
	for id, r := range s.m {
		if r.expired(now) {
			delete(s.m, id)
			n++
		}
	}
	return n
}

func (s *MemoryBackend) Close() error {
	return nil
}
