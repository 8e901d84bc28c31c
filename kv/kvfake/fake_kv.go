package kvfake

import (
	"sync"

	"github.com/jrsteele09/korebog/kv"
)

var _ kv.Store = (*FakeStore)(nil)

// FakeStore is an in-memory kv.Store with error injection.
type FakeStore struct {
	values map[string]string
	lock   sync.RWMutex

	GetErr    error
	SetErr    error
	RemoveErr error
	Sets      int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{values: make(map[string]string)}
}

func (s *FakeStore) Get(key string) (string, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.GetErr != nil {
		return "", false, s.GetErr
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *FakeStore) Set(key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.SetErr != nil {
		return s.SetErr
	}
	s.Sets++
	s.values[key] = value
	return nil
}

func (s *FakeStore) Remove(key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.RemoveErr != nil {
		return s.RemoveErr
	}
	delete(s.values, key)
	return nil
}

// Raw returns the stored value without error injection.
func (s *FakeStore) Raw(key string) (string, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Put stores a value without error injection.
func (s *FakeStore) Put(key, value string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.values[key] = value
}
