// Package users keeps the in-memory account list. Records are keyed by the
// lowercased, trimmed user name.
package users

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"
)

var ErrEmptyName = errors.New("user name is empty")

type Record struct {
	Name     string
	Password string
	Control  bool
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	users map[string]Record
}

func NewStore() *Store {
	return &Store{users: make(map[string]Record)}
}

// Key normalizes a user name for lookup.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// HashPassword returns the hex MD5 digest clients send instead of the
// plain password.
func HashPassword(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Add inserts or replaces a user and returns its key.
func (s *Store) Add(name, password string, control bool) (string, error) {
	key := Key(name)
	if key == "" {
		return "", ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[key] = Record{Name: strings.TrimSpace(name), Password: password, Control: control}
	return key, nil
}

// Remove deletes a user. It reports whether a record existed.
func (s *Store) Remove(name string) (string, bool) {
	key := Key(name)
	if key == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[key]
	delete(s.users, key)
	return key, ok
}

func (s *Store) Get(key string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.users[key]
	return r, ok
}

// Keys lists user keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.users))
	for k := range s.users {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Verify checks a wire password hash against the stored password. Unknown
// users and mismatches are indistinguishable to the caller.
func (s *Store) Verify(key, hash string) (Record, bool) {
	r, ok := s.Get(key)
	if !ok {
		return Record{}, false
	}
	want := HashPassword(r.Password)
	if subtle.ConstantTimeCompare([]byte(want), []byte(hash)) != 1 {
		return Record{}, false
	}
	return r, true
}
