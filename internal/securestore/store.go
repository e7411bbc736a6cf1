// Package securestore is an encrypted key-value store on local disk. Each
// named store is one file sealed with XChaCha20-Poly1305 under a key derived
// from a passphrase with Argon2id.
package securestore

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Fixed store names.
const (
	ExpenseStore = "secure-expense-store"
	SessionStore = "secure-session-store"
)

var (
	// ErrNotFound is returned for a key that was never stored.
	ErrNotFound = errors.New("securestore: key not found")
	// ErrCorrupt is returned when a store file cannot be decrypted.
	ErrCorrupt = errors.New("securestore: cannot decrypt store")
)

const saltFile = "salt"

// Store holds the named stores under one directory.
type Store struct {
	dir  string
	aead cipher.AEAD
	mu   sync.Mutex
}

// Open prepares dir and derives the encryption key from passphrase. The salt
// is created on first use and kept next to the stores.
func Open(dir, passphrase string) (*Store, error) {
	if passphrase == "" {
		return nil, errors.New("securestore: empty passphrase")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	salt, err := loadSalt(filepath.Join(dir, saltFile))
	if err != nil {
		return nil, err
	}
	key := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Store{dir: dir, aead: aead}, nil
}

func loadSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil && len(salt) == 16 {
		return salt, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	salt = make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, err
	}
	return salt, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".enc")
}

// read decrypts a named store. A missing file is an empty store.
func (s *Store) read(name string) (map[string][]byte, error) {
	sealed, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return map[string][]byte{}, nil
	}
	if err != nil {
		return nil, err
	}
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, ErrCorrupt
	}
	// The store name is bound as additional data so files cannot be swapped.
	plain, err := s.aead.Open(nil, sealed[:n], sealed[n:], []byte(name))
	if err != nil {
		return nil, ErrCorrupt
	}
	entries := map[string][]byte{}
	if err := json.Unmarshal(plain, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return entries, nil
}

func (s *Store) write(name string, entries map[string][]byte) error {
	plain, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	sealed := s.aead.Seal(nonce, nonce, plain, []byte(name))

	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(name))
}

// Get returns the value stored under key in the named store.
func (s *Store) Get(name, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read(name)
	if err != nil {
		return nil, err
	}
	v, ok := entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Put stores value under key in the named store.
func (s *Store) Put(name, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read(name)
	if err != nil {
		return err
	}
	entries[key] = value
	return s.write(name, entries)
}

// Delete removes key from the named store. Missing keys are ignored.
func (s *Store) Delete(name, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read(name)
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return s.write(name, entries)
}
