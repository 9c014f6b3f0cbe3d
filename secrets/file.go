package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	"markestedt/membrain/fileutil"
)

const (
	keySize   = 32
	nonceSize = 24
)

var hkdfInfo = []byte("membrain-secrets-v1")

// FileStore keeps secrets in one file sealed with NaCl secretbox. The key is
// derived with HKDF-SHA256 from a random seed stored next to it with
// owner-only permissions.
//
// File layout: [ 24-byte nonce ][ secretbox(JSON object) ]
type FileStore struct {
	mu       sync.Mutex
	path     string
	seedPath string
}

// NewFileStore creates a store at path. The seed lives at path + ".key".
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, seedPath: path + ".key"}
}

func (s *FileStore) Get(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return "", err
	}
	v, ok := m[name]
	if !ok || v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *FileStore) Put(name, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return s.Delete(name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	m[name] = value
	return s.save(m)
}

func (s *FileStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := m[name]; !ok {
		return nil
	}
	delete(m, name)
	return s.save(m)
}

func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}

	key, err := s.key()
	if err != nil {
		return nil, err
	}
	plain, err := open(data, key)
	if err != nil {
		return nil, err
	}

	m := map[string]string{}
	if err := json.Unmarshal(plain, &m); err != nil {
		return nil, fmt.Errorf("failed to decode secrets: %w", err)
	}
	return m, nil
}

func (s *FileStore) save(m map[string]string) error {
	plain, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode secrets: %w", err)
	}
	key, err := s.key()
	if err != nil {
		return err
	}
	sealed, err := seal(plain, key)
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(s.path, sealed, 0600)
}

// key loads the seed, creating it on first use, and derives the box key.
func (s *FileStore) key() (*[keySize]byte, error) {
	seed, err := os.ReadFile(s.seedPath)
	if errors.Is(err, fs.ErrNotExist) {
		seed = make([]byte, keySize)
		if _, err := io.ReadFull(rand.Reader, seed); err != nil {
			return nil, fmt.Errorf("seed generation: %w", err)
		}
		if err := fileutil.WriteFileAtomic(s.seedPath, seed, 0600); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read secret seed: %w", err)
	}

	h := hkdf.New(sha256.New, seed, nil, hkdfInfo)
	var key [keySize]byte
	if _, err := io.ReadFull(h, key[:]); err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	return &key, nil
}

func seal(plaintext []byte, key *[keySize]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

func open(ciphertext []byte, key *[keySize]byte) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("secrets file too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	plain, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("failed to decrypt secrets (seed changed?)")
	}
	return plain, nil
}
