package savedhosts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
	"pkt.systems/kryptograf"
	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"
	"pkt.systems/sshdesk/schema"
)

const (
	descriptorName = "sshdesk:savedhosts"
	fileVersion    = 1
)

type fileState struct {
	Version int                `json:"version"`
	Hosts   []schema.HostEntry `json:"hosts"`
}

// Store keeps saved connection triples in a file sealed with kryptograf.
// Readers and writers across processes are serialized with flock.
type Store struct {
	path         string
	keyStorePath string
	log          pslog.Logger
	mu           sync.Mutex
}

// NewStore opens the store at path, creating the key store if needed.
func NewStore(path, keyStorePath string) (*Store, error) {
	return NewStoreWithLogger(path, keyStorePath, nil)
}

// NewStoreWithLogger opens the store with logging.
func NewStoreWithLogger(path, keyStorePath string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("saved hosts path is required")
	}
	if strings.TrimSpace(keyStorePath) == "" {
		return nil, errors.New("saved hosts key store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := ensureKeyStore(keyStorePath); err != nil {
		if logger != nil {
			logger.Warn("saved hosts key store ensure failed", "err", err)
		}
		return nil, err
	}
	if logger != nil {
		logger = logger.With("saved_hosts", path)
	}
	return &Store{path: path, keyStorePath: keyStorePath, log: logger}, nil
}

// List returns the saved entries in insertion order.
func (s *Store) List() ([]schema.HostEntry, error) {
	var out []schema.HostEntry
	err := s.withLock(unix.LOCK_SH, func() error {
		state, err := s.load()
		if err != nil {
			return err
		}
		out = state.Hosts
		return nil
	})
	if err != nil {
		if s.log != nil {
			s.log.Warn("saved hosts list failed", "err", err)
		}
		return nil, err
	}
	return out, nil
}

// Contains reports whether an identical triple is saved.
func (s *Store) Contains(entry schema.HostEntry) (bool, error) {
	entries, err := s.List()
	if err != nil {
		return false, err
	}
	return indexOf(entries, normalizeEntry(entry)) >= 0, nil
}

// Add saves entry. An identical triple yields schema.ErrDuplicateEntry.
func (s *Store) Add(entry schema.HostEntry) error {
	entry = normalizeEntry(entry)
	if entry.Host == "" || entry.Username == "" {
		return fmt.Errorf("%w: host and username are required", schema.ErrInvalidRequest)
	}
	err := s.withLock(unix.LOCK_EX, func() error {
		state, err := s.load()
		if err != nil {
			return err
		}
		if indexOf(state.Hosts, entry) >= 0 {
			return schema.ErrDuplicateEntry
		}
		state.Hosts = append(state.Hosts, entry)
		return s.save(state)
	})
	if err != nil {
		if s.log != nil && !errors.Is(err, schema.ErrDuplicateEntry) {
			s.log.Warn("saved hosts add failed", "host", entry.Host, "user", entry.Username, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("saved hosts add ok", "host", entry.Host, "user", entry.Username)
	}
	return nil
}

// Remove deletes the identical triple or returns schema.ErrEntryNotFound.
func (s *Store) Remove(entry schema.HostEntry) error {
	entry = normalizeEntry(entry)
	err := s.withLock(unix.LOCK_EX, func() error {
		state, err := s.load()
		if err != nil {
			return err
		}
		idx := indexOf(state.Hosts, entry)
		if idx < 0 {
			return schema.ErrEntryNotFound
		}
		state.Hosts = append(state.Hosts[:idx], state.Hosts[idx+1:]...)
		return s.save(state)
	})
	if err != nil {
		if s.log != nil && !errors.Is(err, schema.ErrEntryNotFound) {
			s.log.Warn("saved hosts remove failed", "host", entry.Host, "user", entry.Username, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("saved hosts remove ok", "host", entry.Host, "user", entry.Username)
	}
	return nil
}

// normalizeEntry trims host and username. The secret is kept verbatim.
func normalizeEntry(entry schema.HostEntry) schema.HostEntry {
	entry.Host = strings.TrimSpace(entry.Host)
	entry.Username = strings.TrimSpace(entry.Username)
	return entry
}

func indexOf(entries []schema.HostEntry, entry schema.HostEntry) int {
	for i, e := range entries {
		if e.Equal(entry) {
			return i
		}
	}
	return -1
}

func (s *Store) withLock(how int, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Close() }()
	if err := unix.Flock(int(lock.Fd()), how); err != nil {
		return fmt.Errorf("lock saved hosts: %w", err)
	}
	defer func() { _ = unix.Flock(int(lock.Fd()), unix.LOCK_UN) }()
	return fn()
}

func (s *Store) load() (fileState, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileState{Version: fileVersion}, nil
		}
		return fileState{}, err
	}
	defer func() { _ = file.Close() }()
	material, root, err := s.material()
	if err != nil {
		return fileState{}, err
	}
	reader, err := kryptograf.New(root).DecryptReader(file, material)
	if err != nil {
		return fileState{}, fmt.Errorf("decrypt saved hosts: %w", err)
	}
	defer func() { _ = reader.Close() }()
	plain, err := io.ReadAll(reader)
	if err != nil {
		return fileState{}, fmt.Errorf("decrypt saved hosts: %w", err)
	}
	var state fileState
	if err := json.Unmarshal(plain, &state); err != nil {
		return fileState{}, fmt.Errorf("decode saved hosts: %w", err)
	}
	if state.Version != fileVersion {
		return fileState{}, fmt.Errorf("unsupported saved hosts version %d", state.Version)
	}
	return state, nil
}

func (s *Store) save(state fileState) error {
	state.Version = fileVersion
	if state.Hosts == nil {
		state.Hosts = []schema.HostEntry{}
	}
	plain, err := json.Marshal(state)
	if err != nil {
		return err
	}
	material, root, err := s.material()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "hosts-*.enc")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	writer, err := kryptograf.New(root).EncryptWriter(tmp, material)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if _, err := io.Copy(writer, bytes.NewReader(plain)); err != nil {
		_ = writer.Close()
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := writer.Close(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	_ = tmp.Close()
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *Store) material() (keymgmt.Material, keymgmt.RootKey, error) {
	store, err := keymgmt.LoadProto(s.keyStorePath)
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	root, err := store.EnsureRootKey()
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	material, err := store.EnsureDescriptor(descriptorName, root, []byte(descriptorName))
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	if err := store.Commit(); err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	return material, root, nil
}

func ensureKeyStore(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	store, err := keymgmt.LoadProto(path)
	if err != nil {
		return err
	}
	if _, err := store.EnsureRootKey(); err != nil {
		return err
	}
	return store.Commit()
}
