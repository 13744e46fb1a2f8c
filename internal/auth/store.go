package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Account pairs a record with its email key.
type Account struct {
	Email string
	UserRecord
}

// UserStore persists credential records keyed by normalized email.
type UserStore interface {
	Find(ctx context.Context, email string) (UserRecord, error)
	// Create fails with ErrUserExists when email is already present.
	Create(ctx context.Context, email string, rec UserRecord) error
	// Update applies fn to the stored record and persists the result unless fn fails.
	Update(ctx context.Context, email string, fn func(*UserRecord) error) (UserRecord, error)
	// List returns all accounts ordered by email.
	List(ctx context.Context) ([]Account, error)
	Count(ctx context.Context) (int, error)
}

// SetupNotices is implemented by stores that keep the first-run credential notice.
type SetupNotices interface {
	WriteSetupNotice(email, password string) error
	SetupNotice() (string, bool, error)
	RemoveSetupNotice() error
}

// MaxEmailLength is the longest address accepted, per RFC 5321.
const MaxEmailLength = 254

// NormalizeEmail is the key form used by every store.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FileStore keeps every record in one JSON document, <dir>/<facility>_users.json.
// Writes replace the whole file. The mutex serializes read-modify-write within one
// process; separate processes sharing the file are last-write-wins.
type FileStore struct {
	path       string
	noticePath string

	mu sync.Mutex
}

var (
	_ UserStore    = (*FileStore)(nil)
	_ SetupNotices = (*FileStore)(nil)
)

// NewFileStore returns a store for facilityID under dir. Nothing is read until first use.
func NewFileStore(dir, facilityID string) *FileStore {
	return &FileStore{
		path:       filepath.Join(dir, facilityID+"_users.json"),
		noticePath: filepath.Join(dir, facilityID+"_setup.txt"),
	}
}

// Path returns the credential file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Find(_ context.Context, email string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.load()
	if err != nil {
		return UserRecord{}, err
	}
	rec, ok := users[NormalizeEmail(email)]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *FileStore) Create(_ context.Context, email string, rec UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.load()
	if err != nil {
		return err
	}
	key := NormalizeEmail(email)
	if _, ok := users[key]; ok {
		return ErrUserExists
	}
	users[key] = rec
	return s.save(users)
}

func (s *FileStore) Update(_ context.Context, email string, fn func(*UserRecord) error) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.load()
	if err != nil {
		return UserRecord{}, err
	}
	key := NormalizeEmail(email)
	rec, ok := users[key]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	if err := fn(&rec); err != nil {
		return UserRecord{}, err
	}
	users[key] = rec
	if err := s.save(users); err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

func (s *FileStore) List(_ context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(users))
	for email, rec := range users {
		out = append(out, Account{Email: email, UserRecord: rec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *FileStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.load()
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

func (s *FileStore) load() (map[string]UserRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]UserRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: read users: %w", err)
	}
	users := map[string]UserRecord{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return users, nil
	}
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("auth: decode %s: %w", s.path, err)
	}
	return users, nil
}

func (s *FileStore) save(users map[string]UserRecord) error {
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data, 0o600)
}

// WriteSetupNotice records the generated first-run admin credentials.
func (s *FileStore) WriteSetupNotice(email, password string) error {
	text := "Initial Admin Credentials:\n" +
		"Email: " + email + "\n" +
		"Password: " + password + "\n" +
		"Please change this password immediately after first login.\n" +
		"This file will be deleted after first successful login."
	return writeFileAtomic(s.noticePath, []byte(text), 0o600)
}

// SetupNotice returns the notice contents and whether it still exists.
func (s *FileStore) SetupNotice() (string, bool, error) {
	data, err := os.ReadFile(s.noticePath)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// RemoveSetupNotice deletes the notice; a missing notice is not an error.
func (s *FileStore) RemoveSetupNotice() error {
	if err := os.Remove(s.noticePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
