// Package store persists created accounts to an append-only JSONL file.
// One account per line keeps writes cheap and makes the file trivially
// recoverable: a torn final line is dropped on load instead of poisoning
// the whole store.
package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/xkilldash9x/accountsmith/api/schemas"
	"go.uber.org/zap"
)

// Store is a mutex-guarded JSONL account file.
type Store struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

// New resolves the store path (expanding a leading ~) and ensures its parent
// directory exists. The file itself is created lazily on first append.
func New(path string, logger *zap.Logger) (*Store, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand store path %q: %w", path, err)
	}

	if dir := filepath.Dir(expanded); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory %q: %w", dir, err)
		}
	}

	return &Store{
		path: expanded,
		log:  logger.Named("store"),
	}, nil
}

// Path returns the resolved on-disk location of the account file.
func (s *Store) Path() string {
	return s.path
}

// Append writes one account as a single JSON line. The file is opened,
// written, and closed per call so a crash never loses more than the line in
// flight.
func (s *Store) Append(account schemas.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open account store: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append account: %w", err)
	}

	s.log.Debug("Persisted account", zap.String("email", account.Email))
	return nil
}

// List reads every account currently persisted. A missing file is an empty
// store, not an error. Malformed lines are skipped with a warning.
func (s *Store) List() ([]schemas.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []schemas.Account{}, nil
		}
		return nil, fmt.Errorf("failed to open account store: %w", err)
	}
	defer f.Close()

	accounts := []schemas.Account{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var acct schemas.Account
		if err := json.Unmarshal([]byte(line), &acct); err != nil {
			s.log.Warn("Skipping malformed account line", zap.Error(err))
			continue
		}
		accounts = append(accounts, acct)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read account store: %w", err)
	}
	return accounts, nil
}

// Raw returns the file's contents verbatim for download. A missing file
// yields an empty string.
func (s *Store) Raw() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read account store: %w", err)
	}
	return string(data), nil
}

// Clear removes the account file entirely. Clearing an already empty store
// is a no-op.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear account store: %w", err)
	}
	s.log.Info("Account store cleared", zap.String("path", s.path))
	return nil
}
