package session

import (
	"errors"
	"path/filepath"

	"github.com/starford/vaultlinks/internal/apperr"
	"github.com/starford/vaultlinks/internal/localstore"
)

// TokenKey is the local storage key holding the session token.
const TokenKey = "session_token"

// TokenStore persists the session token between runs.
type TokenStore interface {
	// Token returns the stored token, or "" when none is stored.
	Token() (string, error)
	SetToken(token string) error
	ClearToken() error
}

// FileTokenStore keeps the token in a localstore directory.
type FileTokenStore struct {
	fs *localstore.FS
}

// NewFileTokenStore wraps fs.
func NewFileTokenStore(fs *localstore.FS) *FileTokenStore {
	return &FileTokenStore{fs: fs}
}

// Token implements TokenStore.
func (s *FileTokenStore) Token() (string, error) {
	tok, err := s.fs.Get(TokenKey)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil
	}
	return tok, err
}

// SetToken implements TokenStore.
func (s *FileTokenStore) SetToken(token string) error {
	return s.fs.Set(TokenKey, token)
}

// ClearToken implements TokenStore.
func (s *FileTokenStore) ClearToken() error {
	return s.fs.Remove(TokenKey)
}

// Path is the file backing the token.
func (s *FileTokenStore) Path() string {
	return filepath.Join(s.fs.Root(), TokenKey)
}
