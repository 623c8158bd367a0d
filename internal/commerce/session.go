package commerce

import (
	"strings"
	"sync"
)

// SessionKey is the local storage key the remote session token is kept under.
const SessionKey = "woo-session"

// TokenStore holds the session token captured from responses.
type TokenStore interface {
	Token() string
	SetToken(string)
}

type LocalStorage interface {
	GetItem(key string) (string, bool)
	SetItem(key, value string) error
}

// LocalTokens keeps the token in a visitor's local storage.
type LocalTokens struct {
	storage LocalStorage
}

func NewLocalTokens(storage LocalStorage) *LocalTokens {
	return &LocalTokens{storage: storage}
}

func (t *LocalTokens) Token() string {
	v, _ := t.storage.GetItem(SessionKey)
	return v
}

// SetToken stores tok. Write failures are dropped; the next response carries the token again.
func (t *LocalTokens) SetToken(tok string) {
	tok = strings.TrimSpace(strings.TrimPrefix(tok, "Session "))
	if tok == "" || tok == t.Token() {
		return
	}
	_ = t.storage.SetItem(SessionKey, tok)
}

// MemoryTokens keeps the token for the lifetime of the value.
type MemoryTokens struct {
	mu  sync.Mutex
	tok string
}

func (t *MemoryTokens) Token() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tok
}

func (t *MemoryTokens) SetToken(tok string) {
	tok = strings.TrimSpace(strings.TrimPrefix(tok, "Session "))
	if tok == "" {
		return
	}
	t.mu.Lock()
	t.tok = tok
	t.mu.Unlock()
}
