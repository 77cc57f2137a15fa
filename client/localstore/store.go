// Package localstore persists small per-session state between runs: the
// admin credential, per-project expiry choices, layout and theme preferences
// and the upload draft. Every key sits under one namespace so a session can
// be wiped in bulk.
package localstore

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	commonlog "signoff/server/common/log"
)

const Namespace = "signoff_"

const (
	KeyAdminToken       = Namespace + "admin_token"
	KeyTheme            = Namespace + "theme"
	KeySidebarCollapsed = Namespace + "sidebar_collapsed"
	KeyUploadDraft      = Namespace + "upload_draft_file"

	durationKeyPrefix = Namespace + "duration_"
)

type Store struct {
	dir string
}

func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) Set(key, value string) error {
	return os.WriteFile(s.path(key), []byte(value), 0o600)
}

func (s *Store) Get(key string) (string, bool) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func (s *Store) Remove(key string) {
	_ = os.Remove(s.path(key))
}

// ClearSession removes every namespaced key in one sweep.
func (s *Store) ClearSession() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), Namespace) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			commonlog.Warnf("event=localstore action=clear_session key=%s error=%v", e.Name(), err)
		}
	}
	return nil
}

func (s *Store) AdminToken() (string, bool) {
	return s.Get(KeyAdminToken)
}

func (s *Store) SetAdminToken(token string) error {
	return s.Set(KeyAdminToken, token)
}

func (s *Store) Theme() (string, bool) {
	return s.Get(KeyTheme)
}

func (s *Store) SetTheme(theme string) error {
	return s.Set(KeyTheme, theme)
}

func (s *Store) SidebarCollapsed() bool {
	v, ok := s.Get(KeySidebarCollapsed)
	if !ok {
		return true
	}
	collapsed, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return collapsed
}

func (s *Store) SetSidebarCollapsed(collapsed bool) error {
	return s.Set(KeySidebarCollapsed, strconv.FormatBool(collapsed))
}

// ExpiryDays returns the expiry duration last chosen for this project token.
func (s *Store) ExpiryDays(token string) (int, bool) {
	v, ok := s.Get(durationKeyPrefix + token)
	if !ok {
		return 0, false
	}
	days, err := strconv.Atoi(v)
	if err != nil || days <= 0 {
		return 0, false
	}
	return days, true
}

func (s *Store) SetExpiryDays(token string, days int) error {
	return s.Set(durationKeyPrefix+token, strconv.Itoa(days))
}

func (s *Store) RemoveExpiryDays(token string) {
	s.Remove(durationKeyPrefix + token)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, sanitize(key))
}

// Keys become file names; anything outside a safe charset is flattened.
func sanitize(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
