package localstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSetGetRemove(t *testing.T) {
	s := openStore(t)

	_, ok := s.Get(KeyAdminToken)
	assert.False(t, ok)

	require.NoError(t, s.Set(KeyAdminToken, "tok"))
	v, ok := s.Get(KeyAdminToken)
	require.True(t, ok)
	assert.Equal(t, "tok", v)

	s.Remove(KeyAdminToken)
	_, ok = s.Get(KeyAdminToken)
	assert.False(t, ok)
}

func TestClearSessionRemovesOnlyNamespacedKeys(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.SetAdminToken("tok"))
	require.NoError(t, s.SetTheme("dark"))
	require.NoError(t, s.SetExpiryDays("tok", 7))

	// A foreign file in the same directory must survive the sweep.
	foreign := filepath.Join(s.Dir(), "unrelated.txt")
	require.NoError(t, os.WriteFile(foreign, []byte("keep"), 0o600))

	require.NoError(t, s.ClearSession())

	_, ok := s.AdminToken()
	assert.False(t, ok)
	_, ok = s.Theme()
	assert.False(t, ok)
	_, ok = s.ExpiryDays("tok")
	assert.False(t, ok)

	_, err := os.Stat(foreign)
	assert.NoError(t, err)
}

func TestExpiryDaysValidation(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.SetExpiryDays("tok", 30))
	days, ok := s.ExpiryDays("tok")
	require.True(t, ok)
	assert.Equal(t, 30, days)

	_, ok = s.ExpiryDays("other")
	assert.False(t, ok)

	// Garbage on disk reads as absent, not as an error.
	require.NoError(t, s.Set(durationKeyPrefix+"tok", "not-a-number"))
	_, ok = s.ExpiryDays("tok")
	assert.False(t, ok)
}

func TestSidebarCollapsedDefaultsTrue(t *testing.T) {
	s := openStore(t)
	assert.True(t, s.SidebarCollapsed())

	require.NoError(t, s.SetSidebarCollapsed(false))
	assert.False(t, s.SidebarCollapsed())
}

func TestSanitizeFlattensUnsafeCharacters(t *testing.T) {
	assert.Equal(t, "signoff_duration_a_b", sanitize("signoff_duration_a/b"))
	assert.Equal(t, "plain-key.v1", sanitize("plain-key.v1"))
}
