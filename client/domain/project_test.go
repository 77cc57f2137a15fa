package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	t.Run("pending before expiry stays pending", func(t *testing.T) {
		p := Project{Status: StatusPending, ExpiresAt: &future}
		assert.Equal(t, StatusPending, p.EffectiveStatus(now))
	})

	t.Run("pending past expiry computes expired", func(t *testing.T) {
		p := Project{Status: StatusPending, ExpiresAt: &past}
		assert.Equal(t, StatusExpired, p.EffectiveStatus(now))
	})

	t.Run("approved never expires", func(t *testing.T) {
		p := Project{Status: StatusApproved, ExpiresAt: &past}
		assert.Equal(t, StatusApproved, p.EffectiveStatus(now))
	})

	t.Run("no expiry means no transition", func(t *testing.T) {
		p := Project{Status: StatusChangesRequested}
		assert.Equal(t, StatusChangesRequested, p.EffectiveStatus(now))
	})

	t.Run("exact boundary counts as expired", func(t *testing.T) {
		p := Project{Status: StatusPending, ExpiresAt: &now}
		assert.Equal(t, StatusExpired, p.EffectiveStatus(now))
	})
}

func TestRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("breaks down days hours minutes seconds", func(t *testing.T) {
		at := now.Add(2*24*time.Hour + 3*time.Hour + 4*time.Minute + 5*time.Second)
		cd := Remaining(&at, now)
		assert.Equal(t, Countdown{Days: 2, Hours: 3, Minutes: 4, Seconds: 5}, cd)
	})

	t.Run("nil expiry is expired", func(t *testing.T) {
		assert.True(t, Remaining(nil, now).Expired)
	})

	t.Run("past expiry is expired", func(t *testing.T) {
		at := now.Add(-time.Second)
		assert.True(t, Remaining(&at, now).Expired)
	})
}
