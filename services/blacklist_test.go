package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-reservations/models"
)

func TestNormalizeContact(t *testing.T) {
	assert.Equal(t, "dewi@example.com", NormalizeEmail("  Dewi@Example.COM "))
	assert.Equal(t, "628120001111", NormalizePhone("+62 812-0000-1111"))
	assert.Equal(t, "", NormalizePhone("n/a"))
}

func TestBlacklistMatchesEmailOrPhone(t *testing.T) {
	db := newTestDB(t, defaultRegistry(t))
	clock := newTestClock(baseTime)
	svc := NewBlacklistService(db, clock, nil)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, &models.BlacklistEntry{Email: "Bad@Example.com", Reason: "no-show x3"}))
	require.NoError(t, svc.Add(ctx, &models.BlacklistEntry{Phone: "+62 811 222", Reason: "abusive"}))

	tests := []struct {
		email, phone string
		want         bool
	}{
		{"bad@example.com", "", true},
		{" BAD@example.com", "0000", true},
		{"", "62811222", true},
		{"good@example.com", "62-811-222", true},
		{"good@example.com", "0800", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, err := svc.IsBlacklisted(ctx, tc.email, tc.phone)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%q / %q", tc.email, tc.phone)
	}

	assert.ErrorIs(t, svc.Add(ctx, &models.BlacklistEntry{Reason: "nobody"}), ErrValidation)
}

func TestBlacklistExpiryAndDeactivate(t *testing.T) {
	db := newTestDB(t, defaultRegistry(t))
	clock := newTestClock(baseTime)
	svc := NewBlacklistService(db, clock, nil)
	ctx := context.Background()

	expires := baseTime.Add(24 * time.Hour)
	temp := &models.BlacklistEntry{Email: "temp@example.com", ExpiresAt: &expires}
	require.NoError(t, svc.Add(ctx, temp))
	perm := &models.BlacklistEntry{Email: "perm@example.com"}
	require.NoError(t, svc.Add(ctx, perm))

	blocked, err := svc.IsBlacklisted(ctx, "temp@example.com", "")
	require.NoError(t, err)
	assert.True(t, blocked)

	clock.Set(expires.Add(time.Minute))
	blocked, err = svc.IsBlacklisted(ctx, "temp@example.com", "")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, svc.Deactivate(ctx, perm.ID))
	blocked, err = svc.IsBlacklisted(ctx, "perm@example.com", "")
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.ErrorIs(t, svc.Deactivate(ctx, 4242), ErrNotFound)

	active, err := svc.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	all, err := svc.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRedisBlacklistCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	db := newTestDB(t, defaultRegistry(t))
	cache := NewRedisBlacklistCache(rdb, time.Minute)
	svc := NewBlacklistService(db, newTestClock(baseTime), cache)
	ctx := context.Background()

	entry := &models.BlacklistEntry{Email: "bad@example.com"}
	require.NoError(t, svc.Add(ctx, entry))

	blocked, err := svc.IsBlacklisted(ctx, "bad@example.com", "")
	require.NoError(t, err)
	assert.True(t, blocked)

	cached, found, err := cache.Get(ctx, "bad@example.com", "")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, cached)

	// rows changed behind the service's back stay cached until the TTL runs out
	require.NoError(t, db.Model(&models.BlacklistEntry{}).Where("id = ?", entry.ID).Update("active", false).Error)
	blocked, err = svc.IsBlacklisted(ctx, "bad@example.com", "")
	require.NoError(t, err)
	assert.True(t, blocked)

	mr.FastForward(2 * time.Minute)
	blocked, err = svc.IsBlacklisted(ctx, "bad@example.com", "")
	require.NoError(t, err)
	assert.False(t, blocked)

	// changes through the service invalidate immediately
	require.NoError(t, svc.Add(ctx, &models.BlacklistEntry{Email: "bad@example.com"}))
	blocked, err = svc.IsBlacklisted(ctx, "bad@example.com", "")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestBlacklistCacheOutageFallsBackToDatabase(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	db := newTestDB(t, defaultRegistry(t))
	svc := NewBlacklistService(db, newTestClock(baseTime), NewRedisBlacklistCache(rdb, time.Minute))
	ctx := context.Background()
	require.NoError(t, svc.Add(ctx, &models.BlacklistEntry{Phone: "0800"}))

	mr.Close()
	blocked, err := svc.IsBlacklisted(ctx, "", "0800")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestBlacklistedCustomerIsRejectedEndToEnd(t *testing.T) {
	registry := defaultRegistry(t)
	db := newTestDB(t, registry)
	clock := newTestClock(baseTime)
	gate := NewBlacklistService(db, clock, nil)
	svc := NewReservationService(db, registry, gate, nil, clock, ReservationSettings{Location: time.UTC})
	ctx := context.Background()

	require.NoError(t, gate.Add(ctx, &models.BlacklistEntry{Email: "dewi@example.com"}))

	_, err := svc.Create(ctx, customerRequest(2, testDate, "20:00"))
	assert.ErrorIs(t, err, ErrBlacklisted)

	var count int64
	db.Model(&models.Reservation{}).Count(&count)
	assert.Zero(t, count)

	// staff bookings without an email only match on phone
	_, err = svc.Create(ctx, staffRequest(2, testDate, "20:00"))
	assert.NoError(t, err, "the entry only matches by email")
}
