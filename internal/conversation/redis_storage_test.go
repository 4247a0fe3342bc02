package conversation

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/workmanhq/workman-bot/internal/domain"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	return client
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisStorage_RoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	storage := NewRedisStorage(client, time.Hour, testLogger())
	ctx := context.Background()

	userID := int64(42)
	session := &Session{
		UserID:          userID,
		State:           StateAwaitingSelection,
		NeedDescription: "fix my sink",
		Location:        &domain.Location{Manual: "Kampala, Uganda"},
		Candidates: []Candidate{
			{ServiceID: 31, Label: "Plumbing Fix", Name: "Plumbing Fix", Price: 50000},
		},
	}

	require.NoError(t, storage.SetSession(ctx, userID, session))

	loaded, err := storage.GetSession(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, StateAwaitingSelection, loaded.State)
	require.Equal(t, "fix my sink", loaded.NeedDescription)
	require.Equal(t, "Kampala, Uganda", loaded.Location.Manual)
	require.Len(t, loaded.Candidates, 1)
	require.Equal(t, int64(31), loaded.Candidates[0].ServiceID)
	require.False(t, loaded.UpdatedAt.IsZero())
}

func TestRedisStorage_GetMissing(t *testing.T) {
	client := setupTestRedis(t)
	storage := NewRedisStorage(client, time.Hour, testLogger())

	_, err := storage.GetSession(context.Background(), 7)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStorage_ClearSession(t *testing.T) {
	client := setupTestRedis(t)
	storage := NewRedisStorage(client, time.Hour, testLogger())
	ctx := context.Background()

	require.NoError(t, storage.SetSession(ctx, 7, &Session{UserID: 7, State: StateAwaitingDescription}))
	require.NoError(t, storage.ClearSession(ctx, 7))

	_, err := storage.GetSession(ctx, 7)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStorage_GetAllSessions(t *testing.T) {
	client := setupTestRedis(t)
	storage := NewRedisStorage(client, time.Hour, testLogger())
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, storage.SetSession(ctx, id, &Session{UserID: id, State: StateAwaitingDescription}))
	}

	sessions, err := storage.GetAllSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
}
