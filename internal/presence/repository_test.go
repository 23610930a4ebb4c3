package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupulse/live-backend/internal/models"
)

func testRepository(t *testing.T) *Repository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRepository(client, nil)
}

func TestTouchAndList(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	joined := time.Now().UTC().Add(-5 * time.Second).Truncate(time.Second)
	_, err := repo.Touch(ctx, "room-1", models.Participant{
		ID: "c1", Identity: "a@x.com", JoinedAt: joined,
	})
	require.NoError(t, err)
	_, err = repo.Touch(ctx, "room-1", models.Participant{
		ID: "c2", Identity: "b@x.com",
	})
	require.NoError(t, err)

	list, err := repo.List(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a@x.com", list[0].Identity)
	assert.Equal(t, "b@x.com", list[1].Identity)
}

func TestHeartbeatKeepsOriginalEntry(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	joined := time.Now().UTC().Add(-10 * time.Second).Truncate(time.Second)
	_, err := repo.Touch(ctx, "room-1", models.Participant{
		ID: "c1", Identity: "a@x.com", JoinedAt: joined,
	})
	require.NoError(t, err)

	// Heartbeats arrive with a fresh connection id and join time; the
	// roster entry must not churn.
	for i := 0; i < 3; i++ {
		beat, err := repo.Touch(ctx, "room-1", models.Participant{
			ID:       fmt.Sprintf("beat-%d", i),
			Identity: "a@x.com",
			JoinedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		assert.Equal(t, "c1", beat.ID)
	}

	list, err := repo.List(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c1", list[0].ID)
	assert.True(t, list[0].JoinedAt.Equal(joined),
		"join time must not drift forward on heartbeats")
}

func TestRemove(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	_, err := repo.Touch(ctx, "room-1", models.Participant{ID: "c1", Identity: "a@x.com"})
	require.NoError(t, err)
	require.NoError(t, repo.Remove(ctx, "room-1", "a@x.com"))

	list, err := repo.List(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	// Rejoin after leave starts a fresh entry.
	fresh, err := repo.Touch(ctx, "room-1", models.Participant{ID: "c2", Identity: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "c2", fresh.ID)
}

func TestListPrunesStaleEntries(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	_, err := repo.Touch(ctx, "room-1", models.Participant{ID: "c1", Identity: "live@x.com"})
	require.NoError(t, err)

	// A participant whose last heartbeat predates the TTL window.
	ghost := models.Participant{ID: "c0", Identity: "ghost@x.com", JoinedAt: time.Now().UTC().Add(-time.Hour)}
	meta, err := json.Marshal(ghost)
	require.NoError(t, err)
	staleScore := float64(time.Now().Add(-2 * entryTTL).Unix())
	require.NoError(t, repo.client.ZAdd(ctx, seenKey("room-1"), redis.Z{Score: staleScore, Member: ghost.Identity}).Err())
	require.NoError(t, repo.client.HSet(ctx, metaKey("room-1"), ghost.Identity, meta).Err())

	list, err := repo.List(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "live@x.com", list[0].Identity)

	// Pruned, not just filtered.
	exists, err := repo.client.HExists(ctx, metaKey("room-1"), ghost.Identity).Result()
	require.NoError(t, err)
	assert.False(t, exists)
}
