package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edupulse/live-backend/internal/models"
)

// entryTTL is how long a participant stays in the roster without a heartbeat.
const entryTTL = 15 * time.Second

// Repository tracks room presence in Redis. Each room keeps a sorted set of
// identities scored by last-seen time plus a hash of participant metadata;
// entries past the TTL are pruned on read and lazily removed.
type Repository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRepository creates a presence repository.
func NewRepository(client *redis.Client, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{client: client, logger: logger}
}

func seenKey(room string) string { return "presence:seen:" + room }
func metaKey(room string) string { return "presence:meta:" + room }

// Touch records (or refreshes) a participant in the room roster.
// Keyed by identity, so a rejoin under a new connection id replaces the old
// entry instead of duplicating it. A heartbeat for an identity already in the
// roster keeps the original entry's id and join time; only the last-seen
// score moves.
func (r *Repository) Touch(ctx context.Context, room string, p models.Participant) (models.Participant, error) {
	if raw, err := r.client.HGet(ctx, metaKey(room), p.Identity).Result(); err == nil {
		var existing models.Participant
		if json.Unmarshal([]byte(raw), &existing) == nil && existing.ID != "" {
			p.ID = existing.ID
			p.JoinedAt = existing.JoinedAt
		}
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	meta, err := json.Marshal(p)
	if err != nil {
		return p, fmt.Errorf("marshal participant: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, seenKey(room), redis.Z{Score: float64(time.Now().Unix()), Member: p.Identity})
	pipe.HSet(ctx, metaKey(room), p.Identity, meta)
	pipe.Expire(ctx, seenKey(room), 24*time.Hour)
	pipe.Expire(ctx, metaKey(room), 24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return p, fmt.Errorf("presence touch: %w", err)
	}
	return p, nil
}

// Remove drops a participant from the roster.
func (r *Repository) Remove(ctx context.Context, room, identity string) error {
	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, seenKey(room), identity)
	pipe.HDel(ctx, metaKey(room), identity)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence remove: %w", err)
	}
	return nil
}

// List returns live roster entries for a room, ordered by join time.
// Stale entries (no heartbeat within the TTL) are pruned first.
func (r *Repository) List(ctx context.Context, room string) ([]models.Participant, error) {
	cutoff := time.Now().Add(-entryTTL).Unix()

	stale, err := r.client.ZRangeByScore(ctx, seenKey(room), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", cutoff),
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("presence stale scan: %w", err)
	}
	if len(stale) > 0 {
		members := make([]interface{}, len(stale))
		for i, s := range stale {
			members[i] = s
		}
		pipe := r.client.TxPipeline()
		pipe.ZRem(ctx, seenKey(room), members...)
		pipe.HDel(ctx, metaKey(room), stale...)
		if _, err := pipe.Exec(ctx); err != nil {
			r.logger.Warn("presence prune failed", zap.String("room", room), zap.Error(err))
		}
	}

	identities, err := r.client.ZRangeByScore(ctx, seenKey(room), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", cutoff),
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("presence range: %w", err)
	}
	if len(identities) == 0 {
		return nil, nil
	}

	raw, err := r.client.HMGet(ctx, metaKey(room), identities...).Result()
	if err != nil {
		return nil, fmt.Errorf("presence meta: %w", err)
	}
	list := make([]models.Participant, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var p models.Participant
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			r.logger.Warn("invalid presence entry", zap.String("room", room), zap.Error(err))
			continue
		}
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].JoinedAt.Before(list[j].JoinedAt) })
	return list, nil
}
