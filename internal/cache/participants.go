package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ParticipantCache keeps conversation membership in Redis so the relay
// does not hit the store on every send. A nil cache always misses, which
// lets the gateway run without Redis configured.
type ParticipantCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a ParticipantCache. A nil redis client yields a disabled cache.
func New(client *redis.Client, ttl time.Duration) *ParticipantCache {
	if client == nil {
		return nil
	}
	return &ParticipantCache{client: client, ttl: ttl}
}

func membersKey(conversationID string) string {
	return fmt.Sprintf("conv:%s:participants", conversationID)
}

// IsParticipant reports membership and whether the cache had an answer.
func (c *ParticipantCache) IsParticipant(ctx context.Context, conversationID string, userID int64) (member bool, hit bool) {
	if c == nil {
		return false, false
	}

	key := membersKey(conversationID)
	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil || exists == 0 {
		return false, false
	}

	ok, err := c.client.SIsMember(ctx, key, strconv.FormatInt(userID, 10)).Result()
	if err != nil {
		return false, false
	}
	return ok, true
}

// Put stores the participant set with the configured TTL.
func (c *ParticipantCache) Put(ctx context.Context, conversationID string, participantIDs []int64) {
	if c == nil || len(participantIDs) == 0 {
		return
	}

	key := membersKey(conversationID)
	members := make([]interface{}, 0, len(participantIDs))
	for _, id := range participantIDs {
		members = append(members, strconv.FormatInt(id, 10))
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, c.ttl)
	_, _ = pipe.Exec(ctx)
}

// Invalidate drops the cached participant set for a conversation.
func (c *ParticipantCache) Invalidate(ctx context.Context, conversationID string) {
	if c == nil {
		return
	}
	_ = c.client.Del(ctx, membersKey(conversationID)).Err()
}
