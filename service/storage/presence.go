package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Presence maps online users to the gateway node holding their sessions.
// Key: im:presence:<user>, value: gateway id, TTL bounds the online claim.
type Presence struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPresence(rdb *redis.Client, ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &Presence{rdb: rdb, ttl: ttl}
}

func presenceKey(user string) string { return "im:presence:" + user }

// Online sets the user as online on gatewayID and renews the TTL.
func (p *Presence) Online(ctx context.Context, user, gatewayID string) error {
	return p.rdb.Set(ctx, presenceKey(user), gatewayID, p.ttl).Err()
}

// Offline actively removes the online claim.
func (p *Presence) Offline(ctx context.Context, user string) error {
	return p.rdb.Del(ctx, presenceKey(user)).Err()
}

// Lookup returns the gateway holding the user's sessions, if any.
func (p *Presence) Lookup(ctx context.Context, user string) (gatewayID string, online bool, err error) {
	val, err := p.rdb.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
