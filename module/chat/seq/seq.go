package seq

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"SuperChat/logger"
	"SuperChat/tools/errs"

	"github.com/redis/go-redis/v9"
)

// Sequencer hands out strictly increasing per-conversation sequence
// numbers, serialized to a single winner per tick. A number is never reused
// even when the stamped message fails to persist; gaps are tolerated,
// duplicates are not.
type Sequencer interface {
	Next(ctx context.Context, convID string) (int64, error)
}

// Floor answers the durable max seq for a conversation, used to seed or
// correct the Redis counter.
type Floor interface {
	MaxSeq(ctx context.Context, convID string) (int64, error)
}

// MaxFloor combines several floors; the highest answer wins. Seeding from
// both the message stream and the committed floor survives either one
// being purged.
type MaxFloor []Floor

func (f MaxFloor) MaxSeq(ctx context.Context, convID string) (int64, error) {
	var max int64
	for _, src := range f {
		v, err := src.MaxSeq(ctx, convID)
		if err != nil {
			return 0, err
		}
		if v > max {
			max = v
		}
	}
	return max, nil
}

// Committer records issued numbers so a flushed counter reseeds past them.
type Committer interface {
	AdvanceCommit(ctx context.Context, convID string, toSeq int64) error
}

// initAttempts bounds how often a caller losing the init lock re-waits for
// the winner before surfacing the contention to its own caller.
const initAttempts = 3

// errInitContention marks a lost init-lock race where the winner had not
// seeded the counter yet. Retryable; everything else is not.
var errInitContention = errs.New("seq init contention, retry")

// RedisAllocator: INCR fast path on im:seq:<conv>; on a cold or evicted key
// it takes a short init lock, reads the durable floor and seeds the counter
// before issuing.
type RedisAllocator struct {
	rdb        redis.UniversalClient
	floor      Floor
	commit     Committer
	seqPrefix  string
	lockPrefix string
	lockTTL    time.Duration
	spinWait   time.Duration
}

func NewRedisAllocator(rdb redis.UniversalClient, floor Floor) *RedisAllocator {
	return &RedisAllocator{
		rdb:        rdb,
		floor:      floor,
		seqPrefix:  "im:seq",
		lockPrefix: "im:seq:init",
		lockTTL:    10 * time.Second,
		spinWait:   50 * time.Millisecond,
	}
}

// WithCommitter enables durable floor commits on every issued number.
func (a *RedisAllocator) WithCommitter(c Committer) *RedisAllocator {
	a.commit = c
	return a
}

func (a *RedisAllocator) seqKey(convID string) string {
	return fmt.Sprintf("%s:%s", a.seqPrefix, convID)
}

func (a *RedisAllocator) lockKey(convID string) string {
	return fmt.Sprintf("%s:%s", a.lockPrefix, convID)
}

func (a *RedisAllocator) Next(ctx context.Context, convID string) (int64, error) {
	key := a.seqKey(convID)
	if v, err := a.rdb.Get(ctx, key).Int64(); err == nil && v > 0 {
		n, err := a.rdb.Incr(ctx, key).Result()
		return a.issued(ctx, convID, n, err)
	}
	var initErr error
	for attempt := 0; attempt < initAttempts; attempt++ {
		if initErr = a.initIfNeeded(ctx, convID); initErr == nil {
			n, err := a.rdb.Incr(ctx, key).Result()
			return a.issued(ctx, convID, n, err)
		}
		if initErr != errInitContention || ctx.Err() != nil {
			break
		}
	}
	return 0, initErr
}

// issued commits the number to the durable floor, best effort. A failed
// commit loses nothing: the floor may only lag, never lead.
func (a *RedisAllocator) issued(ctx context.Context, convID string, n int64, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	if a.commit != nil {
		if cerr := a.commit.AdvanceCommit(ctx, convID, n); cerr != nil {
			logger.Log.Sugar().Warnw("seq floor commit", "conversationID", convID, "seq", n, "err", cerr)
		}
	}
	return n, nil
}

func (a *RedisAllocator) initIfNeeded(ctx context.Context, convID string) error {
	key := a.seqKey(convID)
	if v, err := a.rdb.Get(ctx, key).Int64(); err == nil && v > 0 {
		return nil
	}

	// lock so one caller seeds, the rest spin once
	lock := a.lockKey(convID)
	token := randToken(16)
	ok, err := a.rdb.SetNX(ctx, lock, token, a.lockTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		timer := time.NewTimer(a.spinWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if v, err := a.rdb.Get(ctx, key).Int64(); err == nil && v > 0 {
			return nil
		}
		return errInitContention
	}
	defer func() { _ = unlock(ctx, a.rdb, lock, token) }()

	// double check under the lock
	if v, err := a.rdb.Get(ctx, key).Int64(); err == nil && v > 0 {
		return nil
	}
	maxSeq, err := a.floor.MaxSeq(ctx, convID)
	if err != nil {
		return err
	}
	return a.rdb.Set(ctx, key, maxSeq, 0).Err()
}

// reconcileAndNextLua raises the counter to the durable max (never lowers)
// and takes a fresh number; used after a unique-seq insert conflict.
var reconcileAndNextLua = `
local k = KEYS[1]
local dbMax = tonumber(ARGV[1])
local v = redis.call('GET', k)
if (not v) or (tonumber(v) < dbMax) then
  redis.call('SET', k, dbMax)
end
return redis.call('INCR', k)
`

func (a *RedisAllocator) ReconcileAndNext(ctx context.Context, convID string, dbMax int64) (int64, error) {
	n, err := a.rdb.Eval(ctx, reconcileAndNextLua, []string{a.seqKey(convID)}, dbMax).Int64()
	return a.issued(ctx, convID, n, err)
}

var unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

func unlock(ctx context.Context, rdb redis.UniversalClient, key, token string) error {
	return rdb.Eval(ctx, unlockLua, []string{key}, token).Err()
}

func randToken(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
