package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/config"
	"github.com/nipeshtamang/ebus-sub002/internal/domain"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/redis/go-redis/v9"
)

// SeatCache is the Redis side of seat allocation: short lived seat locks in
// front of the database transaction and a read cache of seat maps. The
// database stays the authority for both.
type SeatCache interface {
	// AcquireSeatLocks takes every seat lock or none. A seat already locked
	// by another request yields SeatUnavailableError.
	AcquireSeatLocks(ctx context.Context, scheduleID uuid.UUID, seats []string) (release func(), err error)
	GetSeatMap(ctx context.Context, scheduleID uuid.UUID) (*models.SeatMap, error)
	SetSeatMap(ctx context.Context, seatMap *models.SeatMap) error
	InvalidateSeatMap(ctx context.Context, scheduleID uuid.UUID) error
	Ping(ctx context.Context) error
}

// releaseScript deletes a lock only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisCache implements SeatCache on go-redis
type RedisCache struct {
	client     *redis.Client
	lockTTL    time.Duration
	seatMapTTL time.Duration
}

// NewRedisCache creates a new RedisCache
func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	return &RedisCache{
		client:     redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		lockTTL:    cfg.LockTTL,
		seatMapTTL: cfg.SeatMapTTL,
	}
}

// Ping checks the connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// AcquireSeatLocks locks seats in sorted order so two requests for
// overlapping seats contend on the same first key
func (c *RedisCache) AcquireSeatLocks(ctx context.Context, scheduleID uuid.UUID, seats []string) (func(), error) {
	sorted := append([]string(nil), seats...)
	sort.Strings(sorted)

	token := uuid.NewString()
	acquired := make([]string, 0, len(sorted))
	release := func() {
		for _, key := range acquired {
			_ = releaseScript.Run(context.Background(), c.client, []string{key}, token).Err()
		}
	}

	var taken []string
	for _, seat := range sorted {
		key := SeatLockKey(scheduleID, seat)
		ok, err := c.client.SetNX(ctx, key, token, c.lockTTL).Result()
		if err != nil {
			release()
			return func() {}, fmt.Errorf("failed to acquire seat lock: %w", err)
		}
		if !ok {
			taken = append(taken, seat)
			continue
		}
		acquired = append(acquired, key)
	}

	if len(taken) > 0 {
		release()
		return func() {}, domain.SeatUnavailableError{ScheduleID: scheduleID.String(), Seats: taken}
	}
	return release, nil
}

// GetSeatMap returns the cached seat map or (nil, nil) on a miss
func (c *RedisCache) GetSeatMap(ctx context.Context, scheduleID uuid.UUID) (*models.SeatMap, error) {
	data, err := c.client.Get(ctx, SeatMapKey(scheduleID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var seatMap models.SeatMap
	if err := json.Unmarshal(data, &seatMap); err != nil {
		return nil, err
	}
	return &seatMap, nil
}

// SetSeatMap caches a seat map for the configured TTL
func (c *RedisCache) SetSeatMap(ctx context.Context, seatMap *models.SeatMap) error {
	payload, err := json.Marshal(seatMap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, SeatMapKey(seatMap.ScheduleID), payload, c.seatMapTTL).Err()
}

// InvalidateSeatMap drops the cached seat map of a schedule
func (c *RedisCache) InvalidateSeatMap(ctx context.Context, scheduleID uuid.UUID) error {
	return c.client.Del(ctx, SeatMapKey(scheduleID)).Err()
}

// SeatLockKey is the Redis key guarding one seat of a schedule
func SeatLockKey(scheduleID uuid.UUID, seat string) string {
	return fmt.Sprintf("lock:schedule:%s:seat:%s", scheduleID, seat)
}

// SeatMapKey is the Redis key of a schedule's cached seat map
func SeatMapKey(scheduleID uuid.UUID) string {
	return fmt.Sprintf("cache:schedule:%s:seats", scheduleID)
}

// NoopCache is used when Redis is not configured. Locks always succeed and
// the seat map is never cached.
type NoopCache struct{}

func (NoopCache) AcquireSeatLocks(context.Context, uuid.UUID, []string) (func(), error) {
	return func() {}, nil
}

func (NoopCache) GetSeatMap(context.Context, uuid.UUID) (*models.SeatMap, error) { return nil, nil }

func (NoopCache) SetSeatMap(context.Context, *models.SeatMap) error { return nil }

func (NoopCache) InvalidateSeatMap(context.Context, uuid.UUID) error { return nil }

func (NoopCache) Ping(context.Context) error { return nil }
