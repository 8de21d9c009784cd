package redis

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis guards order submission with short-lived per-user locks. A lock key
// covers one (group, user) pair; holding it means a submit for that pair is
// in flight and any concurrent attempt must back off.
type Redis struct {
	Client *redis.Client
	Logger *log.Logger
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		Client: client,
		Logger: log.Default(),
	}
}

// getSubmitLockDuration returns the submit lock TTL from environment variables
// or the default value. The TTL only matters when a process dies mid-submit;
// normal flow releases the lock explicitly.
func (r *Redis) getSubmitLockDuration() time.Duration {
	defaultDuration := 10 * time.Second

	lockTTLStr := os.Getenv("SUBMIT_LOCK_TTL_SECONDS")
	if lockTTLStr == "" {
		return defaultDuration
	}

	lockTTLSec, err := strconv.Atoi(lockTTLStr)
	if err != nil {
		r.Logger.Println("REDIS: Invalid SUBMIT_LOCK_TTL_SECONDS value '" + lockTTLStr + "', using default 10 seconds")
		return defaultDuration
	}

	return time.Duration(lockTTLSec) * time.Second
}

func submitKey(groupID, userID string) string {
	return "submit_lock:" + groupID + ":" + userID
}

// LockSubmit acquires the submit lock for one (group, user) pair. Returns
// false without error when another submit already holds it.
func (r *Redis) LockSubmit(groupID, userID string) (bool, error) {
	key := submitKey(groupID, userID)
	lockDuration := r.getSubmitLockDuration()
	ok, err := r.Client.SetNX(context.Background(), key, userID, lockDuration).Result()
	return ok, err
}

// UnlockSubmit releases the submit lock. Releasing a lock that already
// expired or was never held is a no-op.
func (r *Redis) UnlockSubmit(groupID, userID string) error {
	ctx := context.Background()
	key := submitKey(groupID, userID)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == userID {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
