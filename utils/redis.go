package utils

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisClient is an optional shared Redis client used for the token cache and login lockout.
// It is nil when REDIS_ADDR is not configured.
var RedisClient *redis.Client

const tokenCacheTTL = 5 * time.Minute

// InitRedis connects to addr. Ping failures are logged and leave RedisClient nil so callers
// fall back to the database and in-memory state.
func InitRedis(addr, pass string, db int) {
	if addr == "" {
		return
	}
	rc := redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		Log.WithError(err).WithField("addr", addr).Warn("redis ping failed, continuing without redis")
		_ = rc.Close()
		return
	}
	RedisClient = rc
	Log.WithField("addr", addr).Info("redis connected")
}

func tokenCacheKey(jti string) string {
	return "auth:token:" + jti
}

// CacheTokenUser remembers which user a token id belongs to.
func CacheTokenUser(ctx context.Context, jti string, userID uint, isStaff bool) {
	if RedisClient == nil {
		return
	}
	val := fmt.Sprintf("%d:%t", userID, isStaff)
	if err := RedisClient.Set(ctx, tokenCacheKey(jti), val, tokenCacheTTL).Err(); err != nil {
		Log.WithError(err).Debug("token cache write failed")
	}
}

// ForgetTokenUsers removes cached owners for the given token ids.
func ForgetTokenUsers(ctx context.Context, jtis ...string) {
	if RedisClient == nil || len(jtis) == 0 {
		return
	}
	keys := make([]string, 0, len(jtis))
	for _, jti := range jtis {
		keys = append(keys, tokenCacheKey(jti))
	}
	if err := RedisClient.Del(ctx, keys...).Err(); err != nil {
		Log.WithError(err).Warn("token cache delete failed")
	}
}

// CachedTokenUser returns the cached owner of a token id. Redis errors count as a miss.
func CachedTokenUser(ctx context.Context, jti string) (userID uint, isStaff bool, ok bool) {
	if RedisClient == nil {
		return 0, false, false
	}
	val, err := RedisClient.Get(ctx, tokenCacheKey(jti)).Result()
	if err != nil {
		return 0, false, false
	}
	idStr, staffStr, found := strings.Cut(val, ":")
	if !found {
		return 0, false, false
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id == 0 {
		return 0, false, false
	}
	return uint(id), staffStr == "true", true
}
