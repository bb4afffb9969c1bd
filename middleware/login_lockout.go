package middleware

import (
	"context"
	"strings"
	"sync"
	"time"

	"appdownloader/utils"
)

// LoginLockout tracks failed logins per client IP and submitted username. After Threshold
// consecutive failures that pair is locked for 1, 5, 15 then 30 minutes on each further failure,
// so misses from one client never lock the account owner out elsewhere. Redis is used when
// utils.RedisClient is set so every instance sees the same state.
type LoginLockout struct {
	Threshold int

	mu      sync.Mutex
	records map[string]*loginRecord
}

type loginRecord struct {
	Failures    int
	LastFailAt  time.Time
	LockedUntil time.Time
}

const loginFailTTL = 30 * time.Minute

var (
	globalLockout *LoginLockout
	lockoutOnce   sync.Once
)

// GetLoginLockout returns the process-wide lockout tracker.
func GetLoginLockout() *LoginLockout {
	lockoutOnce.Do(func() {
		globalLockout = NewLoginLockout(5)
	})
	return globalLockout
}

func NewLoginLockout(threshold int) *LoginLockout {
	if threshold <= 0 {
		threshold = 5
	}
	l := &LoginLockout{Threshold: threshold, records: make(map[string]*loginRecord)}
	go l.cleanup()
	return l
}

// lockoutKey matches usernames exactly, as login does.
func lockoutKey(ip, username string) string {
	return ip + "|" + strings.TrimSpace(username)
}

// lockFor returns how long the given failure count locks the account; zero below the threshold.
func (l *LoginLockout) lockFor(failures int) time.Duration {
	if failures < l.Threshold {
		return 0
	}
	return penaltyDuration(failures - l.Threshold + 1)
}

func (l *LoginLockout) cleanup() {
	tick := time.NewTicker(5 * time.Minute)
	defer tick.Stop()
	for now := range tick.C {
		l.mu.Lock()
		for k, rec := range l.records {
			if now.After(rec.LockedUntil) && now.Sub(rec.LastFailAt) > loginFailTTL {
				delete(l.records, k)
			}
		}
		l.mu.Unlock()
	}
}

// Clear forgets every in-memory record.
func (l *LoginLockout) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = make(map[string]*loginRecord)
}

// Locked reports whether ip may not currently log in as username and for how long.
func (l *LoginLockout) Locked(ctx context.Context, ip, username string) (bool, time.Duration) {
	key := lockoutKey(ip, username)
	if utils.RedisClient != nil {
		ttl, err := utils.RedisClient.TTL(ctx, "login:lock:"+key).Result()
		if err == nil {
			if ttl > 0 {
				return true, ttl
			}
			return false, 0
		}
		utils.Log.WithError(err).Warn("login lockout: redis unavailable, using memory")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.records[key]
	if rec == nil {
		return false, 0
	}
	if wait := time.Until(rec.LockedUntil); wait > 0 {
		return true, wait
	}
	return false, 0
}

// Fail records a failed attempt.
func (l *LoginLockout) Fail(ctx context.Context, ip, username string) {
	key := lockoutKey(ip, username)
	if utils.RedisClient != nil {
		failKey, lockKey := "login:fail:"+key, "login:lock:"+key
		failures, err := utils.RedisClient.Incr(ctx, failKey).Result()
		if err == nil {
			_ = utils.RedisClient.Expire(ctx, failKey, loginFailTTL).Err()
			if d := l.lockFor(int(failures)); d > 0 {
				_ = utils.RedisClient.Set(ctx, lockKey, "1", d).Err()
			}
			return
		}
		utils.Log.WithError(err).Warn("login lockout: redis unavailable, using memory")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	rec := l.records[key]
	if rec == nil || now.Sub(rec.LastFailAt) > loginFailTTL {
		rec = &loginRecord{}
		l.records[key] = rec
	}
	rec.Failures++
	rec.LastFailAt = now
	if d := l.lockFor(rec.Failures); d > 0 {
		rec.LockedUntil = now.Add(d)
	}
}

// Reset clears the failures after a successful login.
func (l *LoginLockout) Reset(ctx context.Context, ip, username string) {
	key := lockoutKey(ip, username)
	if utils.RedisClient != nil {
		if err := utils.RedisClient.Del(ctx, "login:fail:"+key, "login:lock:"+key).Err(); err == nil {
			return
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, key)
}
