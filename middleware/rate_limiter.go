package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"appdownloader/utils"

	"golang.org/x/time/rate"
)

// Per-key token buckets with trusted-proxy aware client IPs and idle cleanup.

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type bucketSet struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	idle    time.Duration
}

func newBucketSet(idle time.Duration) *bucketSet {
	return &bucketSet{buckets: make(map[string]*bucket), idle: idle}
}

func (s *bucketSet) get(key string, limit int, window time.Duration) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		s.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

func (s *bucketSet) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, b := range s.buckets {
		if now.Sub(b.lastSeen) > s.idle {
			delete(s.buckets, k)
		}
	}
}

func (s *bucketSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *bucketSet) cleanupLoop(every time.Duration, stop <-chan struct{}) {
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case now := <-tick.C:
			s.sweep(now)
		case <-stop:
			return
		}
	}
}

// IPRateLimiter allows maxReq requests per window per client IP.
type IPRateLimiter struct {
	maxReq      int
	window      time.Duration
	set         *bucketSet
	trustedCIDR []string
	stop        chan struct{}
}

func NewIPRateLimiter(maxReq int, window time.Duration, trustedProxies []string) *IPRateLimiter {
	if maxReq <= 0 {
		maxReq = 1
	}
	l := &IPRateLimiter{
		maxReq:      maxReq,
		window:      window,
		set:         newBucketSet(2 * window),
		trustedCIDR: trustedProxies,
		stop:        make(chan struct{}),
	}
	go l.set.cleanupLoop(time.Minute, l.stop)
	return l
}

// Stop ends the cleanup goroutine.
func (l *IPRateLimiter) Stop() { close(l.stop) }

// clientIPGeneric returns the client IP string. If trustedCIDR is provided,
// X-Forwarded-For / X-Real-IP headers are honored when remote addr is inside
// one of the trusted CIDRs or IPs.
func clientIPGeneric(r *http.Request, trustedCIDR []string) string {
	remoteHost, _, _ := net.SplitHostPort(r.RemoteAddr)
	remoteIP := net.ParseIP(remoteHost)
	trusted := false
	for _, cidr := range trustedCIDR {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		if strings.Contains(cidr, "/") {
			if _, ipnet, err := net.ParseCIDR(cidr); err == nil {
				if remoteIP != nil && ipnet.Contains(remoteIP) {
					trusted = true
					break
				}
			}
			continue
		}
		if ip := net.ParseIP(cidr); ip != nil && remoteIP != nil && ip.Equal(remoteIP) {
			trusted = true
			break
		}
	}
	if trusted {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				return strings.TrimSpace(parts[0])
			}
		}
		if xr := r.Header.Get("X-Real-IP"); xr != "" {
			return strings.TrimSpace(xr)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIP returns the address resolved by the IP limiter, or the direct peer when the request
// did not pass through one.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(utils.ClientIPKey).(string); ok && ip != "" {
		return ip
	}
	return clientIPGeneric(r, nil)
}

// Middleware applies per-IP limits, sets rate-limit headers and stores the client IP.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIPGeneric(r, l.trustedCIDR)
		lim := l.set.get("ip:"+ip, l.maxReq, l.window)
		if !allow(w, lim, l.maxReq) {
			writeTooMany(w, r, retryAfter(lim))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), utils.ClientIPKey, ip)))
	})
}

// UserRateLimiter limits authenticated callers per route class. Reads and writes get separate
// buckets; repeated overruns earn a progressive penalty of 1, 5, 15 then 30 minutes.
type UserRateLimiter struct {
	read, write int
	window      time.Duration
	set         *bucketSet

	mu      sync.Mutex
	penalty map[string]penaltyInfo
	stop    chan struct{}
}

type penaltyInfo struct {
	Level int
	Until time.Time
}

func NewUserRateLimiter(maxReqRead, maxReqWrite int, window time.Duration) *UserRateLimiter {
	if maxReqRead <= 0 {
		maxReqRead = 1
	}
	if maxReqWrite <= 0 {
		maxReqWrite = 1
	}
	l := &UserRateLimiter{
		read:    maxReqRead,
		write:   maxReqWrite,
		window:  window,
		set:     newBucketSet(2 * window),
		penalty: make(map[string]penaltyInfo),
		stop:    make(chan struct{}),
	}
	go l.set.cleanupLoop(time.Minute, l.stop)
	go l.penaltyCleanup()
	return l
}

func (l *UserRateLimiter) Stop() { close(l.stop) }

func (l *UserRateLimiter) penaltyCleanup() {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()
	for {
		select {
		case now := <-tick.C:
			l.mu.Lock()
			for k, p := range l.penalty {
				if p.Until.Before(now) {
					delete(l.penalty, k)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// penaltyDuration is the lock for the given overrun level.
func penaltyDuration(level int) time.Duration {
	switch level {
	case 1:
		return time.Minute
	case 2:
		return 5 * time.Minute
	case 3:
		return 15 * time.Minute
	default:
		return 30 * time.Minute
	}
}

func (l *UserRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := utils.GetUserID(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		class, limit := "read", l.read
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			class, limit = "write", l.write
		}
		key := fmt.Sprintf("u:%d:%s", uid, class)
		now := time.Now()

		l.mu.Lock()
		pi := l.penalty[key]
		if pi.Until.After(now) {
			l.mu.Unlock()
			writeTooMany(w, r, pi.Until.Sub(now))
			return
		}
		l.mu.Unlock()

		lim := l.set.get(key, limit, l.window)
		if !allow(w, lim, limit) {
			l.mu.Lock()
			pi = l.penalty[key]
			pi.Level++
			pi.Until = now.Add(penaltyDuration(pi.Level))
			l.penalty[key] = pi
			l.mu.Unlock()
			utils.RequestLogger(r).WithFields(map[string]interface{}{"level": pi.Level, "class": class}).Warn("user rate limit exceeded")
			writeTooMany(w, r, penaltyDuration(pi.Level))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func allow(w http.ResponseWriter, lim *rate.Limiter, limit int) bool {
	ok := lim.Allow()
	remaining := int(math.Floor(lim.Tokens()))
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	return ok
}

func retryAfter(lim *rate.Limiter) time.Duration {
	r := lim.Reserve()
	d := r.Delay()
	r.Cancel()
	return d
}

func writeTooMany(w http.ResponseWriter, r *http.Request, wait time.Duration) {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
	utils.WriteError(w, r, &utils.AppError{Kind: utils.KindRateLimited, Message: "Too many requests, try again later."})
}
