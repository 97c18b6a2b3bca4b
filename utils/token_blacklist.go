package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

const blacklistKeyPrefix = "jwt:blacklist:"

var (
	blacklist   = map[string]time.Time{}
	blacklistMu sync.Mutex
)

// BlacklistToken revokes a token until its natural expiration.
// Redis is preferred so revocation holds across instances.
func BlacklistToken(token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	key := tokenKey(token)
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, blacklistKeyPrefix+key, "1", ttl).Err(); err == nil {
			return
		}
		Sugar.Warn("redis blacklist write failed, keeping token in memory")
	}
	blacklistMu.Lock()
	pruneBlacklistLocked(time.Now())
	blacklist[key] = expiresAt
	blacklistMu.Unlock()
}

// IsTokenBlacklisted checks if a token was revoked before natural expiration.
func IsTokenBlacklisted(token string) bool {
	key := tokenKey(token)
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := rc.Exists(ctx, blacklistKeyPrefix+key).Result()
		if err == nil && n > 0 {
			return true
		}
	}
	blacklistMu.Lock()
	defer blacklistMu.Unlock()
	exp, ok := blacklist[key]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(blacklist, key)
		return false
	}
	return true
}

func pruneBlacklistLocked(now time.Time) {
	for k, exp := range blacklist {
		if now.After(exp) {
			delete(blacklist, k)
		}
	}
}

// tokenKey hashes the token so raw credentials never sit in Redis.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
