package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Subject kinds.
const (
	KindIP       = "ip"
	KindTelegram = "tg"
)

// Subject is a banned identity.
type Subject struct {
	Kind  string
	Value string
}

// IPSubject bans a client address.
func IPSubject(ip string) Subject { return Subject{Kind: KindIP, Value: ip} }

// TelegramSubject bans a Telegram account.
func TelegramSubject(id int64) Subject {
	return Subject{Kind: KindTelegram, Value: strconv.FormatInt(id, 10)}
}

func (s Subject) String() string { return s.Kind + ":" + s.Value }

// BanStore keeps the blacklist in Redis. A ban without TTL is permanent.
type BanStore struct {
	Client *redis.Client
	Prefix string
}

func (b BanStore) key(s Subject) string {
	prefix := b.Prefix
	if prefix == "" {
		prefix = "ban:"
	}
	return prefix + s.String()
}

// Ban blacklists s for ttl (0 = forever) and reports whether s was not banned before.
// A permanent ban replaces an existing temporary one.
func (b BanStore) Ban(ctx context.Context, s Subject, reason string, ttl time.Duration) (bool, error) {
	if b.Client == nil {
		return false, errors.New("ban store: redis client not configured")
	}
	if s.Value == "" {
		return false, nil
	}
	key := b.key(s)
	if ttl > 0 {
		created, err := b.Client.SetNX(ctx, key, reason, ttl).Result()
		if err != nil {
			return false, fmt.Errorf("ban %s: %w", s, err)
		}
		return created, nil
	}
	err := b.Client.SetArgs(ctx, key, reason, redis.SetArgs{Get: true}).Err()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("ban %s: %w", s, err)
	}
	return false, nil
}

// Unban lifts a ban.
func (b BanStore) Unban(ctx context.Context, s Subject) error {
	if b.Client == nil {
		return nil
	}
	return b.Client.Del(ctx, b.key(s)).Err()
}

// Banned reports whether any of subjects is blacklisted.
func (b BanStore) Banned(ctx context.Context, subjects ...Subject) (bool, error) {
	if b.Client == nil || len(subjects) == 0 {
		return false, nil
	}
	keys := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if s.Value != "" {
			keys = append(keys, b.key(s))
		}
	}
	if len(keys) == 0 {
		return false, nil
	}
	n, err := b.Client.Exists(ctx, keys...).Result()
	if err != nil {
		return false, fmt.Errorf("check bans: %w", err)
	}
	return n > 0, nil
}
