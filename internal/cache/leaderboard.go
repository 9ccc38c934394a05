// Package cache provides a Redis-backed daily leaderboard. It is a read
// accelerator over the session history in Postgres: updates are best-effort
// and the keyed day ID keeps stale entries from leaking across resets.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const dayKeyPrefix = "leaderboard:day:"

// leaderboard entries expire on their own well after the day has rolled
// over, so a missed reset never needs a manual cleanup.
const dayKeyTTL = 48 * time.Hour

// Leaderboard caches per-day best scores in a sorted set keyed by day ID.
type Leaderboard struct {
	client *redis.Client
}

// NewLeaderboard creates a leaderboard cache against the given Redis address.
func NewLeaderboard(addr, password string, db int) *Leaderboard {
	return &Leaderboard{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Ping verifies the connection.
func (l *Leaderboard) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the client.
func (l *Leaderboard) Close() error {
	return l.client.Close()
}

func dayKey(dayID int64) string {
	return dayKeyPrefix + strconv.FormatInt(dayID, 10)
}

// RecordScore keeps the user's best score of the day in the set. GT only
// moves members up, so replays and lower scores are no-ops.
func (l *Leaderboard) RecordScore(ctx context.Context, dayID, userID, score int64) error {
	key := dayKey(dayID)
	pipe := l.client.Pipeline()
	pipe.ZAddArgs(ctx, key, redis.ZAddArgs{
		GT:      true,
		Members: []redis.Z{{Score: float64(score), Member: strconv.FormatInt(userID, 10)}},
	})
	pipe.Expire(ctx, key, dayKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record score: %w", err)
	}
	return nil
}

// Entry is one cached leaderboard row.
type Entry struct {
	UserID int64
	Score  int64
}

// Top returns the day's top n users by score, best first.
func (l *Leaderboard) Top(ctx context.Context, dayID int64, n int) ([]Entry, error) {
	rows, err := l.client.ZRevRangeWithScores(ctx, dayKey(dayID), 0, int64(n)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		member, ok := row.Member.(string)
		if !ok {
			continue
		}
		userID, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{UserID: userID, Score: int64(row.Score)})
	}
	return entries, nil
}

// Rank returns the user's zero-based position for the day, or -1 when the
// user has no entry.
func (l *Leaderboard) Rank(ctx context.Context, dayID, userID int64) (int64, error) {
	rank, err := l.client.ZRevRank(ctx, dayKey(dayID), strconv.FormatInt(userID, 10)).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rank: %w", err)
	}
	return rank, nil
}

// Drop removes a day's set, used when a day is closed out.
func (l *Leaderboard) Drop(ctx context.Context, dayID int64) error {
	return l.client.Del(ctx, dayKey(dayID)).Err()
}
