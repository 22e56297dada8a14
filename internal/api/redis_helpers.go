package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateCounter 是 redis.Client 中用于计数限流的子集。
type RateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

func incrWithTTL(ctx context.Context, client RateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// uploadCountKey 按 UTC 自然日统计会话的 Logo 上传次数。
func uploadCountKey(sessionID string, now time.Time) string {
	return fmt.Sprintf("upload_count:%s:%s", sessionID, now.UTC().Format("20060102"))
}
