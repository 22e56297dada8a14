package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ExportNotifyMessage 是推送给前端的导出结果（经 Redis Pub/Sub 转发到 WebSocket）。
// Delivered 明确告知用户是否已有文件可下载；失败时永远为 false。
type ExportNotifyMessage struct {
	Status        string `json:"status"`
	DesignID      uint   `json:"design_id"`
	ExportID      uint   `json:"export_id"`
	Delivered     bool   `json:"delivered"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
}

// NotifyChannel 返回会话的通知频道名。
func NotifyChannel(sessionID string) string {
	return "session_notify:" + sessionID
}

// Publisher 抽象消息发布，便于测试替换。
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher 通过 Redis Pub/Sub 发布消息。
type RedisPublisher struct {
	Client *redis.Client
}

func (p RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := p.Client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func publishNotify(ctx context.Context, pub Publisher, sessionID string, msg ExportNotifyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	return pub.Publish(ctx, NotifyChannel(sessionID), data)
}
