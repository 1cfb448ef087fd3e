package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"certtrack-backend/internal/models"
)

// CatalogChannel carries events every connected client receives.
const CatalogChannel = "catalog_updates"

func UserChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user_updates:%s", userID.String())
}

// Publisher pushes live updates through Redis pub/sub so every server
// instance can forward them to its websocket clients.
type Publisher struct {
	redis *redis.Client
	log   *zap.Logger
}

func NewPublisher(redisClient *redis.Client, log *zap.Logger) *Publisher {
	return &Publisher{redis: redisClient, log: log}
}

func (p *Publisher) ToUser(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	p.publish(ctx, UserChannel(userID), msg)
}

func (p *Publisher) ToAll(ctx context.Context, msg models.WSMessage) {
	p.publish(ctx, CatalogChannel, msg)
}

// publish is best effort; a lost live update is repaired by the next fetch.
func (p *Publisher) publish(ctx context.Context, channel string, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("failed to encode live update", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	if err := p.redis.Publish(ctx, channel, string(data)).Err(); err != nil {
		p.log.Warn("failed to publish live update", zap.String("channel", channel), zap.Error(err))
	}
}
