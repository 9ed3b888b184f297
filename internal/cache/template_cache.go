package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// TemplateCache keeps rendered template projections in redis. An upload
// deletes the entry and sets a short dirty marker so a reader that loaded
// the old rows does not write them back.
type TemplateCache struct {
	client         *redisv9.Client
	ttl            time.Duration
	dirtyMarkerTTL time.Duration
}

func NewTemplateCache(client *redisv9.Client, ttl, dirtyMarkerTTL time.Duration) *TemplateCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &TemplateCache{
		client:         client,
		ttl:            ttl,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *TemplateCache) Get(ctx context.Context, templateID uint, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, templateKey(templateID)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get template failed: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("unmarshal cached template failed: %w", err)
	}
	return true, nil
}

func (c *TemplateCache) Set(ctx context.Context, templateID uint, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal template cache failed: %w", err)
	}
	if err := c.client.Set(ctx, templateKey(templateID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set template failed: %w", err)
	}
	return nil
}

func (c *TemplateCache) Invalidate(ctx context.Context, templateID uint) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, dirtyKey(templateID), "1", c.dirtyMarkerTTL)
	pipe.Del(ctx, templateKey(templateID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate template failed: %w", err)
	}
	return nil
}

func (c *TemplateCache) IsDirty(ctx context.Context, templateID uint) (bool, error) {
	exists, err := c.client.Exists(ctx, dirtyKey(templateID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func templateKey(templateID uint) string {
	return fmt.Sprintf("documents:template:%d", templateID)
}

func dirtyKey(templateID uint) string {
	return fmt.Sprintf("documents:template:dirty:%d", templateID)
}
