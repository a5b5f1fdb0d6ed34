package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"benchfleet/internal/domain/model"

	"github.com/go-redis/redis/v8"
)

// LivenessCache keeps recently-seen agent rows so directory reads served to
// the admin surface do not touch the database. The postgres agent repo writes
// through on every save; staleness is bounded by the TTL.
type LivenessCache struct {
	client *Client
	ttl    time.Duration
}

func NewLivenessCache(client *Client, ttl time.Duration) *LivenessCache {
	return &LivenessCache{client: client, ttl: ttl}
}

func agentKey(id string) string { return "agent:" + id }

func (c *LivenessCache) StoreAgent(ctx context.Context, agent *model.Agent) error {
	data, err := json.Marshal(agent)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, agentKey(agent.ID), data, c.ttl)
}

func (c *LivenessCache) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	data, err := c.client.Get(ctx, agentKey(id))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var agent model.Agent
	if err := json.Unmarshal([]byte(data), &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (c *LivenessCache) DeleteAgent(ctx context.Context, id string) error {
	return c.client.Del(ctx, agentKey(id))
}
