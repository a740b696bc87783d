// internal/notify/redis.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/genzdict/battlegate/internal/store"
)

// ChangeChannel is the Redis pub/sub channel carrying committed changes.
var ChangeChannel = "battlegate_changes"

// DefaultDenyQueue is the Redis list the auditor consumes deny records from.
var DefaultDenyQueue = "battlegate_denials"

// ConnectRedis initializes a Redis client from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() (*redis.Client, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Redis publishes committed changes on a pub/sub channel (so every gateway
// instance can feed its local subscribers) and queues deny records for the
// auditor worker.
type Redis struct {
	rdb       *redis.Client
	denyQueue string
	logger    *logrus.Logger
}

// NewRedis wraps a connected client. The deny queue name comes from
// DENY_QUEUE_NAME, defaulting to DefaultDenyQueue.
func NewRedis(rdb *redis.Client, logger *logrus.Logger) *Redis {
	return &Redis{
		rdb:       rdb,
		denyQueue: getEnv("DENY_QUEUE_NAME", DefaultDenyQueue),
		logger:    logger,
	}
}

// PublishChange serializes the event and publishes it on ChangeChannel.
func (r *Redis) PublishChange(ctx context.Context, ev store.ChangeEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Errorf("failed to marshal change event: %v", err)
		return
	}
	if err := r.rdb.Publish(ctx, ChangeChannel, data).Err(); err != nil {
		r.logger.Errorf("failed to publish change for %s: %v", ev.Path, err)
	}
}

// PublishDeny pushes the audit record onto the deny queue.
func (r *Redis) PublishDeny(ctx context.Context, rec store.DenyRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		r.logger.Errorf("failed to marshal deny record: %v", err)
		return
	}
	if err := r.rdb.RPush(ctx, r.denyQueue, data).Err(); err != nil {
		r.logger.Errorf("failed to queue deny record for %s: %v", rec.Path, err)
	}
}

// RunBridge subscribes to ChangeChannel and republishes remote events into
// the local broker, so watch clients on this instance see commits made on
// any other instance. Blocks until ctx is canceled.
func RunBridge(ctx context.Context, rdb *redis.Client, broker *Broker, logger *logrus.Logger) {
	sub := rdb.Subscribe(ctx, ChangeChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev store.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warnf("bad change event on %s: %v", ChangeChannel, err)
				continue
			}
			broker.PublishChange(ctx, ev)
		}
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
