package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fortuna/clio/internal/scrape"
	"github.com/redis/go-redis/v9"
)

const (
	// PlayerStream receives one entry per scraped player
	PlayerStream = "players.scraped.basketball_nba"
	// RunStream receives scrape run lifecycle events
	RunStream = "scrape.runs.basketball_nba"

	defaultMaxLen = 10000
)

// streamAdder is the subset of *redis.Client used for publishing
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisPublisher publishes events to Redis streams
type RedisPublisher struct {
	client streamAdder
	closer func() error
	maxLen int64
	now    func() time.Time
}

// NewRedisPublisher creates a new Redis stream publisher
func NewRedisPublisher(redisURL string) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	p := NewRedisStreamPublisher(client)
	p.closer = client.Close
	return p, nil
}

// NewRedisStreamPublisher creates a publisher from an existing client. The
// caller keeps ownership of the client.
func NewRedisStreamPublisher(client *redis.Client) *RedisPublisher {
	return newPublisher(client)
}

func newPublisher(client streamAdder) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		maxLen: defaultMaxLen,
		now:    time.Now,
	}
}

// Close closes the Redis connection if the publisher opened it
func (rp *RedisPublisher) Close() error {
	if rp.closer == nil {
		return nil
	}
	return rp.closer()
}

// Save publishes the player to PlayerStream. It implements scrape.Sink.
func (rp *RedisPublisher) Save(ctx context.Context, p *scrape.Player) error {
	if err := rp.publish(ctx, PlayerStream, p.ID, p.Payload()); err != nil {
		return fmt.Errorf("publish player %s: %w", p.ID, err)
	}
	return nil
}

// PublishRunEvent publishes a run lifecycle event to RunStream
func (rp *RedisPublisher) PublishRunEvent(ctx context.Context, eventType string, payload interface{}) error {
	return rp.publish(ctx, RunStream, eventType, payload)
}

func (rp *RedisPublisher) publish(ctx context.Context, stream, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return rp.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: rp.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"key":       key,
			"data":      string(data),
			"timestamp": rp.now().Unix(),
		},
	}).Err()
}
