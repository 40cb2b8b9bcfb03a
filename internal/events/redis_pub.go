package events

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

type redisPublisher struct {
	cli          *redis.Client
	stream       string
	maxLen       int64
	maxLenApprox bool
}

// NewRedis appends events to a Redis stream capped at maxLen entries.
func NewRedis(url, stream string, maxLen int64, approx bool) (Publisher, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	if stream == "" {
		stream = "govmsg:events"
	}
	return &redisPublisher{cli: redis.NewClient(opt), stream: stream, maxLen: maxLen, maxLenApprox: approx}, nil
}

func (p *redisPublisher) Close() error { return p.cli.Close() }

func (p *redisPublisher) Publish(ctx context.Context, evt Event) error {
	b, err := encode(evt)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	// single 'data' field with the JSON body; 'type' duplicated for XRANGE filtering
	args := &redis.XAddArgs{Stream: p.stream, Values: map[string]any{"type": evt.Type, "data": string(b)}}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = p.maxLenApprox
	}
	return p.cli.XAdd(ctx, args).Err()
}
