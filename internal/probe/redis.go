package probe

import (
	"context"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"github.com/keithlinneman/platform-demo/internal/log"
	"github.com/keithlinneman/platform-demo/internal/xerrors"
)

// Redis is up when PING succeeds.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis { return &Redis{client: client} }

// NewRedisURL parses a redis:// or rediss:// URL.
func NewRedisURL(rawURL string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, xerrors.Wrapf(ErrInvalidConfiguration, "redis probe url: %v", err)
	}
	// a probe should fail fast rather than retry a dead server
	opts.MaxRetries = -1
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(err, "instrument redis probe client")
	}
	return NewRedis(client), nil
}

func (p *Redis) Check(ctx context.Context, name string) (Result, error) {
	return Timed(func(ctx context.Context) (bool, error) {
		if err := p.client.Ping(ctx).Err(); err != nil {
			log.FromContext(ctx).Debug(ctx, "redis probe failed", "health_check_name", name, "err", err)
			return false, nil
		}
		return true, nil
	}).Check(ctx, name)
}

func (p *Redis) Close() error { return p.client.Close() }
