// SPDX-License-Identifier: ice License 1.0

package cache

import (
	"context"
	"strconv"
	stdlibtime "time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	appcfg "github.com/ice-blockchain/flagsync/config"
	"github.com/ice-blockchain/flagsync/log"
	"github.com/ice-blockchain/flagsync/model"
	"github.com/ice-blockchain/flagsync/time"
)

func MustConnectRedis(ctx context.Context, applicationYAMLKey, namespace string, ttl stdlibtime.Duration) Store {
	var cfg struct {
		Cache RedisConfig `yaml:"cache" mapstructure:"cache"`
	}
	appcfg.MustLoadFromKey(applicationYAMLKey, &cfg)
	store, err := NewRedis(ctx, &cfg.Cache, namespace, ttl)
	log.Panic(errors.Wrapf(err, "[%v] failed to connect to the redis cache", applicationYAMLKey)) //nolint:revive // That's intended.

	return store
}

// NewRedis stores the entry as one hash per namespace (usually the environment key); the whole hash expires after ttl.
//
//nolint:mnd,gomnd // Configs.
func NewRedis(ctx context.Context, cfg *RedisConfig, namespace string, ttl stdlibtime.Duration) (Store, error) {
	if cfg == nil || cfg.RedisURL == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid redis url %v", cfg.RedisURL)
	}
	if opts.Username == "" {
		opts.Username = cfg.Credentials.User
	}
	if opts.Password == "" {
		opts.Password = cfg.Credentials.Password
	}
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 10 * stdlibtime.Millisecond
	opts.MaxRetryBackoff = 1 * stdlibtime.Second
	opts.DialTimeout = connectTimeout
	opts.ReadTimeout = 5 * stdlibtime.Second
	opts.WriteTimeout = 5 * stdlibtime.Second
	opts.ContextTimeoutEnabled = true
	opts.PoolFIFO = true
	opts.PoolSize = cfg.PoolSize
	if opts.PoolSize == 0 {
		opts.PoolSize = defaultPool
	}
	opts.MinIdleConns = 1
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if result, pErr := client.Ping(pingCtx).Result(); pErr != nil || result != "PONG" {
		if pErr == nil {
			pErr = errors.Errorf("unexpected ping response: %v", result)
		}

		return nil, errors.Wrapf(closeOnFailure(pErr, client), "failed to ping %v", cfg.RedisURL)
	}

	return &redisStore{client: client, key: keyPrefix + namespace, ttl: ttl}, nil
}

func (r *redisStore) SaveUser(ctx context.Context, user *model.User) error {
	encoded, err := msgpack.Marshal(user.Clone())
	if err != nil {
		return errors.Wrapf(err, "failed to encode user %#v", user)
	}

	return errors.Wrapf(r.set(ctx, userField, encoded), "failed to save user to %v", r.key)
}

func (r *redisStore) SaveConfig(ctx context.Context, config []byte) error {
	savedAt := strconv.FormatInt(time.Now().UnixNano(), 10)

	return errors.Wrapf(r.set(ctx, configField, config, savedAtField, savedAt), "failed to save config to %v", r.key)
}

func (r *redisStore) set(ctx context.Context, fieldsAndValues ...any) error {
	_, err := r.client.TxPipelined(ctx, func(pipeliner redis.Pipeliner) error {
		if err := pipeliner.HSet(ctx, r.key, fieldsAndValues...).Err(); err != nil {
			return err //nolint:wrapcheck // Not needed.
		}
		if r.ttl > 0 {
			return pipeliner.Expire(ctx, r.key, r.ttl).Err() //nolint:wrapcheck // Not needed.
		}

		return nil
	})

	return err //nolint:wrapcheck // Callers wrap it.
}

func (r *redisStore) Load(ctx context.Context) (*Entry, error) {
	values, err := r.client.HMGet(ctx, r.key, userField, configField, savedAtField).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %v", r.key)
	}
	entry := new(Entry)
	if encodedUser, ok := values[0].(string); ok {
		entry.User = new(model.User)
		if err = msgpack.Unmarshal([]byte(encodedUser), entry.User); err != nil {
			return nil, errors.Wrapf(err, "failed to decode cached user from %v", r.key)
		}
	}
	if config, ok := values[1].(string); ok {
		entry.Config = []byte(config)
	}
	if savedAt, ok := values[2].(string); ok {
		nanos, pErr := strconv.ParseInt(savedAt, 10, 64)
		if pErr != nil {
			return nil, errors.Wrapf(pErr, "invalid %v in %v", savedAtField, r.key)
		}
		entry.SavedAt = time.New(stdlibtime.Unix(0, nanos))
	}

	return entry, nil
}

func (r *redisStore) Close() error {
	return errors.Wrap(r.client.Close(), "failed to close redis client")
}

func closeOnFailure(err error, client *redis.Client) error {
	if cErr := client.Close(); cErr != nil {
		log.Error(errors.Wrap(cErr, "failed to close redis client"))
	}

	return err
}
