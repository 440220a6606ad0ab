// SPDX-License-Identifier: ice License 1.0

package cache

import (
	"context"
	"io"
	"sync"
	stdlibtime "time"

	"github.com/redis/go-redis/v9"

	"github.com/ice-blockchain/flagsync/model"
	"github.com/ice-blockchain/flagsync/time"
)

// Public API.

type (
	// Store persists the last known user and the last known raw config of one sdk instance.
	// Expiring the config after the configured TTL is the store's job.
	Store interface {
		io.Closer
		SaveUser(ctx context.Context, user *model.User) error
		SaveConfig(ctx context.Context, config []byte) error
		Load(ctx context.Context) (*Entry, error)
	}
	Entry struct {
		User    *model.User
		SavedAt *time.Time
		Config  []byte
	}
	RedisConfig struct {
		Credentials struct {
			User     string `yaml:"user" mapstructure:"user"`
			Password string `yaml:"password" mapstructure:"password"`
		} `yaml:"credentials" mapstructure:"credentials"`
		RedisURL string `yaml:"redisUrl" mapstructure:"redisUrl"`
		PoolSize int    `yaml:"poolSize" mapstructure:"poolSize"`
	}
)

// Private API.

const (
	keyPrefix      = "flagsync:"
	userField      = "user"
	configField    = "config"
	savedAtField   = "savedAt"
	defaultPool    = 2
	connectTimeout = 10 * stdlibtime.Second
)

type (
	memory struct {
		now     func() *time.Time
		mx      *sync.RWMutex
		user    *model.User
		savedAt *time.Time
		config  []byte
		ttl     stdlibtime.Duration
	}
	redisStore struct {
		client *redis.Client
		key    string
		ttl    stdlibtime.Duration
	}
	disabled struct{}
)
