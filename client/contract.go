// SPDX-License-Identifier: ice License 1.0

package client

import (
	"sync"
	"sync/atomic"
	stdlibtime "time"

	"github.com/pkg/errors"

	"github.com/ice-blockchain/flagsync/cache"
	"github.com/ice-blockchain/flagsync/emitter"
	"github.com/ice-blockchain/flagsync/events"
	"github.com/ice-blockchain/flagsync/model"
	"github.com/ice-blockchain/flagsync/service"
)

// Public API.

const (
	DefaultEventFlushInterval = 10 * stdlibtime.Second
	DefaultConfigCacheTTL     = 7 * 24 * stdlibtime.Hour
)

// .
var (
	ErrMissingEnvironmentKey = errors.New("missing environment key")
	ErrMissingUser           = errors.New("missing user")
	ErrInvalidUser           = errors.New("user must either have a user id or be anonymous")
)

type (
	Options struct {
		Cache                        cache.RedisConfig   `yaml:"cache" mapstructure:"cache"`
		EnvironmentKey               string              `yaml:"environmentKey" mapstructure:"environmentKey"`
		APIProxyURL                  string              `yaml:"apiProxyUrl" mapstructure:"apiProxyUrl"`
		HostSuffix                   string              `yaml:"hostSuffix" mapstructure:"hostSuffix"`
		EventFlushInterval           stdlibtime.Duration `yaml:"eventFlushInterval" mapstructure:"eventFlushInterval"`
		ConfigCacheTTL               stdlibtime.Duration `yaml:"configCacheTTL" mapstructure:"configCacheTTL"`
		RequestTimeout               stdlibtime.Duration `yaml:"requestTimeout" mapstructure:"requestTimeout"`
		DisableEventLogging          bool                `yaml:"disableEventLogging" mapstructure:"disableEventLogging"`
		DisableCustomEventLogging    bool                `yaml:"disableCustomEventLogging" mapstructure:"disableCustomEventLogging"`
		DisableAutomaticEventLogging bool                `yaml:"disableAutomaticEventLogging" mapstructure:"disableAutomaticEventLogging"`
		DisableConfigCache           bool                `yaml:"disableConfigCache" mapstructure:"disableConfigCache"`
		EnableEdgeDB                 bool                `yaml:"enableEdgeDb" mapstructure:"enableEdgeDb"`
	}

	// Dependency overrides one of the collaborators the client would otherwise build from its Options.
	Dependency func(*dependencies)

	// Client is one sdk instance: one user, one active config, one event queue, one subscription registry.
	Client struct {
		emitter *emitter.Emitter
		service *service.Service
		queue   *events.Queue
		store   cache.Store
		user    *atomic.Pointer[model.User]
		opts    *Options
		mx      *sync.Mutex
		closed  *atomic.Bool
	}
)

// Private API.

const (
	defaultEnvironmentKeyEnv = "FLAGSYNC_ENVIRONMENT_KEY"
	automaticEventValue      = 1
)

type (
	dependencies struct {
		transport service.Transport
		store     cache.Store
	}
)
