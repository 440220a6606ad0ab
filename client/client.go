// SPDX-License-Identifier: ice License 1.0

package client

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"dario.cat/mergo"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/ice-blockchain/flagsync/cache"
	appcfg "github.com/ice-blockchain/flagsync/config"
	"github.com/ice-blockchain/flagsync/emitter"
	"github.com/ice-blockchain/flagsync/events"
	"github.com/ice-blockchain/flagsync/log"
	"github.com/ice-blockchain/flagsync/model"
	"github.com/ice-blockchain/flagsync/service"
)

// New builds a client from the Options found under applicationYAMLKey.
// The environment key can also come from <MODULE>_ENVIRONMENT_KEY or FLAGSYNC_ENVIRONMENT_KEY.
func New(ctx context.Context, applicationYAMLKey string, user *model.User) (*Client, error) {
	var opts Options
	appcfg.MustLoadFromKey(applicationYAMLKey, &opts)
	if opts.EnvironmentKey == "" {
		module := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(applicationYAMLKey, "-", "_"), "/", "_"))
		opts.EnvironmentKey = os.Getenv(fmt.Sprintf("%s_ENVIRONMENT_KEY", module))
		if opts.EnvironmentKey == "" {
			opts.EnvironmentKey = os.Getenv(defaultEnvironmentKeyEnv)
		}
	}

	return NewWithOptions(ctx, &opts, user)
}

func WithTransport(transport service.Transport) Dependency {
	return func(deps *dependencies) {
		deps.transport = transport
	}
}

func WithStore(store cache.Store) Dependency {
	return func(deps *dependencies) {
		deps.store = store
	}
}

func NewWithOptions(ctx context.Context, opts *Options, user *model.User, deps ...Dependency) (*Client, error) {
	if opts == nil || opts.EnvironmentKey == "" {
		return nil, ErrMissingEnvironmentKey
	}
	usr, err := prepareUser(user)
	if err != nil {
		return nil, err
	}
	merged := *opts
	if err = mergo.Merge(&merged, defaultOptions()); err != nil {
		return nil, errors.Wrap(err, "failed to apply default options")
	}
	var d dependencies
	for _, dep := range deps {
		dep(&d)
	}
	store, err := buildStore(ctx, &merged, d.store)
	if err != nil {
		return nil, err
	}
	svc := service.New(&service.Config{
		EnvironmentKey: merged.EnvironmentKey,
		HostSuffix:     merged.HostSuffix,
		APIProxyURL:    merged.APIProxyURL,
		RequestTimeout: merged.RequestTimeout,
		EnableEdgeDB:   merged.EnableEdgeDB,
	}, d.transport, store)
	cl := &Client{
		emitter: emitter.New(),
		service: svc,
		queue:   events.New(svc, svc),
		store:   store,
		user:    new(atomic.Pointer[model.User]),
		opts:    &merged,
		mx:      new(sync.Mutex),
		closed:  new(atomic.Bool),
	}
	cl.user.Store(usr)

	return cl, nil
}

func defaultOptions() *Options {
	return &Options{
		HostSuffix:         service.DefaultHostSuffix,
		EventFlushInterval: DefaultEventFlushInterval,
		ConfigCacheTTL:     DefaultConfigCacheTTL,
	}
}

func buildStore(ctx context.Context, opts *Options, custom cache.Store) (cache.Store, error) {
	switch {
	case opts.DisableConfigCache:
		return cache.Disabled(), nil
	case custom != nil:
		return custom, nil
	case opts.Cache.RedisURL != "":
		store, err := cache.NewRedis(ctx, &opts.Cache, opts.EnvironmentKey, opts.ConfigCacheTTL)

		return store, errors.Wrap(err, "failed to build redis config cache")
	default:
		return cache.NewMemory(opts.ConfigCacheTTL), nil
	}
}

func prepareUser(user *model.User) (*model.User, error) {
	if user == nil {
		return nil, ErrMissingUser
	}
	usr := user.Clone()
	if usr.UserID == "" {
		if !usr.IsAnonymous {
			return nil, ErrInvalidUser
		}
		usr.UserID = uuid.NewString()
	}

	return usr, nil
}

// Initialize activates a config cached for the same user, if any, then fetches a fresh one
// and starts flushing events periodically.
func (c *Client) Initialize(ctx context.Context) error {
	c.restoreCachedConfig(ctx)
	err := c.Refresh(ctx)
	if !c.opts.DisableEventLogging {
		c.queue.Start(c.opts.EventFlushInterval, c.currentUser, c.emitter.EmitError)
	}
	c.emitter.EmitInitialized(err == nil)

	return err
}

func (c *Client) restoreCachedConfig(ctx context.Context) {
	entry, err := c.store.Load(ctx)
	if err != nil {
		log.Error(errors.Wrap(err, "failed to load cached config"))

		return
	}
	if entry == nil || entry.User == nil || len(entry.Config) == 0 || entry.User.UserID != c.currentUser().UserID {
		return
	}
	cfg, err := model.DecodeUserConfig(entry.Config)
	if err != nil {
		log.Error(errors.Wrap(err, "ignoring cached config"), "user", entry.User.UserID)

		return
	}
	c.service.SetConfig(cfg)
	log.Debug("restored cached config", "user", entry.User.UserID, "savedAt", entry.SavedAt)
}

// Refresh fetches the current user's config. Subscribers are told about the new config as a whole,
// then about every variable and feature that was added, changed or removed.
func (c *Client) Refresh(ctx context.Context) error {
	c.mx.Lock()
	previous, user := c.service.Config(), c.currentUser()
	c.mx.Unlock()
	current, err := c.service.GetConfig(ctx, user)
	if err != nil {
		c.emitter.EmitError(err)

		return errors.Wrap(err, "failed to refresh config")
	}
	c.emitUpdates(previous, current)

	return nil
}

func (c *Client) emitUpdates(previous, current *model.UserConfig) {
	c.emitter.EmitConfigUpdated(current.VariableSet())
	for _, key := range unionKeys(variables(previous), variables(current)) {
		if after := current.Variable(key); !previous.Variable(key).Equal(after) {
			c.emitter.EmitVariableUpdated(key, after)
		}
	}
	for _, key := range unionKeys(features(previous), features(current)) {
		before, after := features(previous)[key], features(current)[key]
		if !before.Equal(after) {
			c.emitter.EmitFeatureUpdated(key, after)
		}
	}
}

// Identify flushes what was recorded for the previous user, switches to user and refreshes.
// Events of the previous user that can't be flushed are dropped, they never go out under the new user's id.
func (c *Client) Identify(ctx context.Context, user *model.User) error {
	usr, err := prepareUser(user)
	if err != nil {
		return err
	}
	c.flushPreviousUser(ctx, c.currentUser())
	c.mx.Lock()
	c.user.Store(usr)
	c.mx.Unlock()

	return c.Refresh(ctx)
}

func (c *Client) flushPreviousUser(ctx context.Context, previous *model.User) {
	err := c.queue.Flush(ctx, previous)
	switch {
	case err == nil:
	case errors.Is(err, events.ErrMissingUserOrFeatureVariationsMap):
		if dropped := c.queue.Discard(); dropped > 0 {
			log.Warn("dropping events of the previous user, no config was synchronized for them", "user", previous.UserID, "events", dropped)
		}
	default:
		log.Error(errors.Wrapf(err, "failed to flush events of the previous user %v", previous.UserID))
		c.emitter.EmitError(err)
	}
}

// Reset switches to a new anonymous user.
func (c *Client) Reset(ctx context.Context) error {
	return c.Identify(ctx, &model.User{IsAnonymous: true})
}

func (c *Client) User() *model.User {
	return c.currentUser().Clone()
}

func (c *Client) currentUser() *model.User {
	return c.user.Load()
}

func (c *Client) Emitter() *emitter.Emitter {
	return c.emitter
}

func (c *Client) AllVariables() model.VariableSet {
	return c.service.Config().VariableSet()
}

func (c *Client) AllFeatures() map[string]*model.Feature {
	src := features(c.service.Config())
	all := make(map[string]*model.Feature, len(src))
	for key, feature := range src {
		all[key] = feature
	}

	return all
}

func (c *Client) Flush(ctx context.Context) error {
	return errors.Wrap(c.queue.Flush(ctx, c.currentUser()), "failed to flush events")
}

// Close stops periodic flushing, flushes what is left and releases the cache store. It is safe to call more than once.
// Events that can't be flushed because no config was ever synchronized are dropped.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	qErr := c.queue.Close(ctx, c.currentUser())
	if errors.Is(qErr, events.ErrMissingUserOrFeatureVariationsMap) {
		log.Warn("dropping events that were recorded before any config was synchronized", "events", c.queue.Len())
		qErr = nil
	}

	return multierror.Append(nil, //nolint:wrapcheck // Not needed.
		errors.Wrap(qErr, "failed to close events queue"),
		errors.Wrap(c.store.Close(), "failed to close config cache"),
	).ErrorOrNil()
}

func variables(cfg *model.UserConfig) map[string]*model.Variable {
	if cfg == nil {
		return nil
	}

	return cfg.Variables
}

func features(cfg *model.UserConfig) map[string]*model.Feature {
	if cfg == nil {
		return nil
	}

	return cfg.Features
}

func unionKeys[V any](previous, current map[string]V) []string {
	keys := make([]string, 0, len(current))
	for key := range current {
		keys = append(keys, key)
	}
	for key := range previous {
		if _, found := current[key]; !found {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	return keys
}
