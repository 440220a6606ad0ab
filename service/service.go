// SPDX-License-Identifier: ice License 1.0

package service

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/ice-blockchain/flagsync/cache"
	"github.com/ice-blockchain/flagsync/log"
	"github.com/ice-blockchain/flagsync/model"
	"github.com/ice-blockchain/flagsync/terror"
	"github.com/ice-blockchain/flagsync/time"
)

// New wires the service; a nil transport means NewTransport, a nil store means nothing is cached.
func New(cfg *Config, transport Transport, store cache.Store) *Service {
	if transport == nil {
		transport = NewTransport(cfg.RequestTimeout)
	}
	if store == nil {
		store = cache.Disabled()
	}

	return &Service{transport: transport, cache: store, active: new(atomic.Pointer[model.UserConfig]), cfg: cfg}
}

// GetConfig fetches, decodes, caches and activates the config of user.
// On any failure the previously active config stays as it was.
func (s *Service) GetConfig(ctx context.Context, user *model.User) (*model.UserConfig, error) {
	if user == nil {
		return nil, terror.New(ErrConfigFetch, errors.New("missing user"), nil)
	}
	log.Error(errors.Wrapf(s.cache.SaveUser(ctx, user), "failed to cache user %v", user.UserID))
	configURL, err := s.configURL(user)
	if err != nil {
		return nil, terror.New(ErrConfigFetch, err, map[string]any{"user": user.UserID})
	}
	resp, err := s.transport.Execute(ctx, &Request{Method: http.MethodGet, URL: configURL, Header: jsonHeader()})
	if err != nil || resp == nil || len(resp.Body) == 0 {
		if err == nil {
			err = errors.New("no config data")
		}

		return nil, terror.New(ErrConfigFetch, err, map[string]any{"url": configURL})
	}
	cfg, err := model.DecodeUserConfig(resp.Body)
	if err != nil {
		return nil, terror.New(ErrConfigDecode, err, map[string]any{"url": configURL})
	}
	log.Error(errors.Wrap(s.cache.SaveConfig(ctx, resp.Body), "failed to cache config"))
	s.active.Store(cfg)

	return cfg, nil
}

// Config is the active config, nil until one was fetched or restored.
func (s *Service) Config() *model.UserConfig {
	return s.active.Load()
}

// SetConfig activates a config obtained elsewhere, e.g. restored from the cache store.
func (s *Service) SetConfig(cfg *model.UserConfig) {
	s.active.Store(cfg)
}

// PublishEvents sends one batch with an enriched copy of every event. Events that cannot be serialized are skipped.
func (s *Service) PublishEvents(ctx context.Context, events []*model.Event, user *model.User, featureVars model.FeatureVariationMap) error {
	now := time.Now()
	payload := make([]json.RawMessage, 0, len(events))
	for _, event := range events {
		encoded, err := json.MarshalContext(ctx, event.Enrich(user.UserID, featureVars, now))
		if err != nil {
			log.Error(errors.Wrapf(err, "skipping event that can't be serialized"), "type", event.Type, "target", event.Target)

			continue
		}
		payload = append(payload, encoded)
	}
	body, err := json.MarshalContext(ctx, &eventsRequest{Events: payload, User: user.Public()})
	if err != nil {
		return terror.New(ErrEventsPublish, errors.Wrap(err, "failed to marshal events request"), map[string]any{"events": len(payload)})
	}
	eventsURL := s.baseURL(eventsURLPrefix) + versionV1 + eventsPath
	resp, err := s.transport.Execute(ctx, &Request{Method: http.MethodPost, URL: eventsURL, Header: jsonHeader(), Body: body})
	if err != nil || resp == nil {
		if err == nil {
			err = errors.New("no response")
		}

		return terror.New(ErrEventsPublish, err, map[string]any{"url": eventsURL, "events": len(payload)})
	}
	log.Debug("events published", "events", len(payload), "statusCode", resp.StatusCode)

	return nil
}

// configURL keeps the user's attributes in a stable order and always puts the environment key last.
func (s *Service) configURL(user *model.User) (string, error) {
	items, err := user.QueryItems()
	if err != nil {
		return "", errors.Wrapf(err, "failed to build query for user %v", user.UserID)
	}
	if s.cfg.EnableEdgeDB {
		items = append(items, &model.QueryItem{Name: "enableEdgeDB", Value: "true"})
	}
	items = append(items, &model.QueryItem{Name: "envKey", Value: s.cfg.EnvironmentKey})
	query := make([]string, 0, len(items))
	for _, item := range items {
		query = append(query, url.QueryEscape(item.Name)+"="+url.QueryEscape(item.Value))
	}

	return s.baseURL(sdkURLPrefix) + versionV1 + configPath + "?" + strings.Join(query, "&"), nil
}

func (s *Service) baseURL(prefix string) string {
	if s.cfg.APIProxyURL != "" {
		proxy := strings.TrimSuffix(s.cfg.APIProxyURL, "/")
		if !strings.Contains(proxy, "://") {
			proxy = "https://" + proxy
		}

		return proxy
	}
	hostSuffix := s.cfg.HostSuffix
	if hostSuffix == "" {
		hostSuffix = DefaultHostSuffix
	}

	return prefix + hostSuffix
}
