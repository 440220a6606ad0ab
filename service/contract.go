// SPDX-License-Identifier: ice License 1.0

package service

import (
	"context"
	"net/http"
	"sync/atomic"
	stdlibtime "time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"github.com/pkg/errors"

	"github.com/ice-blockchain/flagsync/cache"
	"github.com/ice-blockchain/flagsync/model"
)

// Public API.

const (
	DefaultHostSuffix = ".devcycle.com"
)

// .
var (
	ErrTransport     = errors.New("transport failure")
	ErrConfigFetch   = errors.New("failed to fetch config")
	ErrConfigDecode  = errors.New("failed to decode config")
	ErrEventsPublish = errors.New("failed to publish events")
)

type (
	// Transport is the only way the sdk talks to the network. Execute either returns an error or a response, once per request.
	Transport interface {
		Execute(ctx context.Context, request *Request) (*Response, error)
	}
	Request struct {
		Header http.Header
		Method string
		URL    string
		Body   []byte
	}
	Response struct {
		Header     http.Header
		Body       []byte
		StatusCode int
	}
	Config struct {
		EnvironmentKey string              `yaml:"environmentKey" mapstructure:"environmentKey"`
		HostSuffix     string              `yaml:"hostSuffix" mapstructure:"hostSuffix"`
		APIProxyURL    string              `yaml:"apiProxyUrl" mapstructure:"apiProxyUrl"`
		RequestTimeout stdlibtime.Duration `yaml:"requestTimeout" mapstructure:"requestTimeout"`
		EnableEdgeDB   bool                `yaml:"enableEdgeDb" mapstructure:"enableEdgeDb"`
	}

	// Service fetches the user's config, keeps the active one, and publishes event batches.
	Service struct {
		transport Transport
		cache     cache.Store
		active    *atomic.Pointer[model.UserConfig]
		cfg       *Config
	}
)

// Private API.

const (
	sdkURLPrefix    = "https://sdk-api"
	eventsURLPrefix = "https://events"
	versionV1       = "/v1"
	configPath      = "/sdkConfig"
	eventsPath      = "/events"

	jsonContentType = "application/json"
	userAgent       = "flagsync-go"
)

type (
	reqTransport struct {
		client *req.Client
	}
	eventsRequest struct {
		User   *model.User       `json:"user"`
		Events []json.RawMessage `json:"events"`
	}
)
