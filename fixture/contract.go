// SPDX-License-Identifier: ice License 1.0

package fixture

import (
	"net/http/httptest"
	"net/url"
	"sync"
)

// Public API.

type (
	// API is an in-process stand-in for the remote sdk-api and events endpoints.
	API struct {
		server         *httptest.Server
		mx             *sync.Mutex
		configBody     string
		configRequests []url.Values
		eventBatches   []*EventsBatch
		configStatus   int
		eventsStatus   int
	}
	EventsBatch struct {
		User   map[string]any   `json:"user"`
		Events []map[string]any `json:"events"`
	}
)

// Private API.

// .
var (
	//nolint:gochecknoglobals // gin's mode is process wide.
	setModeOnce sync.Once
)

const (
	configPath = "/v1/sdkConfig"
	eventsPath = "/v1/events"
)
