// SPDX-License-Identifier: ice License 1.0

package fixture

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
)

// NewAPI starts the fake api; it serves configBody on every config fetch until told otherwise, and is stopped with the test.
func NewAPI(tb testing.TB, configBody string) *API {
	tb.Helper()
	setModeOnce.Do(func() { gin.SetMode(gin.TestMode) })
	api := &API{mx: new(sync.Mutex), configBody: configBody, configStatus: http.StatusOK, eventsStatus: http.StatusCreated}
	router := gin.New()
	router.GET(configPath, api.getConfig)
	router.POST(eventsPath, api.postEvents(tb))
	api.server = httptest.NewServer(router)
	tb.Cleanup(api.server.Close)

	return api
}

func (a *API) URL() string {
	return a.server.URL
}

func (a *API) SetConfigResponse(status int, body string) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.configStatus, a.configBody = status, body
}

func (a *API) SetEventsStatus(status int) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.eventsStatus = status
}

func (a *API) ConfigRequests() []url.Values {
	a.mx.Lock()
	defer a.mx.Unlock()

	return slices.Clone(a.configRequests)
}

func (a *API) EventBatches() []*EventsBatch {
	a.mx.Lock()
	defer a.mx.Unlock()

	return slices.Clone(a.eventBatches)
}

func (a *API) getConfig(ctx *gin.Context) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.configRequests = append(a.configRequests, ctx.Request.URL.Query())
	ctx.Data(a.configStatus, "application/json", []byte(a.configBody))
}

func (a *API) postEvents(tb testing.TB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		assert.Equal(tb, "application/json", ctx.GetHeader("Content-Type"))
		assert.Equal(tb, "application/json", ctx.GetHeader("Accept"))
		batch := new(EventsBatch)
		body, err := io.ReadAll(ctx.Request.Body)
		if !assert.NoError(tb, err) || !assert.NoError(tb, json.Unmarshal(body, batch)) {
			ctx.AbortWithStatus(http.StatusBadRequest)

			return
		}

		a.mx.Lock()
		defer a.mx.Unlock()
		a.eventBatches = append(a.eventBatches, batch)
		ctx.JSON(a.eventsStatus, gin.H{"message": fmt.Sprintf("Successfully received %v events.", len(batch.Events))})
	}
}
