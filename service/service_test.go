// SPDX-License-Identifier: ice License 1.0

package service

import (
	"context"
	"math"
	"net/http"
	"sync"
	"testing"
	stdlibtime "time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/flagsync/cache"
	"github.com/ice-blockchain/flagsync/fixture"
	"github.com/ice-blockchain/flagsync/model"
	"github.com/ice-blockchain/flagsync/terror"
	"github.com/ice-blockchain/flagsync/time"
)

type (
	scriptedResponse struct {
		resp *Response
		err  error
	}
	fakeTransport struct {
		mx        sync.Mutex
		requests  []*Request
		responses []*scriptedResponse
	}
)

func (f *fakeTransport) respond(body string, err error) *fakeTransport {
	f.mx.Lock()
	defer f.mx.Unlock()
	var resp *Response
	if err == nil {
		resp = &Response{Body: []byte(body), StatusCode: http.StatusOK}
	}
	f.responses = append(f.responses, &scriptedResponse{resp: resp, err: err})

	return f
}

func (f *fakeTransport) Execute(_ context.Context, request *Request) (*Response, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.requests = append(f.requests, request)
	if len(f.responses) == 0 {
		return &Response{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
	}
	next := f.responses[0]
	f.responses = f.responses[1:]

	return next.resp, next.err
}

func (f *fakeTransport) Requests() []*Request {
	f.mx.Lock()
	defer f.mx.Unlock()

	return append([]*Request(nil), f.requests...)
}

func TestConfigRequestWithoutAttributesOnlyCarriesTheEnvironmentKey(t *testing.T) {
	t.Parallel()
	transport := new(fakeTransport).respond(fixture.ConfigJSON, nil)
	svc := New(&Config{EnvironmentKey: "abc123"}, transport, nil)

	_, err := svc.GetConfig(t.Context(), &model.User{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, transport.Requests(), 1)
	assert.Equal(t, http.MethodGet, transport.Requests()[0].Method)
	assert.Equal(t, "https://sdk-api.devcycle.com/v1/sdkConfig?envKey=abc123", transport.Requests()[0].URL)
}

func TestConfigRequestPutsTheEnvironmentKeyLast(t *testing.T) {
	t.Parallel()
	transport := new(fakeTransport)
	svc := New(&Config{EnvironmentKey: "abc123", HostSuffix: ".example.com", EnableEdgeDB: true}, transport, nil)
	user := &model.User{UserID: "u1", Name: "Jane Doe", Country: "CA", CustomData: map[string]any{"plan": "pro"}}

	configURL, err := svc.configURL(user)
	require.NoError(t, err)
	assert.Equal(t,
		"https://sdk-api.example.com/v1/sdkConfig?name=Jane+Doe&country=CA&customData=%7B%22plan%22%3A%22pro%22%7D&enableEdgeDB=true&envKey=abc123",
		configURL)

	_, err = svc.configURL(&model.User{UserID: "u1", CustomData: map[string]any{"bad": math.Inf(1)}})
	require.Error(t, err)
}

func TestProxyURLReplacesBothHosts(t *testing.T) {
	t.Parallel()
	transport := new(fakeTransport)
	svc := New(&Config{EnvironmentKey: "abc123", APIProxyURL: "localhost:4000/"}, transport, nil)
	configURL, err := svc.configURL(&model.User{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "https://localhost:4000/v1/sdkConfig?envKey=abc123", configURL)

	require.NoError(t, svc.PublishEvents(t.Context(), nil, &model.User{UserID: "u1"}, nil))
	assert.Equal(t, "https://localhost:4000/v1/events", transport.Requests()[0].URL)
}

func TestGetConfigActivatesAndCaches(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	store := cache.NewMemory(stdlibtime.Hour)
	svc := New(&Config{EnvironmentKey: "abc123"}, new(fakeTransport).respond(fixture.ConfigJSON, nil), store)
	require.Nil(t, svc.Config())

	cfg, err := svc.GetConfig(ctx, &model.User{UserID: "u1"})
	require.NoError(t, err)
	assert.Same(t, cfg, svc.Config())
	assert.Equal(t, model.FeatureVariationMap{"f1": "v1", "f2": "v3"}, cfg.FeatureVariationMap)

	entry, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, &model.User{UserID: "u1"}, entry.User)
	assert.JSONEq(t, fixture.ConfigJSON, string(entry.Config))
}

func TestFailedFetchesLeaveTheActiveConfigUntouched(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	errBoom := errors.New("boom")
	transport := new(fakeTransport).
		respond(fixture.ConfigJSON, nil).
		respond("", terror.New(ErrTransport, errBoom, nil)).
		respond("", nil).
		respond(`{"features": {}}`, nil).
		respond(`not json`, nil)
	store := cache.NewMemory(0)
	svc := New(&Config{EnvironmentKey: "abc123"}, transport, store)
	active, err := svc.GetConfig(ctx, &model.User{UserID: "u1"})
	require.NoError(t, err)
	snapshot, err := json.Marshal(active)
	require.NoError(t, err)

	_, err = svc.GetConfig(ctx, &model.User{UserID: "u2"})
	require.ErrorIs(t, err, ErrConfigFetch)
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, errBoom)

	_, err = svc.GetConfig(ctx, &model.User{UserID: "u3"})
	require.ErrorIs(t, err, ErrConfigFetch)

	_, err = svc.GetConfig(ctx, &model.User{UserID: "u4"})
	require.ErrorIs(t, err, ErrConfigDecode)
	require.ErrorIs(t, err, model.ErrInvalidConfig)

	_, err = svc.GetConfig(ctx, &model.User{UserID: "u5"})
	require.ErrorIs(t, err, ErrConfigDecode)

	assert.Same(t, active, svc.Config())
	after, err := json.Marshal(svc.Config())
	require.NoError(t, err)
	assert.Equal(t, snapshot, after)

	entry, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u5", entry.User.UserID)
	assert.JSONEq(t, fixture.ConfigJSON, string(entry.Config))

	_, err = svc.GetConfig(ctx, nil)
	require.ErrorIs(t, err, ErrConfigFetch)
}

func TestPublishEventsSendsOneEnrichedBatch(t *testing.T) {
	t.Parallel()
	transport := new(fakeTransport)
	svc := New(&Config{EnvironmentKey: "abc123"}, transport, nil)
	clientDate := time.New(stdlibtime.UnixMilli(1655303440552))
	events := []*model.Event{
		{Type: "click", Target: "button", Value: 2, ClientDate: clientDate, MetaData: map[string]any{"screen": "home"}},
		{Type: "broken", MetaData: map[string]any{"unserializable": make(chan int)}},
		{Type: "view"},
	}
	user := &model.User{UserID: "u1", PrivateCustomData: map[string]any{"ssn": "secret"}}

	require.NoError(t, svc.PublishEvents(t.Context(), events, user, model.FeatureVariationMap{"f1": "v1"}))
	require.Len(t, transport.Requests(), 1)
	request := transport.Requests()[0]
	assert.Equal(t, http.MethodPost, request.Method)
	assert.Equal(t, "https://events.devcycle.com/v1/events", request.URL)
	assert.Equal(t, "application/json", request.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", request.Header.Get("Accept"))

	var body struct {
		User   map[string]any   `json:"user"`
		Events []map[string]any `json:"events"`
	}
	require.NoError(t, json.Unmarshal(request.Body, &body))
	assert.Equal(t, map[string]any{"user_id": "u1"}, body.User)
	require.Len(t, body.Events, 2)
	assert.Equal(t, "click", body.Events[0]["type"])
	assert.Equal(t, "button", body.Events[0]["target"])
	assert.Equal(t, 2.0, body.Events[0]["value"])
	assert.Equal(t, map[string]any{"screen": "home"}, body.Events[0]["metaData"])
	assert.Equal(t, "u1", body.Events[0]["user_id"])
	assert.Equal(t, map[string]any{"f1": "v1"}, body.Events[0]["featureVars"])
	assert.Equal(t, "2022-06-15T14:30:40.552Z", body.Events[0]["clientDate"])
	assert.NotEmpty(t, body.Events[0]["date"])
	assert.Equal(t, "view", body.Events[1]["type"])
	require.Contains(t, body.Events[1], "value")
	assert.Equal(t, 0.0, body.Events[1]["value"])
	assert.Equal(t, body.Events[1]["date"], body.Events[1]["clientDate"])

	assert.Equal(t, &model.Event{Type: "view"}, events[2])
	assert.Equal(t, map[string]any{"ssn": "secret"}, user.PrivateCustomData)
}

func TestPublishEventsReportsTransportFailures(t *testing.T) {
	t.Parallel()
	transport := new(fakeTransport).respond("", terror.New(ErrTransport, errors.New("connection reset"), nil))
	svc := New(&Config{EnvironmentKey: "abc123"}, transport, nil)

	err := svc.PublishEvents(t.Context(), []*model.Event{{Type: "click"}}, &model.User{UserID: "u1"}, model.FeatureVariationMap{"f1": "v1"})
	require.ErrorIs(t, err, ErrEventsPublish)
	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1, terror.As(err).Data["events"])
}

func TestPublishEventsWithoutResponseFails(t *testing.T) {
	t.Parallel()
	transport := &fakeTransport{responses: []*scriptedResponse{{}}}
	svc := New(&Config{EnvironmentKey: "abc123"}, transport, nil)

	err := svc.PublishEvents(t.Context(), []*model.Event{{Type: "click"}}, &model.User{UserID: "u1"}, model.FeatureVariationMap{"f1": "v1"})
	require.ErrorIs(t, err, ErrEventsPublish)
	assert.Len(t, transport.Requests(), 1)
}

func TestServiceAgainstTheRemoteAPI(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(t.Context(), 30*stdlibtime.Second)
	defer cancel()
	api := fixture.NewAPI(t, fixture.ConfigJSON)
	svc := New(&Config{EnvironmentKey: "abc123", APIProxyURL: api.URL(), RequestTimeout: 10 * stdlibtime.Second}, nil, nil)
	user := &model.User{UserID: "u1", Email: "u1@example.com"}

	cfg, err := svc.GetConfig(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "my-flag", cfg.Variable("my-flag").Key)
	require.Len(t, api.ConfigRequests(), 1)
	assert.Equal(t, "abc123", api.ConfigRequests()[0].Get("envKey"))
	assert.Equal(t, "u1@example.com", api.ConfigRequests()[0].Get("email"))

	require.NoError(t, svc.PublishEvents(ctx, []*model.Event{{Type: "click"}}, user, cfg.FeatureVariationMap))
	require.Len(t, api.EventBatches(), 1)
	assert.Equal(t, "u1", api.EventBatches()[0].User["user_id"])
	assert.Equal(t, "click", api.EventBatches()[0].Events[0]["type"])

	api.SetConfigResponse(http.StatusInternalServerError, `{"message":"oops"}`)
	_, err = svc.GetConfig(ctx, user)
	require.ErrorIs(t, err, ErrConfigFetch)
	require.ErrorIs(t, err, ErrTransport)
	transportErr := terror.As(terror.As(err).Cause)
	require.NotNil(t, transportErr)
	assert.Equal(t, http.StatusInternalServerError, transportErr.Data["statusCode"])
	assert.JSONEq(t, `{"message":"oops"}`, transportErr.Data["body"].(string)) //nolint:forcetypeassert // .
	assert.Contains(t, transportErr.Data["url"], "/v1/sdkConfig?")
	assert.Same(t, cfg, svc.Config())

	api.SetEventsStatus(http.StatusBadRequest)
	require.ErrorIs(t, svc.PublishEvents(ctx, []*model.Event{{Type: "click"}}, user, cfg.FeatureVariationMap), ErrTransport)
}
