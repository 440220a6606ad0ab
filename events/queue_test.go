// SPDX-License-Identifier: ice License 1.0

package events

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	stdlibtime "time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/flagsync/fixture"
	"github.com/ice-blockchain/flagsync/model"
	"github.com/ice-blockchain/flagsync/service"
	"github.com/ice-blockchain/flagsync/time"
)

var errPublishFailed = errors.New("publish failed")

type (
	staticSource struct {
		cfg *model.UserConfig
	}
	publishedBatch struct {
		user        *model.User
		featureVars model.FeatureVariationMap
		events      []*model.Event
	}
	recordingPublisher struct {
		err     error
		mx      sync.Mutex
		batches []*publishedBatch
	}
)

func (s *staticSource) Config() *model.UserConfig {
	return s.cfg
}

func (p *recordingPublisher) PublishEvents(_ context.Context, events []*model.Event, user *model.User, featureVars model.FeatureVariationMap) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.batches = append(p.batches, &publishedBatch{events: events, user: user, featureVars: featureVars})

	return p.err
}

func (p *recordingPublisher) Batches() []*publishedBatch {
	p.mx.Lock()
	defer p.mx.Unlock()

	return append([]*publishedBatch(nil), p.batches...)
}

func synchronizedSource() *staticSource {
	return &staticSource{cfg: &model.UserConfig{FeatureVariationMap: model.FeatureVariationMap{"f1": "v1"}}}
}

func TestFlushPublishesQueuedEventsInRecordingOrder(t *testing.T) {
	t.Parallel()
	publisher := new(recordingPublisher)
	q := New(synchronizedSource(), publisher)
	q.Record(&model.Event{Type: "first"})
	q.Record(nil)
	q.Record(&model.Event{Type: "second"})
	require.Equal(t, 2, q.Len())

	require.NoError(t, q.Flush(t.Context(), &model.User{UserID: "u1"}))
	assert.Zero(t, q.Len())
	batches := publisher.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].events, 2)
	assert.Equal(t, "first", batches[0].events[0].Type)
	assert.Equal(t, "second", batches[0].events[1].Type)
	assert.Equal(t, "u1", batches[0].user.UserID)
	assert.Equal(t, model.FeatureVariationMap{"f1": "v1"}, batches[0].featureVars)
}

func TestFlushWithoutPreconditionsLeavesTheQueueUntouched(t *testing.T) {
	t.Parallel()
	first, second := &model.Event{Type: "first"}, &model.Event{Type: "second"}
	for name, tc := range map[string]struct {
		source ConfigSource
		user   *model.User
	}{
		"no user":                  {source: synchronizedSource()},
		"no user id":               {source: synchronizedSource(), user: &model.User{Email: "a@b.c"}},
		"no config":                {source: new(staticSource), user: &model.User{UserID: "u1"}},
		"empty feature variations": {source: &staticSource{cfg: new(model.UserConfig)}, user: &model.User{UserID: "u1"}},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			publisher := new(recordingPublisher)
			q := New(tc.source, publisher)
			q.Record(first)
			q.Record(second)

			require.ErrorIs(t, q.Flush(t.Context(), tc.user), ErrMissingUserOrFeatureVariationsMap)
			assert.Equal(t, []*model.Event{first, second}, q.Events())
			assert.Empty(t, publisher.Batches())
		})
	}
}

func TestFlushDrainsTheQueueEvenWhenPublishingFails(t *testing.T) {
	t.Parallel()
	publisher := &recordingPublisher{err: errPublishFailed}
	q := New(synchronizedSource(), publisher)
	q.Record(&model.Event{Type: "lost"})

	require.ErrorIs(t, q.Flush(t.Context(), &model.User{UserID: "u1"}), errPublishFailed)
	assert.Zero(t, q.Len())
	require.Len(t, publisher.Batches(), 1)
}

func TestFlushOfEmptyQueueDoesNotPublish(t *testing.T) {
	t.Parallel()
	publisher := new(recordingPublisher)
	q := New(synchronizedSource(), publisher)

	require.NoError(t, q.Flush(t.Context(), &model.User{UserID: "u1"}))
	assert.Empty(t, publisher.Batches())
}

func TestEventsIsACopy(t *testing.T) {
	t.Parallel()
	q := New(synchronizedSource(), new(recordingPublisher))
	q.Record(&model.Event{Type: "a"})
	snapshot := q.Events()
	snapshot[0] = &model.Event{Type: "b"}
	q.Record(&model.Event{Type: "c"})

	assert.Len(t, snapshot, 1)
	assert.Equal(t, "a", q.Events()[0].Type)
}

func TestConcurrentRecordAndFlushNeverDuplicateOrLoseEvents(t *testing.T) {
	t.Parallel()
	const producers, perProducer = 8, 50
	publisher := new(recordingPublisher)
	q := New(synchronizedSource(), publisher)
	user := &model.User{UserID: "u1"}
	wg := new(sync.WaitGroup)
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perProducer {
				q.Record(&model.Event{Type: "custom"})
				if q.Len()%7 == 0 {
					assert.NoError(t, q.Flush(t.Context(), user))
				}
			}
		}()
	}
	wg.Wait()
	require.NoError(t, q.Flush(t.Context(), user))

	var published int
	for _, batch := range publisher.Batches() {
		published += len(batch.events)
	}
	assert.Equal(t, producers*perProducer, published)
}

func TestPeriodicFlushing(t *testing.T) {
	t.Parallel()
	publisher := &recordingPublisher{err: errPublishFailed}
	q := New(synchronizedSource(), publisher)
	var failures atomic.Int64
	q.Start(10*stdlibtime.Millisecond, func() *model.User { return &model.User{UserID: "u1"} }, func(err error) {
		assert.ErrorIs(t, err, errPublishFailed)
		failures.Add(1)
	})
	q.Start(stdlibtime.Millisecond, nil, nil)
	stdlibtime.Sleep(50 * stdlibtime.Millisecond)
	assert.Empty(t, publisher.Batches())

	q.Record(&model.Event{Type: "custom"})
	assert.Eventually(t, func() bool { return failures.Load() == 1 }, stdlibtime.Second, 5*stdlibtime.Millisecond)
	assert.Zero(t, q.Len())
	require.NoError(t, q.Close(t.Context(), &model.User{UserID: "u1"}))
	assert.Len(t, publisher.Batches(), 1)
}

func TestCloseFlushesWhatIsLeft(t *testing.T) {
	t.Parallel()
	publisher := new(recordingPublisher)
	q := New(synchronizedSource(), publisher)
	q.Start(stdlibtime.Hour, func() *model.User { return nil }, nil)
	q.Record(&model.Event{Type: "custom"})

	require.NoError(t, q.Close(t.Context(), &model.User{UserID: "u1"}))
	assert.Zero(t, q.Len())
	require.Len(t, publisher.Batches(), 1)
	require.NoError(t, q.Close(t.Context(), &model.User{UserID: "u1"}))
	assert.Len(t, publisher.Batches(), 1)
}

func TestRoundTripThroughTheEventsAPI(t *testing.T) {
	t.Parallel()
	api := fixture.NewAPI(t, fixture.ConfigJSON)
	svc := service.New(&service.Config{EnvironmentKey: "abc123", APIProxyURL: api.URL()}, nil, nil)
	user := &model.User{UserID: "u1", Email: "a@b.c", PrivateCustomData: map[string]any{"secret": 1}}
	_, err := svc.GetConfig(t.Context(), user)
	require.NoError(t, err)
	q := New(svc, svc)
	clientDate := time.New(stdlibtime.UnixMilli(1655303440552))
	original := &model.Event{Type: model.EventTypeCustom, Target: "purchase", Value: 9.5, ClientDate: clientDate, MetaData: map[string]any{"sku": "a1"}}
	q.Record(original)

	require.NoError(t, q.Flush(t.Context(), user))
	batches := api.EventBatches()
	require.Len(t, batches, 1)
	assert.Equal(t, "u1", batches[0].User["user_id"])
	assert.NotContains(t, batches[0].User, "privateCustomData")
	require.Len(t, batches[0].Events, 1)
	sent := batches[0].Events[0]
	assert.Equal(t, model.EventTypeCustom, sent["type"])
	assert.Equal(t, "purchase", sent["target"])
	assert.Equal(t, "u1", sent["user_id"])
	assert.Equal(t, "2022-06-15T14:30:40.552Z", sent["clientDate"])
	assert.NotEmpty(t, sent["date"])
	assert.Equal(t, map[string]any{"my-feature": "v1", "stable-feature": "v3"}, sent["featureVars"])
	assert.Equal(t, map[string]any{"sku": "a1"}, sent["metaData"])
	assert.Equal(t, 9.5, sent["value"])

	assert.Empty(t, original.UserID)
	assert.Nil(t, original.Date)
	assert.Nil(t, original.FeatureVars)
}

func TestRoundTripFailureStillDrains(t *testing.T) {
	t.Parallel()
	api := fixture.NewAPI(t, fixture.ConfigJSON)
	api.SetEventsStatus(http.StatusServiceUnavailable)
	svc := service.New(&service.Config{EnvironmentKey: "abc123", APIProxyURL: api.URL()}, nil, nil)
	user := &model.User{UserID: "u1"}
	_, err := svc.GetConfig(t.Context(), user)
	require.NoError(t, err)
	q := New(svc, svc)
	q.Record(&model.Event{Type: model.EventTypeCustom})

	require.ErrorIs(t, q.Flush(t.Context(), user), service.ErrEventsPublish)
	assert.Zero(t, q.Len())
	assert.Len(t, api.EventBatches(), 1)
}

type slowPublisher struct {
	started   chan struct{}
	delivered atomic.Int64
	cancelled atomic.Bool
}

func (p *slowPublisher) PublishEvents(ctx context.Context, events []*model.Event, _ *model.User, _ model.FeatureVariationMap) error {
	close(p.started)
	select {
	case <-ctx.Done():
		p.cancelled.Store(true)

		return ctx.Err()
	case <-stdlibtime.After(200 * stdlibtime.Millisecond):
		p.delivered.Add(int64(len(events)))

		return nil
	}
}

func TestCloseLetsAPeriodicFlushInProgressFinish(t *testing.T) {
	t.Parallel()
	publisher := &slowPublisher{started: make(chan struct{})}
	q := New(synchronizedSource(), publisher)
	q.Start(5*stdlibtime.Millisecond, func() *model.User { return &model.User{UserID: "u1"} }, func(err error) {
		assert.NoError(t, err)
	})
	q.Record(&model.Event{Type: model.EventTypeCustom})
	select {
	case <-publisher.started:
	case <-stdlibtime.After(5 * stdlibtime.Second):
		require.FailNow(t, "periodic flush never started")
	}

	require.NoError(t, q.Close(t.Context(), &model.User{UserID: "u1"}))
	assert.False(t, publisher.cancelled.Load())
	assert.EqualValues(t, 1, publisher.delivered.Load())
	assert.Zero(t, q.Len())
}

func TestDiscardDropsQueuedEventsWithoutPublishing(t *testing.T) {
	t.Parallel()
	publisher := new(recordingPublisher)
	q := New(synchronizedSource(), publisher)
	q.Record(&model.Event{Type: "a"})
	q.Record(&model.Event{Type: "b"})

	assert.Equal(t, 2, q.Discard())
	assert.Zero(t, q.Len())
	assert.Zero(t, q.Discard())
	require.NoError(t, q.Flush(t.Context(), &model.User{UserID: "u1"}))
	assert.Empty(t, publisher.Batches())
}
