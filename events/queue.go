// SPDX-License-Identifier: ice License 1.0

package events

import (
	"context"
	"slices"
	"sync"
	stdlibtime "time"

	"github.com/pkg/errors"

	"github.com/ice-blockchain/flagsync/log"
	"github.com/ice-blockchain/flagsync/model"
)

func New(source ConfigSource, publisher Publisher) *Queue {
	return &Queue{source: source, publisher: publisher, mx: new(sync.Mutex), wg: new(sync.WaitGroup)}
}

func (q *Queue) Record(event *model.Event) {
	if event == nil {
		return
	}
	q.mx.Lock()
	defer q.mx.Unlock()
	q.events = append(q.events, event)
}

func (q *Queue) Len() int {
	q.mx.Lock()
	defer q.mx.Unlock()

	return len(q.events)
}

// Events is a copy of the queued events, oldest first.
func (q *Queue) Events() []*model.Event {
	q.mx.Lock()
	defer q.mx.Unlock()

	return slices.Clone(q.events)
}

// Flush publishes everything queued so far for user. Without a user id or a feature variation map nothing is sent and
// nothing is dropped. Otherwise the queue is drained before the publisher is called, so a failed publish loses the batch.
func (q *Queue) Flush(ctx context.Context, user *model.User) error {
	q.mx.Lock()
	featureVars := q.source.Config().FeatureVariations()
	if user == nil || user.UserID == "" || len(featureVars) == 0 {
		q.mx.Unlock()

		return ErrMissingUserOrFeatureVariationsMap
	}
	if len(q.events) == 0 {
		q.mx.Unlock()

		return nil
	}
	batch := q.events
	q.events = nil
	q.mx.Unlock()

	return errors.Wrapf(q.publisher.PublishEvents(ctx, batch, user.Clone(), featureVars), "failed to publish %v events", len(batch))
}

// Start flushes every interval, skipping ticks with nothing queued. Failures go to onError, the queue keeps going.
func (q *Queue) Start(interval stdlibtime.Duration, user func() *model.User, onError func(error)) {
	q.mx.Lock()
	defer q.mx.Unlock()
	if q.stop != nil || interval <= 0 {
		return
	}
	q.stop = make(chan struct{})
	q.wg.Add(1)
	go q.flushPeriodically(q.stop, interval, user, onError)
}

func (q *Queue) flushPeriodically(stop <-chan struct{}, interval stdlibtime.Duration, user func() *model.User, onError func(error)) {
	defer q.wg.Done()
	log.Debug("events queue, starting periodic flushing", "interval", interval)
	defer log.Debug("events queue, stopped periodic flushing")
	ticker := stdlibtime.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if q.Len() == 0 {
				continue
			}
			// Not bound to stop: a detached batch must still be published.
			if err := q.Flush(context.Background(), user()); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}

// Discard empties the queue without publishing anything and reports how many events were dropped.
func (q *Queue) Discard() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	dropped := len(q.events)
	q.events = nil

	return dropped
}

// Close stops periodic flushing, waiting for a flush in progress, then flushes what is left.
func (q *Queue) Close(ctx context.Context, user *model.User) error {
	q.mx.Lock()
	stop := q.stop
	q.stop = nil
	q.mx.Unlock()
	if stop != nil {
		close(stop)
		q.wg.Wait()
	}
	if q.Len() == 0 {
		return nil
	}

	return errors.Wrap(q.Flush(ctx, user), "final flush failed")
}
