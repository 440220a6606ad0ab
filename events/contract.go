// SPDX-License-Identifier: ice License 1.0

package events

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/ice-blockchain/flagsync/model"
)

// Public API.

// .
var (
	ErrMissingUserOrFeatureVariationsMap = errors.New("flushing events requires a user id and a synchronized feature variation map")
)

type (
	ConfigSource interface {
		Config() *model.UserConfig
	}
	Publisher interface {
		PublishEvents(ctx context.Context, events []*model.Event, user *model.User, featureVars model.FeatureVariationMap) error
	}

	// Queue accumulates recorded events until they are flushed as one batch.
	// Flushed events are gone from the queue whether or not the batch made it to the remote.
	Queue struct {
		source    ConfigSource
		publisher Publisher
		mx        *sync.Mutex
		wg        *sync.WaitGroup
		stop      chan struct{}
		events    []*model.Event
	}
)
