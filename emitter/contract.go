// SPDX-License-Identifier: ice License 1.0

package emitter

import (
	"sync"

	"github.com/ice-blockchain/flagsync/model"
)

// Public API.

const (
	ChannelError Channel = iota
	ChannelInitialized
	ChannelConfigUpdated
	ChannelVariableUpdated
	ChannelVariableEvaluated
	ChannelFeatureUpdated
)

type (
	Channel uint8

	ErrorCallback             func(err error)
	InitializedCallback       func(initialized bool)
	ConfigUpdatedCallback     func(variables model.VariableSet)
	VariableUpdatedCallback   func(key string, variable *model.Variable)
	VariableEvaluatedCallback func(key string, variable *model.EvaluatedVariable)
	FeatureUpdatedCallback    func(key string, feature *model.Feature)

	Callback interface {
		ErrorCallback | InitializedCallback | ConfigUpdatedCallback |
			VariableUpdatedCallback | VariableEvaluatedCallback | FeatureUpdatedCallback
	}

	// Handler is the unit of subscription. Two handlers are the same only if they came from the same NewHandler call,
	// so the same callback wrapped twice is two distinct subscriptions.
	Handler[CB Callback] struct {
		callback CB
		id       uint64
	}

	// Emitter is the per sdk instance registry; the zero value is not usable, see New.
	Emitter struct {
		mx       *sync.Mutex
		channels map[Channel]any
	}
)

// Private API.

type (
	// | registry is the storage of a single channel: handlers scoped to a key, and handlers firing for every key.
	registry[CB Callback] struct {
		byKey  map[string][]*Handler[CB]
		global []*Handler[CB]
	}
)
