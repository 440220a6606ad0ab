// SPDX-License-Identifier: ice License 1.0

package emitter

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/ice-blockchain/flagsync/log"
	"github.com/ice-blockchain/flagsync/model"
)

// .
var (
	//nolint:gochecknoglobals // Identities must be unique across emitters.
	lastHandlerID atomic.Uint64
)

func New() *Emitter {
	return &Emitter{
		mx:       new(sync.Mutex),
		channels: make(map[Channel]any, int(ChannelFeatureUpdated)+1),
	}
}

func NewHandler[CB Callback](callback CB) *Handler[CB] {
	return &Handler[CB]{callback: callback, id: lastHandlerID.Add(1)}
}

func (h *Handler[CB]) ID() uint64 {
	return h.id
}

func (h *Handler[CB]) Channel() Channel {
	return channelOf[CB]()
}

// Subscribe stores handler under key, or in the channel's global list when no key is given.
// Keys are ignored on the error, initialized and configUpdated channels.
func Subscribe[CB Callback](e *Emitter, handler *Handler[CB], key ...string) {
	if handler == nil {
		return
	}
	e.mx.Lock()
	defer e.mx.Unlock()

	reg := registryOf[CB](e)
	if k, keyed := keyOf[CB](key); keyed {
		reg.byKey[k] = append(reg.byKey[k], handler)
	} else {
		reg.global = append(reg.global, handler)
	}
}

// Unsubscribe removes the first stored occurrence of handler from the list it was subscribed to. Unknown handlers are ignored.
func Unsubscribe[CB Callback](e *Emitter, handler *Handler[CB], key ...string) {
	if handler == nil {
		return
	}
	e.mx.Lock()
	defer e.mx.Unlock()

	reg := registryOf[CB](e)
	if k, keyed := keyOf[CB](key); keyed {
		if remaining := without(reg.byKey[k], handler); len(remaining) == 0 {
			delete(reg.byKey, k)
		} else {
			reg.byKey[k] = remaining
		}
	} else {
		reg.global = without(reg.global, handler)
	}
}

// Len is the number of stored handlers for the channel, globally or under the given key.
func (e *Emitter) Len(channel Channel, key ...string) int {
	switch channel {
	case ChannelError:
		return length[ErrorCallback](e, key)
	case ChannelInitialized:
		return length[InitializedCallback](e, key)
	case ChannelConfigUpdated:
		return length[ConfigUpdatedCallback](e, key)
	case ChannelVariableUpdated:
		return length[VariableUpdatedCallback](e, key)
	case ChannelVariableEvaluated:
		return length[VariableEvaluatedCallback](e, key)
	case ChannelFeatureUpdated:
		return length[FeatureUpdatedCallback](e, key)
	default:
		return 0
	}
}

func (e *Emitter) EmitError(err error) {
	for _, h := range snapshot[ErrorCallback](e, "") {
		invoke(ChannelError, "", func() { h.callback(err) })
	}
}

func (e *Emitter) EmitInitialized(initialized bool) {
	for _, h := range snapshot[InitializedCallback](e, "") {
		invoke(ChannelInitialized, "", func() { h.callback(initialized) })
	}
}

func (e *Emitter) EmitConfigUpdated(variables model.VariableSet) {
	for _, h := range snapshot[ConfigUpdatedCallback](e, "") {
		invoke(ChannelConfigUpdated, "", func() { h.callback(variables) })
	}
}

func (e *Emitter) EmitVariableUpdated(key string, variable *model.Variable) {
	for _, h := range snapshot[VariableUpdatedCallback](e, key) {
		invoke(ChannelVariableUpdated, key, func() { h.callback(key, variable) })
	}
}

func (e *Emitter) EmitVariableEvaluated(key string, variable *model.EvaluatedVariable) {
	for _, h := range snapshot[VariableEvaluatedCallback](e, key) {
		invoke(ChannelVariableEvaluated, key, func() { h.callback(key, variable) })
	}
}

func (e *Emitter) EmitFeatureUpdated(key string, feature *model.Feature) {
	for _, h := range snapshot[FeatureUpdatedCallback](e, key) {
		invoke(ChannelFeatureUpdated, key, func() { h.callback(key, feature) })
	}
}

// snapshot copies, under the lock, the handlers an emission must reach: the key's handlers first, then the global ones.
func snapshot[CB Callback](e *Emitter, key string) []*Handler[CB] {
	e.mx.Lock()
	defer e.mx.Unlock()

	reg := registryOf[CB](e)
	if !channelOf[CB]().keyed() {
		return slices.Clone(reg.global)
	}
	handlers := make([]*Handler[CB], 0, len(reg.byKey[key])+len(reg.global))
	handlers = append(handlers, reg.byKey[key]...)

	return append(handlers, reg.global...)
}

func length[CB Callback](e *Emitter, key []string) int {
	e.mx.Lock()
	defer e.mx.Unlock()

	reg := registryOf[CB](e)
	if k, keyed := keyOf[CB](key); keyed {
		return len(reg.byKey[k])
	}

	return len(reg.global)
}

// invoke runs one handler; a panicking handler must not starve the ones after it.
func invoke(channel Channel, key string, call func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Error(errors.Wrapf(mapErr(recovered), "[panic recover] %v handler failed", channel), "key", key)
		}
	}()
	call()
}

func registryOf[CB Callback](e *Emitter) *registry[CB] {
	channel := channelOf[CB]()
	if reg, found := e.channels[channel]; found {
		return reg.(*registry[CB]) //nolint:forcetypeassert,errcheck // The channel determines the type.
	}
	reg := &registry[CB]{byKey: make(map[string][]*Handler[CB])}
	e.channels[channel] = reg

	return reg
}

func channelOf[CB Callback]() Channel {
	switch any(*new(CB)).(type) {
	case ErrorCallback:
		return ChannelError
	case InitializedCallback:
		return ChannelInitialized
	case ConfigUpdatedCallback:
		return ChannelConfigUpdated
	case VariableUpdatedCallback:
		return ChannelVariableUpdated
	case VariableEvaluatedCallback:
		return ChannelVariableEvaluated
	default:
		return ChannelFeatureUpdated
	}
}

func keyOf[CB Callback](key []string) (string, bool) {
	if len(key) == 0 || !channelOf[CB]().keyed() {
		return "", false
	}

	return key[0], true
}

func without[CB Callback](handlers []*Handler[CB], handler *Handler[CB]) []*Handler[CB] {
	if idx := slices.IndexFunc(handlers, func(h *Handler[CB]) bool { return h.id == handler.id }); idx >= 0 {
		return slices.Delete(slices.Clone(handlers), idx, idx+1)
	}

	return handlers
}

func (c Channel) keyed() bool {
	return c == ChannelVariableUpdated || c == ChannelVariableEvaluated || c == ChannelFeatureUpdated
}

func (c Channel) String() string {
	switch c {
	case ChannelError:
		return "error"
	case ChannelInitialized:
		return "initialized"
	case ChannelConfigUpdated:
		return "configUpdated"
	case ChannelVariableUpdated:
		return "variableUpdated"
	case ChannelVariableEvaluated:
		return "variableEvaluated"
	case ChannelFeatureUpdated:
		return "featureUpdated"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}

func mapErr(maybeError any) error {
	if errString, ok := maybeError.(string); ok {
		return errors.New(errString)
	}
	if actualErr, ok := maybeError.(error); ok {
		return actualErr
	}

	return errors.Errorf("unexpected error: %#v", maybeError)
}
