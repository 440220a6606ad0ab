// SPDX-License-Identifier: ice License 1.0

package client

import (
	"math"
	"reflect"

	"github.com/pkg/errors"

	"github.com/ice-blockchain/flagsync/model"
	"github.com/ice-blockchain/flagsync/time"
)

// Variable evaluates key against the active config. The config's value is used only if it has the same type as
// defaultValue, otherwise the result is defaulted.
func (c *Client) Variable(key string, defaultValue any) *model.EvaluatedVariable {
	evaluated := &model.EvaluatedVariable{
		Key:          key,
		Type:         variableType(defaultValue),
		Value:        defaultValue,
		DefaultValue: defaultValue,
		IsDefaulted:  true,
	}
	if variable := c.service.Config().Variable(key); variable != nil && variable.Type == evaluated.Type {
		if value, ok := coerce(variable.Value, defaultValue); ok {
			evaluated.Value = value
			evaluated.EvalReason = variable.EvalReason
			evaluated.IsDefaulted = false
		}
	}
	c.emitter.EmitVariableEvaluated(key, evaluated)
	c.recordEvaluation(evaluated)

	return evaluated
}

func (c *Client) recordEvaluation(evaluated *model.EvaluatedVariable) {
	if c.opts.DisableEventLogging || c.opts.DisableAutomaticEventLogging {
		return
	}
	eventType := model.EventTypeVariableEvaluated
	if evaluated.IsDefaulted {
		eventType = model.EventTypeVariableDefaulted
	}
	c.queue.Record(&model.Event{Type: eventType, Target: evaluated.Key, Value: automaticEventValue, ClientDate: time.Now()})
}

// Track queues a custom event. It is dropped silently when custom event logging is disabled.
func (c *Client) Track(event *model.Event) error {
	if err := event.Validate(); err != nil {
		return errors.Wrap(err, "can't track event")
	}
	if c.opts.DisableEventLogging || c.opts.DisableCustomEventLogging {
		return nil
	}
	tracked := *event
	if tracked.ClientDate.IsNil() {
		tracked.ClientDate = time.Now()
	}
	c.queue.Record(&tracked)

	return nil
}

func variableType(value any) string {
	switch value.(type) {
	case bool:
		return model.VariableTypeBoolean
	case string:
		return model.VariableTypeString
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return model.VariableTypeNumber
	case map[string]any, []any:
		return model.VariableTypeJSON
	default:
		return ""
	}
}

// coerce converts a decoded json value into the Go type of like. Numbers arrive as float64; a number that an integer
// default can't hold exactly (fractional, out of range) does not match.
//
//nolint:gocyclo,revive,cyclop // It's just a type switch.
func coerce(value, like any) (any, bool) {
	if number, isNumber := value.(float64); isNumber {
		switch like.(type) {
		case int:
			return integer[int](number)
		case int8:
			return integer[int8](number)
		case int16:
			return integer[int16](number)
		case int32:
			return integer[int32](number)
		case int64:
			return integer[int64](number)
		case uint:
			return integer[uint](number)
		case uint8:
			return integer[uint8](number)
		case uint16:
			return integer[uint16](number)
		case uint32:
			return integer[uint32](number)
		case uint64:
			return integer[uint64](number)
		case float32:
			if converted := float32(number); !math.IsInf(float64(converted), 0) || math.IsInf(number, 0) {
				return converted, true
			}

			return nil, false
		case float64:
			return number, true
		}
	}
	if value == nil || reflect.TypeOf(value) != reflect.TypeOf(like) {
		return nil, false
	}

	return value, true
}

func integer[T int | int8 | int16 | int32 | int64 | uint | uint8 | uint16 | uint32 | uint64](number float64) (any, bool) {
	var zero T
	bits := reflect.TypeOf(zero).Bits()
	low, high := 0.0, math.Ldexp(1, bits)
	if signed := zero-1 < zero; signed {
		low, high = -math.Ldexp(1, bits-1), math.Ldexp(1, bits-1)
	}
	if number != math.Trunc(number) || number < low || number >= high {
		return nil, false
	}

	return T(number), true
}
