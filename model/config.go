// SPDX-License-Identifier: ice License 1.0

package model

import (
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// .
var (
	//nolint:gochecknoglobals // Stateless and safe for concurrent use, it caches struct metadata.
	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// DecodeUserConfig is strict: any missing required field fails the whole decode.
func DecodeUserConfig(data []byte) (*UserConfig, error) {
	cfg := new(UserConfig)
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "malformed json: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *UserConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	for _, key := range sortedKeys(c.Variables) {
		if c.Variables[key].Value == nil {
			return errors.Wrapf(ErrInvalidConfig, "variables[%v].value is required", key)
		}
	}

	return nil
}

func (c *UserConfig) Variable(key string) *Variable {
	if c == nil {
		return nil
	}

	return c.Variables[key]
}

func (c *UserConfig) FeatureVariations() FeatureVariationMap {
	if c == nil {
		return nil
	}

	return c.FeatureVariationMap
}

// VariableSet is a shallow copy, so subscribers cannot reshape the active config.
func (c *UserConfig) VariableSet() VariableSet {
	if c == nil {
		return VariableSet{}
	}
	set := make(VariableSet, len(c.Variables))
	for key, variable := range c.Variables {
		set[key] = variable
	}

	return set
}

func (v *Variable) Equal(other *Variable) bool {
	if v == nil || other == nil {
		return v == other
	}

	return v.ID == other.ID && v.Key == other.Key && v.Type == other.Type && v.EvalReason == other.EvalReason && reflect.DeepEqual(v.Value, other.Value)
}

func (f *Feature) Equal(other *Feature) bool {
	if f == nil || other == nil {
		return f == other
	}

	return *f == *other
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}
