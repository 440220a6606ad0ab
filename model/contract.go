// SPDX-License-Identifier: ice License 1.0

package model

import (
	"github.com/pkg/errors"

	"github.com/ice-blockchain/flagsync/time"
)

// Public API.

const (
	VariableTypeString  = "String"
	VariableTypeBoolean = "Boolean"
	VariableTypeNumber  = "Number"
	VariableTypeJSON    = "JSON"

	EventTypeVariableEvaluated = "variableEvaluated"
	EventTypeVariableDefaulted = "variableDefaulted"
	EventTypeCustom            = "customEvent"
)

// .
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrInvalidEvent  = errors.New("invalid event")
)

type (
	// VariableSet is what configUpdated subscribers receive, keyed by variable key.
	VariableSet = map[string]*Variable
	// FeatureVariationMap maps a feature id to the variation id the user was bucketed into.
	FeatureVariationMap = map[string]string

	User struct {
		CreatedDate       *time.Time     `json:"createdDate,omitempty" msgpack:"createdDate,omitempty"`
		LastSeenDate      *time.Time     `json:"lastSeenDate,omitempty" msgpack:"lastSeenDate,omitempty"`
		CustomData        map[string]any `json:"customData,omitempty" msgpack:"customData,omitempty"`
		PrivateCustomData map[string]any `json:"privateCustomData,omitempty" msgpack:"privateCustomData,omitempty"`
		UserID            string         `json:"user_id,omitempty" msgpack:"user_id,omitempty"` //nolint:tagliatelle // Remote api contract.
		Email             string         `json:"email,omitempty" msgpack:"email,omitempty"`
		Name              string         `json:"name,omitempty" msgpack:"name,omitempty"`
		Language          string         `json:"language,omitempty" msgpack:"language,omitempty"`
		Country           string         `json:"country,omitempty" msgpack:"country,omitempty"`
		AppVersion        string         `json:"appVersion,omitempty" msgpack:"appVersion,omitempty"`
		AppBuild          string         `json:"appBuild,omitempty" msgpack:"appBuild,omitempty"`
		Platform          string         `json:"platform,omitempty" msgpack:"platform,omitempty"`
		PlatformVersion   string         `json:"platformVersion,omitempty" msgpack:"platformVersion,omitempty"`
		DeviceModel       string         `json:"deviceModel,omitempty" msgpack:"deviceModel,omitempty"`
		SDKType           string         `json:"sdkType,omitempty" msgpack:"sdkType,omitempty"`
		SDKVersion        string         `json:"sdkVersion,omitempty" msgpack:"sdkVersion,omitempty"`
		IsAnonymous       bool           `json:"isAnonymous,omitempty" msgpack:"isAnonymous,omitempty"`
	}
	QueryItem struct {
		Name  string
		Value string
	}

	// UserConfig is the decoded sdkConfig response. It is never mutated once built, a newer fetch supersedes it.
	UserConfig struct {
		Project             *Project             `json:"project,omitempty"`
		Environment         *Environment         `json:"environment,omitempty"`
		Features            map[string]*Feature  `json:"features" validate:"required,dive,required"`
		FeatureVariationMap FeatureVariationMap  `json:"featureVariationMap" validate:"required"`
		Variables           map[string]*Variable `json:"variables" validate:"required,dive,required"`
	}
	Project struct {
		ID  string `json:"_id"` //nolint:tagliatelle // Remote api contract.
		Key string `json:"key"`
	}
	Environment struct {
		ID  string `json:"_id"` //nolint:tagliatelle // Remote api contract.
		Key string `json:"key"`
	}
	Feature struct {
		ID            string `json:"_id" validate:"required"`        //nolint:tagliatelle // Remote api contract.
		Key           string `json:"key" validate:"required"`
		Type          string `json:"type" validate:"required"`
		Variation     string `json:"_variation" validate:"required"` //nolint:tagliatelle // Remote api contract.
		VariationKey  string `json:"variationKey,omitempty"`
		VariationName string `json:"variationName,omitempty"`
		EvalReason    string `json:"evalReason,omitempty"`
	}
	Variable struct {
		Value      any    `json:"value"`
		ID         string `json:"_id" validate:"required"` //nolint:tagliatelle // Remote api contract.
		Key        string `json:"key" validate:"required"`
		Type       string `json:"type" validate:"required,oneof=String Boolean Number JSON"`
		EvalReason string `json:"evalReason,omitempty"`
	}
	EvaluatedVariable struct {
		Value        any
		DefaultValue any
		Key          string
		Type         string
		EvalReason   string
		IsDefaulted  bool
	}

	// Event is recorded by the host. Publishing works on enriched copies, see Enrich.
	Event struct {
		ClientDate  *time.Time          `json:"clientDate,omitempty"`
		Date        *time.Time          `json:"date,omitempty"`
		MetaData    map[string]any      `json:"metaData,omitempty"`
		FeatureVars FeatureVariationMap `json:"featureVars,omitempty"`
		Type        string              `json:"type" validate:"required"`
		Target      string              `json:"target,omitempty"`
		UserID      string              `json:"user_id,omitempty"` //nolint:tagliatelle // Remote api contract.
		Value       float64             `json:"value"`
	}
)
