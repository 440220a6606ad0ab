// SPDX-License-Identifier: ice License 1.0

package model

import (
	"maps"

	"github.com/pkg/errors"

	"github.com/ice-blockchain/flagsync/time"
)

func (e *Event) Validate() error {
	if e == nil {
		return errors.Wrap(ErrInvalidEvent, "nil event")
	}

	if err := validate.Struct(e); err != nil {
		return errors.Wrapf(ErrInvalidEvent, "%v", err)
	}

	return nil
}

// Enrich returns the publishable copy of e, stamped for the given user and config snapshot. e itself is not touched.
func (e *Event) Enrich(userID string, featureVars FeatureVariationMap, now *time.Time) *Event {
	enriched := *e
	enriched.MetaData = maps.Clone(e.MetaData)
	enriched.FeatureVars = maps.Clone(featureVars)
	enriched.UserID = userID
	enriched.Date = now
	if e.ClientDate.IsNil() {
		enriched.ClientDate = now
	}

	return &enriched
}
