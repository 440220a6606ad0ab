// SPDX-License-Identifier: ice License 1.0

package model

import (
	"maps"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/ice-blockchain/flagsync/time"
)

// Clone is taken before a user leaves the caller's hands (cache writes, requests).
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.CustomData = maps.Clone(u.CustomData)
	cp.PrivateCustomData = maps.Clone(u.PrivateCustomData)
	cp.CreatedDate = cloneTime(u.CreatedDate)
	cp.LastSeenDate = cloneTime(u.LastSeenDate)

	return &cp
}

// Public strips what must not leave the device in event payloads.
func (u *User) Public() *User {
	cp := u.Clone()
	if cp != nil {
		cp.PrivateCustomData = nil
	}

	return cp
}

// QueryItems lists the non-empty attributes of the user, in a stable order, for the config request.
// The identifier itself is not an attribute.
func (u *User) QueryItems() ([]*QueryItem, error) {
	if u == nil {
		return nil, nil
	}
	items := make([]*QueryItem, 0, 1+1+1+1+1+1+1+1+1+1+1+1+1+1+1+1)
	for _, attr := range []*QueryItem{
		{Name: "email", Value: u.Email},
		{Name: "name", Value: u.Name},
		{Name: "language", Value: u.Language},
		{Name: "country", Value: u.Country},
		{Name: "appVersion", Value: u.AppVersion},
		{Name: "appBuild", Value: u.AppBuild},
		{Name: "platform", Value: u.Platform},
		{Name: "platformVersion", Value: u.PlatformVersion},
		{Name: "deviceModel", Value: u.DeviceModel},
		{Name: "sdkType", Value: u.SDKType},
		{Name: "sdkVersion", Value: u.SDKVersion},
		{Name: "createdDate", Value: u.CreatedDate.UnixMilliString()},
		{Name: "lastSeenDate", Value: u.LastSeenDate.UnixMilliString()},
	} {
		if attr.Value != "" {
			items = append(items, attr)
		}
	}
	if u.IsAnonymous {
		items = append(items, &QueryItem{Name: "isAnonymous", Value: strconv.FormatBool(true)})
	}
	for _, data := range []struct {
		values map[string]any
		name   string
	}{{name: "customData", values: u.CustomData}, {name: "privateCustomData", values: u.PrivateCustomData}} {
		if len(data.values) == 0 {
			continue
		}
		encoded, err := json.Marshal(data.values)
		if err != nil {
			return nil, err //nolint:wrapcheck // The caller knows what it's encoding.
		}
		items = append(items, &QueryItem{Name: data.name, Value: string(encoded)})
	}

	return items, nil
}

func cloneTime(t *time.Time) *time.Time {
	if t.IsNil() {
		return nil
	}

	return time.New(*t.Time)
}
