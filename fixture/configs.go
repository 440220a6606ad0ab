// SPDX-License-Identifier: ice License 1.0

package fixture

// Canned sdkConfig responses. UpdatedConfigJSON differs from ConfigJSON by:
// my-flag changed value, my-string removed, new-flag added, my-feature changed variation, new-feature added.
const (
	ConfigJSON = `{
		"project": {"_id": "p1", "key": "project"},
		"environment": {"_id": "e1", "key": "development"},
		"features": {
			"my-feature": {"_id": "f1", "key": "my-feature", "type": "release", "_variation": "v1", "variationKey": "on"},
			"stable-feature": {"_id": "f2", "key": "stable-feature", "type": "ops", "_variation": "v3"}
		},
		"featureVariationMap": {"f1": "v1", "f2": "v3"},
		"variables": {
			"my-flag": {"_id": "var1", "key": "my-flag", "type": "Boolean", "value": false},
			"my-string": {"_id": "var2", "key": "my-string", "type": "String", "value": "hello"},
			"my-number": {"_id": "var3", "key": "my-number", "type": "Number", "value": 42},
			"my-json": {"_id": "var4", "key": "my-json", "type": "JSON", "value": {"color": "blue"}}
		}
	}`
	UpdatedConfigJSON = `{
		"project": {"_id": "p1", "key": "project"},
		"environment": {"_id": "e1", "key": "development"},
		"features": {
			"my-feature": {"_id": "f1", "key": "my-feature", "type": "release", "_variation": "v2", "variationKey": "off"},
			"stable-feature": {"_id": "f2", "key": "stable-feature", "type": "ops", "_variation": "v3"},
			"new-feature": {"_id": "f3", "key": "new-feature", "type": "experiment", "_variation": "v4"}
		},
		"featureVariationMap": {"f1": "v2", "f2": "v3", "f3": "v4"},
		"variables": {
			"my-flag": {"_id": "var1", "key": "my-flag", "type": "Boolean", "value": true},
			"my-number": {"_id": "var3", "key": "my-number", "type": "Number", "value": 42},
			"my-json": {"_id": "var4", "key": "my-json", "type": "JSON", "value": {"color": "blue"}},
			"new-flag": {"_id": "var5", "key": "new-flag", "type": "String", "value": "new"}
		}
	}`
	// EmptyVariationsConfigJSON decodes fine but gives flushing nothing to stamp events with.
	EmptyVariationsConfigJSON = `{"features": {}, "featureVariationMap": {}, "variables": {}}`
)
