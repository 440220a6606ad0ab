// SPDX-License-Identifier: ice License 1.0

package terror

// Public API.

type (
	// Err pairs a sentinel kind (what failed) with the underlying cause (why) and diagnostic data.
	Err struct {
		kind  error
		Cause error          `json:"cause,omitempty"`
		Data  map[string]any `json:"data,omitempty"`
	}
)
