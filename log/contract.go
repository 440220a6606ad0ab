// SPDX-License-Identifier: ice License 1.0

package log

import (
	"github.com/rs/zerolog"
)

// Private API.

const (
	applicationYAMLKey = "logger"
	stackFramesToSkip  = 2
	defaultLevel       = "info"
	jsonEncoder        = "json"
)

type (
	cfg struct {
		Encoder string `yaml:"encoder" mapstructure:"encoder"`
		Level   string `yaml:"level" mapstructure:"level"`
	}
)

// .
var (
	//nolint:gochecknoglobals // The sdk logs through one logger, hence it is global.
	logger *zerolog.Logger
)
