package logger

import "go.uber.org/fx"

// Module installs the feeder log as fx's event logger.
var Module = fx.Options(
	fx.WithLogger(NewFxLoggerAdapter),
)
