package metrics

import (
	"go.uber.org/fx"
)

// Module provides no-op observability hooks.
// The infrastructure modules replace them with fx.Decorate when metrics or tracing are enabled.
var Module = fx.Options(
	fx.Provide(NewNoOpMetricRecorder),
	fx.Provide(NewNoOpTracer),
)
