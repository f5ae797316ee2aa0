package step

import "go.uber.org/fx"

// Module provides the step and collator registry with the built-in components registered.
// Applications add their own components with fx.Invoke(func(r *Registry) { r.RegisterStep(...) }).
var Module = fx.Options(
	fx.Provide(NewRegistry),
)
