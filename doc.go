// Package cascade provides a staged, dependency-resolving service container
// for applications that boot many interdependent subsystems with wildly
// different construction costs.
//
// Services are declared once as a [Descriptor] (name, dependency names, stage,
// factory) and constructed at most once, even under concurrent access. The
// [StageImmediate] tier is initialized synchronously by [Container.Start];
// [StageBackgroundFast] and [StageBackgroundSlow] are cascaded on timers after
// startup returns, strictly in that order; [StageOnDemand] services are built
// lazily on first request.
//
//	c := cascade.New()
//	c.Register(cascade.Descriptor{
//		Name:  "cache",
//		Stage: cascade.StageImmediate,
//		Factory: func(ctx context.Context, deps cascade.Deps) (any, error) {
//			return NewCache(), nil
//		},
//	})
//	c.Register(cascade.Descriptor{
//		Name:         "index",
//		Dependencies: []string{"cache"},
//		Stage:        cascade.StageBackgroundFast,
//		Factory:      buildIndex,
//	})
//	c.Start(ctx)
//
//	idx, err := cascade.Get[*Index](ctx, c, "index")
//
// [Container.Get] blocks until the service is ready (resolving dependencies
// depth-first and detecting cycles); [Container.GetIfReady] never blocks and is
// safe on latency-sensitive paths.
package cascade
