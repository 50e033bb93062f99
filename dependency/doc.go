// Package dependency provides a factory-based dependency registry.
//
// Bindings map a token to a factory, the tokens it depends on and whether the
// result is shared. Resolve walks dependencies depth-first, instantiates them in
// declaration order and passes the instances to the factory:
//
//	reg := dependency.NewRegistry(dependency.WithLogger(logger))
//	_ = reg.Register(dependency.Binding{
//	    Token:     "bus",
//	    Singleton: true,
//	    Factory: func(ctx context.Context, _ ...any) (any, error) {
//	        return bus.New(bus.DefaultConfig()), nil
//	    },
//	})
//	b, err := dependency.ResolveAs[*bus.Bus](ctx, reg, "bus")
//
// Registration rejects duplicates, malformed bindings and any binding whose
// transitive dependencies lead back to its own token, leaving the registry
// unchanged. A singleton factory runs at most once for the registry's lifetime,
// even under concurrent Resolve calls. A failed singleton construction is not
// cached, so a later Resolve tries again.
//
// Shutdown calls Shutdown(ctx) or Close() on every cached singleton in reverse
// creation order, logs individual failures and clears the cache. It is idempotent
// and after it Resolve fails with errors.ErrShuttingDown.
package dependency
