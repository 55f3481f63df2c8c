package cascade

import "context"

// Initializable is an optional interface for constructed instances. When an
// instance exposes it, OnInit runs after the factory and before the service is
// marked ready; an error fails the construction attempt.
type Initializable interface {
	OnInit(ctx context.Context) error
}

// Shutdownable is an optional interface for constructed instances. When an
// instance exposes it, OnShutdown runs during container cleanup, in reverse
// dependency order. Errors are logged and do not abort cleanup of other
// services.
type Shutdownable interface {
	OnShutdown(ctx context.Context) error
}
