package lifecycle

import "context"

// Hook is a named cleanup task executed during shutdown.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}
