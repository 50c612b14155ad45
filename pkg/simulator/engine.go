package simulator

import "context"

// Engine is a running TCP or UDP listener bound to one simulator
// (spec.md §2 ServerEngine, §4.2). Start binds the socket; Stop releases
// it. Stop must always be safe to call even if Start failed or was never
// called.
type Engine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
