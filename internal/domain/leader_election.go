package domain

import "context"

// LeaderElectionManager elects the single node that fires scheduled dispatch runs.
type LeaderElectionManager interface {
	// Campaign blocks until this node leads. The returned channel closes when
	// leadership is lost.
	Campaign(ctx context.Context) (<-chan struct{}, error)
	Resign(ctx context.Context) error
	IsLeader() bool
}
