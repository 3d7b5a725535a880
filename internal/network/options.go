package network

import (
	"github.com/bardlex/kristforge/internal/krist"
	"github.com/bardlex/kristforge/pkg/log"
)

// Callbacks is the capability bag of network event hooks. Every hook is
// optional; nil hooks are no-ops.
type Callbacks struct {
	// OnConnect fires when a connection is established or reestablished
	OnConnect func()

	// OnDisconnect fires when the connection drops; reconnecting reports
	// whether a reconnection is being attempted
	OnDisconnect func(reconnecting bool)

	// OnSubmitted fires when a solution has been broadcast to the node
	OnSubmitted func(solution krist.Solution)

	// OnSolved fires when the node accepts a solution
	OnSolved func(solution krist.Solution, height, value int64)

	// OnRejected fires when the node rejects a solution
	OnRejected func(solution krist.Solution, reason string)
}

func (c Callbacks) connect() {
	if c.OnConnect != nil {
		c.OnConnect()
	}
}

func (c Callbacks) disconnect(reconnecting bool) {
	if c.OnDisconnect != nil {
		c.OnDisconnect(reconnecting)
	}
}

func (c Callbacks) submitted(solution krist.Solution) {
	if c.OnSubmitted != nil {
		c.OnSubmitted(solution)
	}
}

func (c Callbacks) solved(solution krist.Solution, height, value int64) {
	if c.OnSolved != nil {
		c.OnSolved(solution, height, value)
	}
}

func (c Callbacks) rejected(solution krist.Solution, reason string) {
	if c.OnRejected != nil {
		c.OnRejected(solution, reason)
	}
}

// Options configures the network runner
type Options struct {
	// AutoReconnect re-runs the bootstrap and reconnects in place when the
	// connection drops
	AutoReconnect bool

	// UserAgent is reported on the bootstrap request and websocket dial
	UserAgent string

	// Callbacks are the optional event hooks
	Callbacks Callbacks

	// Logger receives connection and protocol events; a nil logger is
	// replaced by one that logs only errors
	Logger *log.Logger
}

// logger returns the configured logger or an error-level fallback
func (o *Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.New("kristforge", "dev", "error", "text")
}
