// Package network implements the Krist node protocol: the HTTP bootstrap
// handshake, the websocket session, target updates, and the submission
// bridge between miner threads and the single-threaded event loop.
package network

import (
	"context"
	"fmt"
	"net/http"

	"github.com/btcsuite/websocket"
	"github.com/goccy/go-json"

	"github.com/bardlex/kristforge/internal/state"
	"github.com/bardlex/kristforge/pkg/circuit"
	"github.com/bardlex/kristforge/pkg/errors"
	"github.com/bardlex/kristforge/pkg/log"
)

// runner holds the per-Run network state. The websocket write path is owned
// exclusively by the event loop goroutine; the reader pump and the solution
// feeder only signal it over channels.
type runner struct {
	shared   *state.Shared
	opts     Options
	submit   *submitState
	dispatch *dispatcher
	logger   *log.Logger

	// wake is the cross-thread signal from the feeder into the event loop
	wake chan struct{}
}

// Run connects to the node and blocks, setting mining targets and
// submitting solutions, until the connection terminates without
// auto-reconnect or the shared state is stopped. On terminal exit the
// shared state is stopped so miners wind down too.
func Run(bootstrapURL string, shared *state.Shared, opts Options) error {
	logger := opts.logger().WithComponent("network")

	r := &runner{
		shared: shared,
		opts:   opts,
		submit: newSubmitState(),
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
	r.dispatch = &dispatcher{
		shared:    shared,
		submit:    r.submit,
		callbacks: opts.Callbacks,
		logger:    logger,
	}

	go r.feedSolutions()
	defer r.submit.Close()
	defer shared.Stop()

	breaker := circuit.New(nil)
	ctx := context.Background()

	for {
		wsURL, err := bootstrap(ctx, breaker, bootstrapURL, opts.UserAgent)
		if err != nil {
			logger.WithError(err).Error("bootstrap failed")
			return err
		}

		dropErr := r.runConnection(wsURL)

		if shared.IsStopped() {
			return nil
		}

		if !opts.AutoReconnect {
			return dropErr
		}

		// TODO: exponential backoff between reconnect attempts. Reconnects
		// are immediate: the circuit breaker wraps only the bootstrap
		// request, and a failed bootstrap ends Run, so a node whose bootstrap
		// succeeds but whose websocket dial fails is retried without delay
		logger.Info("reconnecting")
	}
}

// feedSolutions is the dedicated goroutine bridging the shared solution
// queue into the event loop. Set blocks while a previous submission is
// outstanding, enforcing one in-flight submission at a time.
func (r *runner) feedSolutions() {
	for !r.shared.IsStopped() {
		solution, ok := r.shared.PopSolution()
		if !ok {
			break
		}

		if !r.submit.Set(solution) {
			break
		}

		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
}

// runConnection drives one websocket session until it drops or the state
// is stopped
func (r *runner) runConnection(wsURL string) error {
	conn, err := dialWebsocket(wsURL, r.opts.UserAgent)
	if err != nil {
		return err
	}

	r.logger.LogConnection("connected", wsURL)
	r.opts.Callbacks.connect()

	incoming := make(chan []byte, 32)
	var readErr error
	go readPump(conn, incoming, &readErr)

	// In case a solution arrived while no connection was up
	select {
	case r.wake <- struct{}{}:
	default:
	}

	for {
		select {
		case <-r.shared.Done():
			conn.Close()
			return nil

		case raw, ok := <-incoming:
			if !ok {
				r.onDisconnect(conn)
				return dropError(readErr)
			}
			r.dispatch.handle(raw)

		case <-r.wake:
			r.broadcastSubmission(conn)
		}
	}
}

// onDisconnect handles a dropped connection: the target becomes unknown, any
// pending submission is abandoned, and the disconnect hook fires
func (r *runner) onDisconnect(conn *websocket.Conn) {
	conn.Close()
	r.logger.LogConnection("disconnected", "")

	r.shared.UnsetTarget()
	r.submit.Clear()
	r.opts.Callbacks.disconnect(r.opts.AutoReconnect)
}

// broadcastSubmission serializes and sends the outstanding submission, if any
func (r *runner) broadcastSubmission(conn *websocket.Conn) {
	solution, ok := r.submit.Get()
	if !ok {
		return
	}

	msg := submitMessage{
		Type:    "submit_block",
		ID:      r.submit.ID(),
		Address: solution.Address,
		Nonce:   solution.Nonce,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		r.logger.WithError(err).Error("failed to marshal submission")
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		// The read pump will observe the broken connection shortly
		r.logger.WithError(err).Error("failed to send submission")
		return
	}

	r.logger.LogServerMessage("sent", string(payload))
	r.logger.LogSubmission(solution.Address, solution.Nonce, msg.ID)
	r.opts.Callbacks.submitted(solution)
}

// dialWebsocket opens the websocket connection to the node
func dialWebsocket(wsURL, userAgent string) (*websocket.Conn, error) {
	header := make(http.Header)
	if userAgent != "" {
		header.Set("User-Agent", userAgent)
	}

	dialer := websocket.Dialer{}
	conn, _, err := dialer.Dial(wsURL, header)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeNetwork, "ws_dial",
			fmt.Sprintf("websocket connection to %s failed", wsURL))
	}
	return conn, nil
}

// readPump reads server messages into the incoming channel, closing it when
// the connection dies. The terminating error is published before the close,
// so the event loop may read it after the channel closes.
func readPump(conn *websocket.Conn, incoming chan<- []byte, readErr *error) {
	defer close(incoming)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			*readErr = err
			return
		}
		incoming <- msg
	}
}

// dropError wraps the read-pump error that ended the connection
func dropError(cause error) error {
	if cause == nil {
		return errors.New(errors.ErrorTypeNetwork, "ws_read", "connection dropped")
	}
	return errors.Wrap(cause, errors.ErrorTypeNetwork, "ws_read", "connection dropped").
		WithContext("reason", cause.Error())
}
