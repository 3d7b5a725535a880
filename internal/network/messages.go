package network

import (
	"github.com/goccy/go-json"

	"github.com/bardlex/kristforge/internal/krist"
	"github.com/bardlex/kristforge/internal/state"
	"github.com/bardlex/kristforge/pkg/log"
)

// bootstrapResponse is the body of the websocket start endpoint
type bootstrapResponse struct {
	OK    bool   `json:"ok"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// blockInfo carries the block fields used across server messages
type blockInfo struct {
	ShortHash string `json:"short_hash"`
	Height    int64  `json:"height"`
	Value     int64  `json:"value"`
}

// serverMessage is the union of every inbound message shape we care about.
// Unknown fields and message types are ignored.
type serverMessage struct {
	ID        *int64     `json:"id,omitempty"`
	OK        *bool      `json:"ok,omitempty"`
	Type      string     `json:"type,omitempty"`
	Event     string     `json:"event,omitempty"`
	Error     string     `json:"error,omitempty"`
	Work      int64      `json:"work,omitempty"`
	NewWork   int64      `json:"new_work,omitempty"`
	Block     *blockInfo `json:"block,omitempty"`
	LastBlock *blockInfo `json:"last_block,omitempty"`
}

// submitMessage is the outbound block submission
type submitMessage struct {
	Type    string `json:"type"`
	ID      int64  `json:"id"`
	Address string `json:"address"`
	Nonce   string `json:"nonce"`
}

// dispatcher applies inbound server messages to the shared state and the
// submission slot. It is independent of the websocket so the protocol
// semantics are testable in isolation.
type dispatcher struct {
	shared    *state.Shared
	submit    *submitState
	callbacks Callbacks
	logger    *log.Logger
}

// handle parses one raw server message and dispatches it
func (d *dispatcher) handle(raw []byte) {
	d.logger.LogServerMessage("received", string(raw))

	var msg serverMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		d.logger.WithError(err).Warn("ignoring unparseable server message")
		return
	}

	switch {
	case msg.ID != nil && *msg.ID == d.submit.ID():
		d.handleSubmitReply(&msg)

	case msg.Type == "hello":
		if msg.LastBlock == nil {
			d.logger.Warn("hello message without last_block")
			return
		}
		d.setTarget(msg.LastBlock.ShortHash, msg.Work)

	case msg.Type == "event" && msg.Event == "block":
		if msg.Block == nil {
			d.logger.Warn("block event without block")
			return
		}
		d.setTarget(msg.Block.ShortHash, msg.NewWork)
	}
}

// handleSubmitReply correlates a reply with the outstanding submission
func (d *dispatcher) handleSubmitReply(msg *serverMessage) {
	solution, ok := d.submit.Get()
	if !ok {
		// id matched but nothing outstanding; nothing to correlate
		return
	}

	if msg.OK != nil && *msg.OK {
		var height, value int64
		if msg.Block != nil {
			height = msg.Block.Height
			value = msg.Block.Value
		}
		d.logger.LogBlockAccepted(solution.Address, solution.Nonce, height, value)
		d.callbacks.solved(solution, height, value)

		if msg.Block != nil {
			d.setTarget(msg.Block.ShortHash, msg.Work)
		}
	} else {
		d.logger.Warn("solution rejected",
			"nonce", solution.Nonce,
			"reason", msg.Error,
		)
		d.callbacks.rejected(solution, msg.Error)
	}

	d.submit.Clear()
}

// setTarget validates and installs a new mining target
func (d *dispatcher) setTarget(shortHash string, work int64) {
	target, err := krist.NewTarget(shortHash, work)
	if err != nil {
		d.logger.WithError(err).Warn("server sent invalid target")
		return
	}

	d.shared.SetTarget(target)
	d.logger.Debug("target updated", "prev_block", target.PrevBlock, "work", target.Work)
}
