package network

import (
	"fmt"
	"testing"

	"github.com/goccy/go-json"

	"github.com/bardlex/kristforge/internal/krist"
	"github.com/bardlex/kristforge/internal/state"
	"github.com/bardlex/kristforge/pkg/log"
)

func testLogger() *log.Logger {
	return log.New("kristforge", "test", "error", "text")
}

func newTestDispatcher(t *testing.T) (*dispatcher, *state.Shared, *submitState, *callbackRecorder) {
	t.Helper()

	shared, err := state.New("k5ztameslf")
	if err != nil {
		t.Fatalf("state.New() error: %v", err)
	}

	submit := newSubmitState()
	rec := &callbackRecorder{}

	d := &dispatcher{
		shared:    shared,
		submit:    submit,
		callbacks: rec.callbacks(),
		logger:    testLogger(),
	}
	return d, shared, submit, rec
}

// callbackRecorder captures callback invocations for assertions
type callbackRecorder struct {
	solved    []krist.Solution
	heights   []int64
	values    []int64
	rejected  []krist.Solution
	reasons   []string
	submitted []krist.Solution
}

func (r *callbackRecorder) callbacks() Callbacks {
	return Callbacks{
		OnSolved: func(s krist.Solution, height, value int64) {
			r.solved = append(r.solved, s)
			r.heights = append(r.heights, height)
			r.values = append(r.values, value)
		},
		OnRejected: func(s krist.Solution, reason string) {
			r.rejected = append(r.rejected, s)
			r.reasons = append(r.reasons, reason)
		},
		OnSubmitted: func(s krist.Solution) {
			r.submitted = append(r.submitted, s)
		},
	}
}

func TestDispatch_Hello(t *testing.T) {
	d, shared, _, _ := newTestDispatcher(t)

	d.handle([]byte(`{"ok":true,"type":"hello","last_block":{"short_hash":"aaaaaaaaaaaa"},"work":100000}`))

	target, ok := shared.GetTargetNow()
	if !ok {
		t.Fatal("Expected target after hello")
	}
	if target.PrevBlock != "aaaaaaaaaaaa" || target.Work != 100000 {
		t.Errorf("Target = %v", target)
	}
}

func TestDispatch_BlockEvent(t *testing.T) {
	d, shared, _, _ := newTestDispatcher(t)

	d.handle([]byte(`{"type":"event","event":"block","block":{"short_hash":"bbbbbbbbbbbb"},"new_work":50000}`))

	target, ok := shared.GetTargetNow()
	if !ok {
		t.Fatal("Expected target after block event")
	}
	if target.PrevBlock != "bbbbbbbbbbbb" || target.Work != 50000 {
		t.Errorf("Target = %v", target)
	}
}

func TestDispatch_IgnoresUnknownAndInvalid(t *testing.T) {
	d, shared, _, rec := newTestDispatcher(t)

	d.handle([]byte(`{"type":"keepalive"}`))
	d.handle([]byte(`not json at all`))
	d.handle([]byte(`{"type":"event","event":"transaction"}`))
	// Target with a bad short hash must be dropped
	d.handle([]byte(`{"type":"hello","last_block":{"short_hash":"short"},"work":1}`))

	if _, ok := shared.GetTargetNow(); ok {
		t.Error("No message should have set a target")
	}
	if len(rec.solved)+len(rec.rejected)+len(rec.submitted) != 0 {
		t.Error("No callbacks should have fired")
	}
}

func TestDispatch_SubmitReplyAccepted(t *testing.T) {
	d, shared, submit, rec := newTestDispatcher(t)

	sol := demoSolution("aanonce00001")
	submit.Set(sol)

	reply := fmt.Sprintf(`{"id":%d,"ok":true,"block":{"short_hash":"cccccccccccc","height":4242,"value":25},"work":75000}`, submit.ID())
	d.handle([]byte(reply))

	if len(rec.solved) != 1 || rec.solved[0] != sol {
		t.Fatalf("Expected one solved callback, got %v", rec.solved)
	}
	if rec.heights[0] != 4242 || rec.values[0] != 25 {
		t.Errorf("solved with height=%d value=%d, want 4242/25", rec.heights[0], rec.values[0])
	}

	// The reply carries the next target
	target, ok := shared.GetTargetNow()
	if !ok || target.PrevBlock != "cccccccccccc" || target.Work != 75000 {
		t.Errorf("Target after accept = %v/%v", target, ok)
	}

	// The slot is cleared and the id advanced
	if _, ok := submit.Get(); ok {
		t.Error("Expected cleared submission slot")
	}
	if submit.ID() != 2 {
		t.Errorf("ID after accept = %d, want 2", submit.ID())
	}
}

func TestDispatch_SubmitReplyRejected(t *testing.T) {
	d, _, submit, rec := newTestDispatcher(t)

	sol := demoSolution("aanonce00001")
	submit.Set(sol)

	reply := fmt.Sprintf(`{"id":%d,"ok":false,"error":"invalid_nonce"}`, submit.ID())
	d.handle([]byte(reply))

	if len(rec.rejected) != 1 || rec.rejected[0] != sol {
		t.Fatalf("Expected one rejected callback, got %v", rec.rejected)
	}
	if rec.reasons[0] != "invalid_nonce" {
		t.Errorf("reason = %q, want %q", rec.reasons[0], "invalid_nonce")
	}

	if len(rec.solved) != 0 {
		t.Error("Rejected reply must not fire solved")
	}

	// Rejection still clears the slot so the next solution can go out
	if _, ok := submit.Get(); ok {
		t.Error("Expected cleared submission slot after rejection")
	}
}

func TestDispatch_StaleReplyIgnored(t *testing.T) {
	d, _, submit, rec := newTestDispatcher(t)

	sol := demoSolution("aanonce00001")
	submit.Set(sol)
	oldID := submit.ID()

	// The submission is acknowledged and cleared
	d.handle([]byte(fmt.Sprintf(`{"id":%d,"ok":true,"block":{"short_hash":"cccccccccccc","height":1,"value":25},"work":75000}`, oldID)))

	// A late duplicate reply with the old id arrives after the clear
	d.handle([]byte(fmt.Sprintf(`{"id":%d,"ok":true,"block":{"short_hash":"dddddddddddd","height":2,"value":25},"work":75000}`, oldID)))

	if len(rec.solved) != 1 {
		t.Errorf("Expected exactly one solved callback, got %d", len(rec.solved))
	}
	if submit.ID() != oldID+1 {
		t.Errorf("ID = %d, want %d", submit.ID(), oldID+1)
	}
}

func TestDispatch_ReplyWithoutOutstandingSolution(t *testing.T) {
	d, _, submit, rec := newTestDispatcher(t)

	// id matches the current id, but nothing was submitted
	d.handle([]byte(fmt.Sprintf(`{"id":%d,"ok":true,"block":{"short_hash":"cccccccccccc","height":1,"value":25},"work":75000}`, submit.ID())))

	if len(rec.solved) != 0 {
		t.Error("No solved callback without an outstanding submission")
	}
	if submit.ID() != 1 {
		t.Errorf("ID = %d, want unchanged 1", submit.ID())
	}
}

func TestSubmitMessageWireFormat(t *testing.T) {
	msg := submitMessage{
		Type:    "submit_block",
		ID:      3,
		Address: "k5ztameslf",
		Nonce:   "aanonce00001",
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if decoded["type"] != "submit_block" {
		t.Errorf("type = %v", decoded["type"])
	}
	if decoded["id"] != float64(3) {
		t.Errorf("id = %v", decoded["id"])
	}
	if decoded["address"] != "k5ztameslf" {
		t.Errorf("address = %v", decoded["address"])
	}
	if decoded["nonce"] != "aanonce00001" {
		t.Errorf("nonce = %v", decoded["nonce"])
	}
}

func TestDispatch_TargetChangeClearsQueuedSolutions(t *testing.T) {
	d, shared, _, _ := newTestDispatcher(t)

	d.handle([]byte(`{"type":"hello","last_block":{"short_hash":"aaaaaaaaaaaa"},"work":100000}`))

	target, _ := shared.GetTargetNow()
	shared.PushSolution(krist.Solution{Target: target, Address: "k5ztameslf", Nonce: "aastale00001"})

	// A new block arrives; the queued solution is now stale
	d.handle([]byte(`{"type":"event","event":"block","block":{"short_hash":"bbbbbbbbbbbb"},"new_work":100000}`))

	if _, ok := shared.PopSolutionNow(); ok {
		t.Error("Stale solutions must be cleared on target change")
	}
}
