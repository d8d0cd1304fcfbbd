package control

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordedEvent captures one EventRecorder call for assertions.
type recordedEvent struct {
	Kind   string
	Value  float64
	Detail string
}

// fakeRecorder implements EventRecorder and remembers every call.
type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (r *fakeRecorder) RecordEvent(kind string, value float64, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Kind: kind, Value: value, Detail: detail})
	return r.err
}

func (r *fakeRecorder) Events() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

func TestApply_SeekUpdatesStateAndJournal(t *testing.T) {
	state := NewState()
	rec := &fakeRecorder{}

	cmd, ok := Apply(state, rec, "SEEK 90.5")
	if !ok {
		t.Fatal("Expected SEEK line to be applied")
	}
	if cmd.Kind != KindSeek || cmd.Position != 90.5 {
		t.Errorf("Apply returned %+v, want seek at 90.5", cmd)
	}

	sec, pending := state.TakeSeek()
	if !pending || sec != 90.5 {
		t.Errorf("TakeSeek() = %v, %v; want 90.5, true", sec, pending)
	}

	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("Expected 1 journal event, got %d", len(events))
	}
	if events[0].Kind != KindSeek || events[0].Value != 90.5 || events[0].Detail != "" {
		t.Errorf("Journal event = %+v, want {seek 90.5 }", events[0])
	}
}

func TestApply_BeatWithEpochJournalsDetail(t *testing.T) {
	state := NewState()
	rec := &fakeRecorder{}

	_, ok := Apply(state, rec, "BEAT 42.5 1750719826.031")
	if !ok {
		t.Fatal("Expected BEAT line to be applied")
	}

	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("Expected 1 journal event, got %d", len(events))
	}
	if events[0].Detail != "epoch=1750719826.031" {
		t.Errorf("Journal detail = %q, want epoch=1750719826.031", events[0].Detail)
	}
}

func TestApply_MalformedDroppedSilently(t *testing.T) {
	state := NewState()
	rec := &fakeRecorder{}

	for _, line := range []string{"", "garbage", "SEEK", "SEEK abc", "BEAT 1 x"} {
		cmd, ok := Apply(state, rec, line)
		if ok {
			t.Errorf("Apply(%q) applied, expected drop", line)
		}
		if cmd != (Command{}) {
			t.Errorf("Apply(%q) returned %+v, want zero command", line, cmd)
		}
	}

	if len(rec.Events()) != 0 {
		t.Errorf("Dropped lines must not be journaled, got %d events", len(rec.Events()))
	}
	if _, ok := state.TakeSeek(); ok {
		t.Error("Dropped lines must not change state")
	}
	if state.Paused() || state.Stopped() {
		t.Error("Dropped lines must not change state")
	}
}

func TestApply_NilRecorder(t *testing.T) {
	state := NewState()

	if _, ok := Apply(state, nil, "PAUSE"); !ok {
		t.Fatal("Expected PAUSE to be applied without a recorder")
	}
	if !state.Paused() {
		t.Error("Expected paused")
	}
}

func TestApply_JournalErrorIgnored(t *testing.T) {
	state := NewState()
	rec := &fakeRecorder{err: errors.New("journal closed")}

	if _, ok := Apply(state, rec, "STOP"); !ok {
		t.Fatal("Journal failure must not block the command")
	}
	if !state.Stopped() {
		t.Error("Expected stopped despite journal failure")
	}
}

func TestDispatch_AppliesAndAcks(t *testing.T) {
	port := NewTestLinePort("")
	mux := NewLineMux(port)
	state := NewState()
	rec := &fakeRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		Dispatch(ctx, mux, state, rec)
		close(done)
	}()

	// Give the dispatcher time to subscribe and park on the channel
	time.Sleep(10 * time.Millisecond)

	mux.Inject("SEEK 30")

	// Wait for the command to land in the state
	deadline := time.After(1 * time.Second)
	for {
		if sec, ok := state.TakeSeek(); ok {
			if sec != 30 {
				t.Errorf("TakeSeek() = %v, want 30", sec)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("Timeout waiting for seek to apply")
		case <-time.After(time.Millisecond):
		}
	}

	// The ack is written back to the port with the position
	ackDeadline := time.After(1 * time.Second)
	for {
		if strings.Contains(port.WrittenData(), "ok seek 30.000\n") {
			break
		}
		select {
		case <-ackDeadline:
			t.Fatalf("Timeout waiting for ack, port has %q", port.WrittenData())
		case <-time.After(time.Millisecond):
		}
	}

	events := rec.Events()
	if len(events) != 1 || events[0].Kind != KindSeek {
		t.Errorf("Journal events = %+v, want one seek", events)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("Dispatch did not exit on context cancellation")
	}
}

func TestDispatch_BareVerbAck(t *testing.T) {
	port := NewTestLinePort("")
	mux := NewLineMux(port)
	state := NewState()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		Dispatch(ctx, mux, state, nil)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)

	mux.Inject("PAUSE")

	deadline := time.After(1 * time.Second)
	for !state.Paused() {
		select {
		case <-deadline:
			t.Fatal("Timeout waiting for pause to apply")
		case <-time.After(time.Millisecond):
		}
	}

	ackDeadline := time.After(1 * time.Second)
	for {
		if strings.Contains(port.WrittenData(), "ok pause\n") {
			break
		}
		select {
		case <-ackDeadline:
			t.Fatalf("Timeout waiting for ack, port has %q", port.WrittenData())
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done
}

// TestDispatch_BurstFromPort pipes a whole command script into the port in
// one write, the way a driving process feeds the player's stdin. Every valid
// line must be applied even though the dispatcher is busy acking the
// previous one while the rest are scanned; only the malformed line drops.
func TestDispatch_BurstFromPort(t *testing.T) {
	port := NewTestLinePort("seek 12.5\ngarbage line\nPAUSE\nSTOP\n")
	mux := NewLineMux(port)
	state := NewState()
	rec := &fakeRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatchDone := make(chan struct{})
	go func() {
		Dispatch(ctx, mux, state, rec)
		close(dispatchDone)
	}()

	// Let the dispatcher subscribe before the port is scanned
	time.Sleep(10 * time.Millisecond)

	monitorDone := make(chan struct{})
	go func() {
		mux.Monitor(ctx)
		close(monitorDone)
	}()

	// STOP is the last line of the script; once it lands, everything
	// before it has been applied in order.
	deadline := time.After(2 * time.Second)
	for !state.Stopped() {
		select {
		case <-deadline:
			t.Fatalf("Timeout waiting for the final STOP; journaled so far: %+v", rec.Events())
		case <-time.After(time.Millisecond):
		}
	}

	if sec, ok := state.TakeSeek(); !ok || sec != 12.5 {
		t.Errorf("TakeSeek() = %v, %v; want 12.5, true", sec, ok)
	}
	if !state.Paused() {
		t.Error("Expected the PAUSE from the burst to be applied")
	}

	events := rec.Events()
	want := []recordedEvent{
		{Kind: KindSeek, Value: 12.5},
		{Kind: KindPause},
		{Kind: KindStop},
	}
	if len(events) != len(want) {
		t.Fatalf("Journaled %d events %+v, want %d", len(events), events, len(want))
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}

	cancel()
	select {
	case <-dispatchDone:
	case <-time.After(1 * time.Second):
		t.Error("Dispatch did not exit on context cancellation")
	}
	select {
	case <-monitorDone:
	case <-time.After(1 * time.Second):
		t.Error("Monitor did not exit on context cancellation")
	}
}

func TestDispatch_MalformedLineNoAck(t *testing.T) {
	port := NewTestLinePort("")
	mux := NewLineMux(port)
	state := NewState()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		Dispatch(ctx, mux, state, nil)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)

	mux.Inject("NOT A COMMAND")
	mux.Inject("STOP")

	deadline := time.After(1 * time.Second)
	for !state.Stopped() {
		select {
		case <-deadline:
			t.Fatal("Timeout waiting for stop to apply")
		case <-time.After(time.Millisecond):
		}
	}

	if written := port.WrittenData(); strings.Contains(written, "NOT A COMMAND") {
		t.Errorf("Malformed line must not be acked, port has %q", written)
	}

	cancel()
	<-done
}

func TestDispatch_ExitsWhenMuxCloses(t *testing.T) {
	port := NewTestLinePort("")
	mux := NewLineMux(port)
	state := NewState()

	done := make(chan struct{})
	go func() {
		Dispatch(context.Background(), mux, state, nil)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)

	if err := mux.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("Dispatch did not exit when the mux closed its channels")
	}
}
