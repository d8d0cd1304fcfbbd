package control

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDisabledLineMux_UnsubscribeClosesChannel(t *testing.T) {
	d := NewDisabledLineMux()
	id, ch := d.Subscribe()

	done := make(chan struct{})
	go func() {
		_, ok := <-ch
		if ok {
			t.Errorf("expected channel to be closed on unsubscribe")
		}
		close(done)
	}()

	// Give goroutine a moment to start and block on read
	time.Sleep(10 * time.Millisecond)

	d.Unsubscribe(id)

	select {
	case <-done:
		// success
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for subscriber to be unblocked after Unsubscribe")
	}
}

func TestDisabledLineMux_CloseClosesAllChannels(t *testing.T) {
	d := NewDisabledLineMux()
	id1, ch1 := d.Subscribe()
	_, ch2 := d.Subscribe()

	done1 := make(chan struct{})
	done2 := make(chan struct{})

	go func() {
		_, ok := <-ch1
		if ok {
			t.Errorf("expected ch1 to be closed on Close")
		}
		close(done1)
	}()

	go func() {
		_, ok := <-ch2
		if ok {
			t.Errorf("expected ch2 to be closed on Close")
		}
		close(done2)
	}()

	// Give goroutines a moment to start and block on read
	time.Sleep(10 * time.Millisecond)

	if err := d.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	select {
	case <-done1:
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for ch1 to be closed after Close")
	}

	select {
	case <-done2:
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for ch2 to be closed after Close")
	}

	// Ensure unsubscribing a non-existent id is a no-op (should not panic)
	d.Unsubscribe(id1)
}

func TestDisabledLineMux_SubscribeAfterClose(t *testing.T) {
	d := NewDisabledLineMux()
	if err := d.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	_, ch := d.Subscribe()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected a closed channel after Close")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("subscribe after close should not block")
	}
}

func TestDisabledLineMux_InjectStillDelivers(t *testing.T) {
	d := NewDisabledLineMux()
	_, ch := d.Subscribe()

	got := make(chan string, 1)
	go func() {
		got <- <-ch
	}()

	// Give the receiver time to park on the channel
	time.Sleep(10 * time.Millisecond)

	d.Inject("PAUSE")

	select {
	case line := <-got:
		if line != "PAUSE" {
			t.Errorf("Injected line = %q, want PAUSE", line)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for injected line")
	}
}

func TestDisabledLineMux_SendCommandIsNoOp(t *testing.T) {
	d := NewDisabledLineMux()
	if err := d.SendCommand("ok pause"); err != nil {
		t.Errorf("SendCommand returned error: %v", err)
	}
}

func TestDisabledLineMux_MonitorBlocksUntilCancel(t *testing.T) {
	d := NewDisabledLineMux()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := d.Monitor(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Monitor returned %v, want context.DeadlineExceeded", err)
	}
}

func TestDisabledLineMux_CloseIdempotent(t *testing.T) {
	d := NewDisabledLineMux()
	if err := d.Close(); err != nil {
		t.Fatalf("first Close returned error: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
}

func TestDisabledLineMux_AttachAdminRoutes(t *testing.T) {
	d := NewDisabledLineMux()

	httpMux := http.NewServeMux()
	d.AttachAdminRoutes(httpMux)

	req := httptest.NewRequest(http.MethodGet, "/debug/control-disabled", nil)
	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /debug/control-disabled = %d, want 200", w.Code)
	}
}
