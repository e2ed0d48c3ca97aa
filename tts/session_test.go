package tts

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestSessionManager(t *testing.T, adapter Adapter) *SessionManager {
	t.Helper()
	return NewSessionManager(adapter, fastPolicy(2))
}

func TestSessionLifecycle(t *testing.T) {
	m := newTestSessionManager(t, NewMockAdapter())
	ctx := context.Background()

	handle, err := m.StartStream(ctx, StreamOptions{VoiceID: "mock-en-1"})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	if state, _ := m.State(handle); state != StateCreated {
		t.Errorf("state after start = %v, want StateCreated", state)
	}

	if err := m.PushText(ctx, handle, "hello"); err != nil {
		t.Fatalf("PushText: %v", err)
	}
	if state, _ := m.State(handle); state != StateActive {
		t.Errorf("state after push = %v, want StateActive", state)
	}

	res, err := m.FinishStream(ctx, handle)
	if err != nil {
		t.Fatalf("FinishStream: %v", err)
	}
	if res.Incomplete {
		t.Error("clean finish should not be incomplete")
	}
	if !bytes.Equal(res.Audio, mockAudio("hello")) {
		t.Errorf("audio = %q, want %q", res.Audio, mockAudio("hello"))
	}

	// The handle is invalid after finish.
	if _, err := m.State(handle); err == nil {
		t.Error("handle should be invalid after finish")
	}
	perr := m.PushText(ctx, handle, "more")
	if perr == nil {
		t.Error("push after finish should fail")
	} else if KindOf(perr) != KindInternal {
		t.Errorf("push after finish kind = %v, want KindInternal", KindOf(perr))
	}
}

func TestSessionPushOrdering(t *testing.T) {
	adapter := NewMockAdapter()
	stream := NewMockStream()
	adapter.StreamHook = func(opts StreamOptions) ProviderStream { return stream }

	m := newTestSessionManager(t, adapter)
	ctx := context.Background()

	handle, err := m.StartStream(ctx, StreamOptions{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	var want []string
	var wantAudio []byte
	for i := 0; i < 20; i++ {
		text := fmt.Sprintf("chunk-%02d", i)
		want = append(want, text)
		wantAudio = append(wantAudio, mockAudio(text)...)
		if err := m.PushText(ctx, handle, text); err != nil {
			t.Fatalf("PushText(%s): %v", text, err)
		}
	}

	sent := stream.Sent()
	if len(sent) != len(want) {
		t.Fatalf("%d chunks delivered, want %d", len(sent), len(want))
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Fatalf("chunk %d delivered as %q, want %q (order violated)", i, sent[i], want[i])
		}
	}

	res, err := m.FinishStream(ctx, handle)
	if err != nil {
		t.Fatalf("FinishStream: %v", err)
	}
	if !bytes.Equal(res.Audio, wantAudio) {
		t.Error("finalized audio is not the in-order concatenation of chunk audio")
	}
}

// waitQueued blocks until the session holds at least n queued chunks.
func waitQueued(t *testing.T, m *SessionManager, handle SessionHandle, n int) {
	t.Helper()
	s, err := m.lookup(handle)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		queued := len(s.pending)
		s.mu.Unlock()
		if queued >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue held %d chunks, want %d", queued, n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSessionConcurrentPushOrdering(t *testing.T) {
	adapter := NewMockAdapter()
	stream := NewMockStream()
	// Hold the first chunk in flight so every later caller queues behind it.
	stream.SendRelease = make(chan struct{})
	adapter.StreamHook = func(opts StreamOptions) ProviderStream { return stream }

	m := NewSessionManager(adapter, RetryPolicy{
		MaxAttempts: 2,
		Timeout:     5 * time.Second,
		Shape:       BackoffFixed,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	})
	ctx := context.Background()

	handle, err := m.StartStream(ctx, StreamOptions{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	// Pushers run concurrently, each from its own goroutine. Submission
	// order is pinned by waiting for each caller to be admitted into the
	// queue before starting the next one.
	const chunks = 12
	var want []string
	pushErr := make(chan error, chunks)
	for i := 0; i < chunks; i++ {
		text := fmt.Sprintf("chunk-%02d", i)
		want = append(want, text)
		go func(text string) {
			pushErr <- m.PushText(ctx, handle, text)
		}(text)
		waitQueued(t, m, handle, i+1)
	}

	close(stream.SendRelease)
	for i := 0; i < chunks; i++ {
		select {
		case err := <-pushErr:
			if err != nil {
				t.Fatalf("PushText: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("push did not return")
		}
	}

	sent := stream.Sent()
	if len(sent) != len(want) {
		t.Fatalf("%d chunks delivered, want %d", len(sent), len(want))
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Fatalf("chunk %d delivered as %q, want %q (order violated)", i, sent[i], want[i])
		}
	}
}

func TestSessionErrorKeepsPartialAudio(t *testing.T) {
	adapter := NewMockAdapter()
	stream := NewMockStream()
	stream.SendErrAfter = 1 // first chunk succeeds, second fails
	adapter.StreamHook = func(opts StreamOptions) ProviderStream { return stream }

	m := newTestSessionManager(t, adapter)
	ctx := context.Background()

	handle, err := m.StartStream(ctx, StreamOptions{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := m.PushText(ctx, handle, "good"); err != nil {
		t.Fatalf("first push: %v", err)
	}
	if err := m.PushText(ctx, handle, "bad"); err == nil {
		t.Fatal("second push should fail")
	}

	if state, _ := m.State(handle); state != StateErrored {
		t.Errorf("state = %v, want StateErrored", state)
	}

	// Further pushes are rejected without touching the adapter.
	if err := m.PushText(ctx, handle, "more"); err == nil {
		t.Error("push on errored session should fail")
	}

	res, ferr := m.FinishStream(ctx, handle)
	if ferr == nil {
		t.Fatal("finish on errored session should surface the terminal error")
	}
	if res == nil || !res.Incomplete {
		t.Fatal("partial audio should be returned tagged incomplete")
	}
	if !bytes.Equal(res.Audio, mockAudio("good")) {
		t.Errorf("partial audio = %q, want the successfully pushed chunk only", res.Audio)
	}
}

func TestSessionCancelDiscardsLateAck(t *testing.T) {
	adapter := NewMockAdapter()
	stream := NewMockStream()
	stream.SendStarted = make(chan struct{})
	stream.SendRelease = make(chan struct{})
	adapter.StreamHook = func(opts StreamOptions) ProviderStream { return stream }

	m := newTestSessionManager(t, adapter)
	ctx := context.Background()

	handle, err := m.StartStream(ctx, StreamOptions{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	pushErr := make(chan error, 1)
	go func() {
		pushErr <- m.PushText(ctx, handle, "in-flight")
	}()

	// Wait until the chunk is on the wire, then cancel mid-call.
	<-stream.SendStarted
	if err := m.Cancel(handle); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(stream.SendRelease)

	select {
	case err := <-pushErr:
		if err == nil {
			t.Error("push acknowledged after cancel, want discard")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("push did not return after cancel")
	}

	if state, _ := m.State(handle); state != StateCancelled {
		t.Errorf("state = %v, want StateCancelled", state)
	}

	res, ferr := m.FinishStream(ctx, handle)
	if ferr == nil {
		t.Fatal("finish on cancelled session should surface the terminal error")
	}
	if !res.Incomplete {
		t.Error("cancelled session result should be incomplete")
	}
	if len(res.Audio) != 0 {
		t.Errorf("audio = %q, the in-flight chunk's audio must be discarded", res.Audio)
	}
}

func TestSessionCancelIsIdempotentOnTerminal(t *testing.T) {
	m := newTestSessionManager(t, NewMockAdapter())
	ctx := context.Background()

	handle, _ := m.StartStream(ctx, StreamOptions{})
	if err := m.Cancel(handle); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := m.Cancel(handle); err == nil {
		t.Error("second cancel should report an invalid transition")
	}
}

func TestSessionValidation(t *testing.T) {
	m := newTestSessionManager(t, NewMockAdapter())
	ctx := context.Background()

	if err := m.PushText(ctx, SessionHandle("nope"), "text"); KindOf(err) == KindInvalidInput {
		t.Error("unknown handle should not look like invalid input")
	} else if err == nil {
		t.Error("unknown handle should fail")
	}

	handle, _ := m.StartStream(ctx, StreamOptions{})
	if err := m.PushText(ctx, handle, ""); KindOf(err) != KindInvalidInput {
		t.Errorf("empty chunk kind = %v, want KindInvalidInput", KindOf(err))
	}
}

func TestSessionStartFailure(t *testing.T) {
	adapter := NewMockAdapter()
	adapter.StartStreamErr = &HTTPError{Provider: ProviderMock, Status: 401, Message: "bad key"}

	m := newTestSessionManager(t, adapter)
	if _, err := m.StartStream(context.Background(), StreamOptions{}); KindOf(err) != KindUnauthorized {
		t.Errorf("kind = %v, want KindUnauthorized", KindOf(err))
	}
}

func TestSessionHasPending(t *testing.T) {
	m := newTestSessionManager(t, NewMockAdapter())
	ctx := context.Background()

	handle, _ := m.StartStream(ctx, StreamOptions{})
	if err := m.PushText(ctx, handle, "one"); err != nil {
		t.Fatalf("PushText: %v", err)
	}

	// PushText returned, so the chunk is acknowledged; the queue drains
	// shortly after.
	deadline := time.Now().Add(2 * time.Second)
	for {
		pending, err := m.HasPending(handle)
		if err != nil {
			t.Fatalf("HasPending: %v", err)
		}
		if !pending {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("queue never drained")
		}
		time.Sleep(time.Millisecond)
	}
}
