package tts

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/voxkit/voxkit/logger"
	"github.com/voxkit/voxkit/metrics/prometheus"
)

// SessionState is the lifecycle state of a streaming session.
// Transitions are monotonic: no state is ever revisited, and the terminal
// states absorb every event.
type SessionState int

// Session lifecycle states.
const (
	// StateCreated means the provider stream is open but no text has been
	// sent yet.
	StateCreated SessionState = iota

	// StateActive means at least one chunk has been accepted.
	StateActive

	// StateFinishing means finish was requested and pending chunks are
	// draining.
	StateFinishing

	// StateClosed is terminal: audio is finalized and the handle invalid.
	StateClosed

	// StateErrored is terminal: an adapter call exhausted its retry budget
	// or failed non-retryably. Partial audio remains retrievable.
	StateErrored

	// StateCancelled is terminal: the caller aborted the session. Late
	// chunk acknowledgements are discarded.
	StateCancelled
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateFinishing:
		return "finishing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// terminal reports whether no further transitions are possible.
func (s SessionState) terminal() bool {
	return s == StateClosed || s == StateErrored || s == StateCancelled
}

// sessionEvent drives the session state machine.
type sessionEvent int

const (
	eventPush sessionEvent = iota
	eventFinish
	eventComplete
	eventFail
	eventCancel
)

// transition is the explicit state machine: (state, event) -> state'.
// Illegal transitions return a canonical internal error and leave the
// state unchanged.
func transition(state SessionState, ev sessionEvent) (SessionState, error) {
	switch ev {
	case eventPush:
		if state == StateCreated || state == StateActive {
			return StateActive, nil
		}
	case eventFinish:
		if state == StateCreated || state == StateActive {
			return StateFinishing, nil
		}
	case eventComplete:
		if state == StateFinishing {
			return StateClosed, nil
		}
	case eventFail:
		if !state.terminal() {
			return StateErrored, nil
		}
	case eventCancel:
		if !state.terminal() {
			return StateCancelled, nil
		}
	}
	return state, NewError(KindInternal, "", "",
		"invalid session transition from state "+state.String(), nil)
}

// SessionHandle is the opaque identifier callers hold for an open session.
type SessionHandle string

// chunkEntry is one accepted-but-not-yet-acknowledged text chunk.
type chunkEntry struct {
	ctx  context.Context
	text string
	done chan error
}

// session is the manager-side bookkeeping for one streaming conversation.
// The mutex guards state, pending, and audio; adapter calls are made with
// the mutex released so Cancel can interleave with an in-flight push.
type session struct {
	handle   SessionHandle
	provider string
	opts     StreamOptions
	stream   ProviderStream

	mu       sync.Mutex
	cond     *sync.Cond
	state    SessionState
	pending  []*chunkEntry
	flushing bool
	audio    []byte
	lastErr  *Error
}

// SessionManager owns the lifecycle of streaming synthesis conversations.
// It holds sessions in a handle-indexed table; sessions never point back at
// the manager. Operations on different handles proceed concurrently;
// operations on one handle are serialized in submission order.
type SessionManager struct {
	adapter Adapter
	policy  RetryPolicy

	mu       sync.RWMutex
	sessions map[SessionHandle]*session
}

// NewSessionManager creates a session manager over one adapter instance.
func NewSessionManager(adapter Adapter, policy RetryPolicy) *SessionManager {
	return &SessionManager{
		adapter:  adapter,
		policy:   policy,
		sessions: make(map[SessionHandle]*session),
	}
}

// StartStream opens a streaming conversation through the resilience engine
// and returns its handle. The session starts in StateCreated.
func (m *SessionManager) StartStream(ctx context.Context, opts StreamOptions) (SessionHandle, error) {
	stream, err := Execute(ctx, m.adapter.Name(), "start_stream", m.policy,
		func(ctx context.Context) (ProviderStream, error) {
			return m.adapter.StartStream(ctx, opts)
		})
	if err != nil {
		return "", err
	}

	s := &session{
		handle:   SessionHandle(uuid.NewString()),
		provider: m.adapter.Name(),
		opts:     opts,
		stream:   stream,
		state:    StateCreated,
	}
	s.cond = sync.NewCond(&s.mu)

	m.mu.Lock()
	m.sessions[s.handle] = s
	m.mu.Unlock()

	prometheus.RecordSessionStart()
	logger.StreamEvent(s.provider, string(s.handle), "created", "voice", opts.VoiceID)
	return s.handle, nil
}

// lookup fetches a session without blocking lookups of other handles.
func (m *SessionManager) lookup(handle SessionHandle) (*session, error) {
	m.mu.RLock()
	s, ok := m.sessions[handle]
	m.mu.RUnlock()
	if !ok {
		return nil, Normalize("", ErrSessionNotFound)
	}
	return s, nil
}

// remove drops a session from the table once its handle is invalid.
func (m *SessionManager) remove(handle SessionHandle) {
	m.mu.Lock()
	delete(m.sessions, handle)
	m.mu.Unlock()
}

// PushText submits one text chunk. Chunks are delivered to the adapter in
// strict submission order: a chunk is accepted into the session's queue
// under the session lock, and a single flusher forwards queued chunks one
// at a time, each through the resilience engine. The call blocks until
// this chunk is acknowledged or fails.
func (m *SessionManager) PushText(ctx context.Context, handle SessionHandle, text string) error {
	if text == "" {
		return Normalize(m.adapter.Name(), ErrEmptyText)
	}

	s, err := m.lookup(handle)
	if err != nil {
		return err
	}

	s.mu.Lock()
	next, terr := transition(s.state, eventPush)
	if terr != nil {
		s.mu.Unlock()
		return Normalize(s.provider, terr)
	}
	s.state = next

	entry := &chunkEntry{ctx: ctx, text: text, done: make(chan error, 1)}
	s.pending = append(s.pending, entry)

	startFlusher := !s.flushing
	if startFlusher {
		s.flushing = true
	}
	s.mu.Unlock()

	if startFlusher {
		go m.flush(s)
	}

	select {
	case err := <-entry.done:
		return err
	case <-ctx.Done():
		// The chunk stays queued; delivery order is preserved even if
		// this caller stops waiting.
		return Normalize(s.provider, ctx.Err())
	}
}

// flush drains the session's chunk queue in order. Exactly one flusher
// runs per session at a time; it exits when the queue empties or the
// session reaches a terminal state.
func (m *SessionManager) flush(s *session) {
	for {
		s.mu.Lock()
		if s.state.terminal() || len(s.pending) == 0 {
			s.flushing = false
			s.cond.Broadcast()
			remaining := s.pending
			s.pending = nil
			err := s.terminalError()
			s.mu.Unlock()
			for _, e := range remaining {
				e.done <- err
			}
			return
		}
		entry := s.pending[0]
		s.mu.Unlock()

		audio, sendErr := Execute(s.entryContext(entry), s.provider, "push_text", m.policy,
			func(ctx context.Context) ([]byte, error) {
				if err := s.stream.SendText(ctx, entry.text); err != nil {
					return nil, err
				}
				// Pick up audio produced so far in the same attempt.
				return s.stream.ReceiveAudio(ctx)
			})

		s.mu.Lock()
		s.pending = s.pending[1:]
		if s.state.terminal() {
			// Late acknowledgement after cancel or error: discard.
			err := s.terminalError()
			s.mu.Unlock()
			entry.done <- err
			continue
		}
		if sendErr != nil {
			s.state, _ = transition(s.state, eventFail)
			s.lastErr = Normalize(s.provider, sendErr)
			s.cond.Broadcast()
			s.mu.Unlock()
			_ = s.stream.Close()
			prometheus.RecordSessionEnd(s.provider, "errored")
			logger.StreamEvent(s.provider, string(s.handle), "errored", "error", s.lastErr.Message)
			entry.done <- s.lastErr
			continue
		}

		s.audio = append(s.audio, audio...)
		s.cond.Broadcast()
		s.mu.Unlock()
		entry.done <- nil
	}
}

// entryContext returns the context to run a chunk under, falling back to
// Background when the submitting caller supplied none.
func (s *session) entryContext(e *chunkEntry) context.Context {
	if e.ctx != nil {
		return e.ctx
	}
	return context.Background()
}

// terminalError describes why the session stopped accepting work.
// Callers must hold s.mu.
func (s *session) terminalError() error {
	switch s.state {
	case StateErrored:
		return s.lastErr
	case StateCancelled:
		return NewError(KindInternal, s.provider, "", "session cancelled", nil)
	default:
		return Normalize(s.provider, ErrSessionClosed)
	}
}

// FinishStream stops accepting chunks, drains the queue, signals
// end-of-stream to the adapter, and returns the finalized audio. On a
// session that already errored or was cancelled it returns the partial
// audio tagged incomplete, together with the terminal error; both return
// values are meaningful in that case. The handle is invalid afterwards.
func (m *SessionManager) FinishStream(ctx context.Context, handle SessionHandle) (*SynthesisResult, error) {
	s, err := m.lookup(handle)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state == StateErrored || s.state == StateCancelled {
		res, terr := s.partialResultLocked()
		s.mu.Unlock()
		m.remove(handle)
		return res, terr
	}

	next, terr := transition(s.state, eventFinish)
	if terr != nil {
		s.mu.Unlock()
		return nil, Normalize(s.provider, terr)
	}
	s.state = next

	// Drain chunks accepted before the finish call.
	for s.flushing {
		s.cond.Wait()
	}
	if s.state.terminal() {
		// The flusher errored while we waited.
		res, terr := s.partialResultLocked()
		s.mu.Unlock()
		m.remove(handle)
		return res, terr
	}
	s.mu.Unlock()

	tail, err := Execute(ctx, s.provider, "finish_stream", m.policy,
		func(ctx context.Context) ([]byte, error) {
			return s.stream.Finish(ctx)
		})

	s.mu.Lock()
	if err != nil {
		s.state, _ = transition(s.state, eventFail)
		s.lastErr = Normalize(s.provider, err)
		res, terr := s.partialResultLocked()
		s.mu.Unlock()
		_ = s.stream.Close()
		m.remove(handle)
		prometheus.RecordSessionEnd(s.provider, "errored")
		return res, terr
	}

	s.audio = append(s.audio, tail...)
	s.state, _ = transition(s.state, eventComplete)
	result := &SynthesisResult{
		Audio:  s.audio,
		Format: s.opts.Output.Format,
		Metadata: &SynthesisMetadata{
			Provider: s.provider,
		},
	}
	s.audio = nil
	s.mu.Unlock()

	_ = s.stream.Close()
	m.remove(handle)
	prometheus.RecordSessionEnd(s.provider, "closed")
	prometheus.RecordAudioBytes(s.provider, len(result.Audio))
	logger.StreamEvent(s.provider, string(handle), "closed", "audio_bytes", len(result.Audio))
	return result, nil
}

// partialResultLocked builds the incomplete result for a terminal session.
// Callers must hold s.mu.
func (s *session) partialResultLocked() (*SynthesisResult, error) {
	res := &SynthesisResult{
		Audio:      append([]byte(nil), s.audio...),
		Format:     s.opts.Output.Format,
		Incomplete: true,
		Metadata: &SynthesisMetadata{
			Provider: s.provider,
		},
	}
	return res, s.terminalError()
}

// Cancel aborts a session. The session moves to StateCancelled, the
// provider stream is closed, and any acknowledgement still in flight is
// discarded when it arrives. Partial audio remains retrievable through
// FinishStream until then.
func (m *SessionManager) Cancel(handle SessionHandle) error {
	s, err := m.lookup(handle)
	if err != nil {
		return err
	}

	s.mu.Lock()
	next, terr := transition(s.state, eventCancel)
	if terr != nil {
		s.mu.Unlock()
		return Normalize(s.provider, terr)
	}
	s.state = next
	s.cond.Broadcast()
	s.mu.Unlock()

	_ = s.stream.Close()
	prometheus.RecordSessionEnd(s.provider, "cancelled")
	logger.StreamEvent(s.provider, string(handle), "cancelled")
	return nil
}

// State reports a session's current lifecycle state.
func (m *SessionManager) State(handle SessionHandle) (SessionState, error) {
	s, err := m.lookup(handle)
	if err != nil {
		return StateClosed, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

// HasPending reports whether accepted chunks are still awaiting
// acknowledgement.
func (m *SessionManager) HasPending(handle SessionHandle) (bool, error) {
	s, err := m.lookup(handle)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0 || s.flushing, nil
}
