package tts

import (
	"context"
	"sync"
)

func init() {
	RegisterAdapterFactory(ProviderMock, func(spec AdapterSpec) (Adapter, error) {
		return NewMockAdapter(), nil
	})
}

// MockAdapter is an in-memory adapter for tests and local development.
// It produces deterministic audio, counts calls per operation, and lets
// callers inject failures through the *Err fields and hook functions.
//
// Every canonical operation is implemented, so the mock exercises the
// full dispatch surface without network access.
type MockAdapter struct {
	mu    sync.Mutex
	calls map[string]int

	// Voices is the catalog returned by ListVoices.
	Voices []Voice

	// ListVoicesErr, SynthesizeErr and StartStreamErr inject failures.
	// They are returned raw, exactly as a vendor adapter would surface
	// a wire failure.
	ListVoicesErr  error
	SynthesizeErr  error
	StartStreamErr error

	// SynthesizeHook, when set, replaces the default synthesis behavior.
	SynthesizeHook func(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)

	// StreamHook, when set, replaces the default stream construction.
	StreamHook func(opts StreamOptions) ProviderStream
}

// NewMockAdapter creates a mock with a small default voice catalog.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		calls: make(map[string]int),
		Voices: []Voice{
			{ID: "mock-en-1", Name: "Alloy", Language: "en", Gender: "neutral", Quality: "neural", Provider: ProviderMock},
			{ID: "mock-en-2", Name: "Brook", Language: "en", AdditionalLanguages: []string{"es"}, Gender: "female", Quality: "standard", Provider: ProviderMock},
			{ID: "mock-de-1", Name: "Klaus", Language: "de", Gender: "male", Quality: "neural", Provider: ProviderMock},
		},
	}
}

// Name implements Adapter.
func (m *MockAdapter) Name() string { return ProviderMock }

func (m *MockAdapter) record(op string) {
	m.mu.Lock()
	m.calls[op]++
	m.mu.Unlock()
}

// Calls returns how many times the named operation was invoked.
func (m *MockAdapter) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// ListVoices implements Adapter.
func (m *MockAdapter) ListVoices(ctx context.Context, filter *VoiceFilter) ([]Voice, error) {
	m.record("list_voices")
	if m.ListVoicesErr != nil {
		return nil, m.ListVoicesErr
	}
	voices := make([]Voice, 0, len(m.Voices))
	for _, v := range m.Voices {
		if filter.Matches(v) {
			voices = append(voices, v)
		}
	}
	return voices, nil
}

// Synthesize implements Adapter. The default audio is the request text
// prefixed with "audio:", which tests use to assert ordering and content.
func (m *MockAdapter) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	m.record("synthesize")
	if m.SynthesizeHook != nil {
		return m.SynthesizeHook(ctx, req)
	}
	if m.SynthesizeErr != nil {
		return nil, m.SynthesizeErr
	}
	return &SynthesisResult{
		Audio:  mockAudio(req.Text),
		Format: resolveFormat(req.Output),
		Metadata: &SynthesisMetadata{
			Provider:         ProviderMock,
			CharactersBilled: len(req.Text),
		},
	}, nil
}

// StartStream implements Adapter.
func (m *MockAdapter) StartStream(ctx context.Context, opts StreamOptions) (ProviderStream, error) {
	m.record("start_stream")
	if m.StartStreamErr != nil {
		return nil, m.StartStreamErr
	}
	if m.StreamHook != nil {
		return m.StreamHook(opts), nil
	}
	return NewMockStream(), nil
}

// CloneVoice implements VoiceCloner.
func (m *MockAdapter) CloneVoice(ctx context.Context, name string, samples [][]byte, description string) (string, error) {
	m.record("clone_voice")
	return "mock-cloned-" + name, nil
}

// SpeechMarks implements SpeechMarker with one word mark per
// space-separated token, 100ms apart.
func (m *MockAdapter) SpeechMarks(ctx context.Context, req SynthesisRequest) ([]SpeechMark, error) {
	m.record("speech_marks")
	var marks []SpeechMark
	start := 0
	word := ""
	flush := func(end int) {
		if word == "" {
			return
		}
		marks = append(marks, SpeechMark{
			TimeMillis: len(marks) * 100,
			Type:       MarkWord,
			Start:      start,
			End:        end,
			Value:      word,
		})
		word = ""
	}
	for i, r := range req.Text {
		if r == ' ' {
			flush(i)
			start = i + 1
			continue
		}
		if word == "" {
			start = i
		}
		word += string(r)
	}
	flush(len(req.Text))
	return marks, nil
}

// mockAudio is the deterministic audio payload for a chunk of text.
func mockAudio(text string) []byte {
	return []byte("audio:" + text)
}

// resolveFormat picks the effective output format for a request.
func resolveFormat(out AudioConfig) AudioFormat {
	f := out.Format
	if f.Name == "" {
		f = FormatMP3
	}
	if out.SampleRate > 0 {
		f.SampleRate = out.SampleRate
	}
	if out.Channels > 0 {
		f.Channels = out.Channels
	}
	return f
}

// MockStream is the ProviderStream returned by MockAdapter. Audio for each
// chunk becomes available on the ReceiveAudio call following its SendText.
type MockStream struct {
	mu      sync.Mutex
	pending [][]byte
	sent    []string
	closed  bool

	// SendErrAfter injects a SendText failure once that many chunks have
	// been accepted. Zero means never fail.
	SendErrAfter int
	// SendErr is the injected failure. Defaults to a provider-unavailable
	// HTTP error when SendErrAfter triggers with SendErr unset.
	SendErr error

	// SendStarted and SendRelease, when set, gate SendText for tests that
	// need a chunk held in flight. SendStarted is closed when SendText
	// begins; SendText then blocks until SendRelease is closed.
	SendStarted chan struct{}
	SendRelease chan struct{}
}

// NewMockStream creates an open mock stream.
func NewMockStream() *MockStream {
	return &MockStream{}
}

// Sent returns the chunks accepted so far, in acceptance order.
func (s *MockStream) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

// SendText implements ProviderStream.
func (s *MockStream) SendText(ctx context.Context, text string) error {
	if s.SendStarted != nil {
		close(s.SendStarted)
		s.SendStarted = nil
	}
	if s.SendRelease != nil {
		select {
		case <-s.SendRelease:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.SendErrAfter > 0 && len(s.sent) >= s.SendErrAfter {
		if s.SendErr != nil {
			return s.SendErr
		}
		return &HTTPError{Provider: ProviderMock, Status: 503, Message: "injected stream failure"}
	}
	s.sent = append(s.sent, text)
	s.pending = append(s.pending, mockAudio(text))
	return nil
}

// ReceiveAudio implements ProviderStream.
func (s *MockStream) ReceiveAudio(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, nil
	}
	var out []byte
	for _, chunk := range s.pending {
		out = append(out, chunk...)
	}
	s.pending = nil
	return out, nil
}

// Finish implements ProviderStream.
func (s *MockStream) Finish(ctx context.Context) ([]byte, error) {
	return s.ReceiveAudio(ctx)
}

// Close implements ProviderStream.
func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
