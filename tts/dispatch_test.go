package tts

import (
	"bytes"
	"context"
	"sync"
	"testing"
)

func newMockDispatcher(t *testing.T, mutate func(*DispatcherConfig)) (*Dispatcher, *MockAdapter) {
	t.Helper()
	adapter := NewMockAdapter()
	cfg := DispatcherConfig{
		Adapter: adapter,
		Policy:  fastPolicy(2),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := NewDispatcher(cfg)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d, adapter
}

func TestDispatcherRequiresAdapter(t *testing.T) {
	if _, err := NewDispatcher(DispatcherConfig{}); err == nil {
		t.Fatal("expected error for missing adapter")
	}
}

func TestDispatcherSynthesize(t *testing.T) {
	d, adapter := newMockDispatcher(t, nil)

	res, err := d.Synthesize(context.Background(), SynthesisRequest{Text: "hello", VoiceID: "mock-en-1"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(res.Audio, mockAudio("hello")) {
		t.Errorf("audio = %q", res.Audio)
	}
	if adapter.Calls("synthesize") != 1 {
		t.Errorf("adapter called %d times", adapter.Calls("synthesize"))
	}
}

func TestDispatcherRejectsInvalidInputLocally(t *testing.T) {
	d, adapter := newMockDispatcher(t, nil)

	if _, err := d.Synthesize(context.Background(), SynthesisRequest{Text: ""}); KindOf(err) != KindInvalidInput {
		t.Errorf("empty text kind = %v, want KindInvalidInput", KindOf(err))
	}

	bad := 9.0
	_, err := d.Synthesize(context.Background(), SynthesisRequest{
		Text:     "hi",
		Settings: &VoiceSettings{Speed: &bad},
	})
	if KindOf(err) != KindInvalidInput {
		t.Errorf("out-of-range speed kind = %v, want KindInvalidInput", KindOf(err))
	}

	if adapter.Calls("synthesize") != 0 {
		t.Error("invalid requests must not reach the adapter")
	}
}

func TestDispatcherCapabilityShortCircuit(t *testing.T) {
	// A registry that grants the mock nothing at all.
	d, adapter := newMockDispatcher(t, func(cfg *DispatcherConfig) {
		cfg.Registry = NewRegistryWithMatrices(map[string]CapabilityMatrix{
			ProviderMock: {},
		})
	})

	if _, err := d.StartStream(context.Background(), StreamOptions{}); KindOf(err) != KindUnsupportedOperation {
		t.Errorf("StartStream kind = %v, want KindUnsupportedOperation", KindOf(err))
	}
	if _, err := d.CloneVoice(context.Background(), "copy", nil, ""); KindOf(err) != KindUnsupportedOperation {
		t.Errorf("CloneVoice kind = %v, want KindUnsupportedOperation", KindOf(err))
	}
	if _, err := d.SpeechMarks(context.Background(), SynthesisRequest{Text: "hi"}); KindOf(err) != KindUnsupportedOperation {
		t.Errorf("SpeechMarks kind = %v, want KindUnsupportedOperation", KindOf(err))
	}
	if _, err := d.Synthesize(context.Background(), SynthesisRequest{Text: "<speak>hi</speak>", TextType: TextTypeSSML}); KindOf(err) != KindUnsupportedOperation {
		t.Errorf("SSML synthesize kind = %v, want KindUnsupportedOperation", KindOf(err))
	}

	for _, op := range []string{"start_stream", "clone_voice", "speech_marks", "synthesize"} {
		if n := adapter.Calls(op); n != 0 {
			t.Errorf("unsupported %s reached the adapter %d times", op, n)
		}
	}
}

func TestDispatcherOptionalOpsOnMock(t *testing.T) {
	d, _ := newMockDispatcher(t, nil)
	ctx := context.Background()

	id, err := d.CloneVoice(ctx, "narrator", [][]byte{[]byte("sample")}, "test clone")
	if err != nil {
		t.Fatalf("CloneVoice: %v", err)
	}
	if id != "mock-cloned-narrator" {
		t.Errorf("voice id = %q", id)
	}

	marks, err := d.SpeechMarks(ctx, SynthesisRequest{Text: "hello wide world", VoiceID: "mock-en-1"})
	if err != nil {
		t.Fatalf("SpeechMarks: %v", err)
	}
	if len(marks) != 3 {
		t.Fatalf("%d marks, want 3", len(marks))
	}
	if marks[1].Value != "wide" || marks[1].Type != MarkWord {
		t.Errorf("marks[1] = %+v", marks[1])
	}
}

func TestDispatcherStubbedSoundEffect(t *testing.T) {
	// ElevenLabs carries sound effects as a planned stub: the call
	// succeeds with a placeholder payload, no network involved.
	adapter := NewElevenLabsAdapter("test-key")
	d, err := NewDispatcher(DispatcherConfig{Adapter: adapter, Policy: fastPolicy(1)})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	res, err := d.GenerateSoundEffect(context.Background(), "rain on a tin roof", 4)
	if err != nil {
		t.Fatalf("GenerateSoundEffect: %v", err)
	}
	if res.Metadata == nil || !res.Metadata.Stubbed {
		t.Error("stubbed operation must mark its result as stubbed")
	}
}

func TestDispatcherStreamingRoundTrip(t *testing.T) {
	d, _ := newMockDispatcher(t, nil)
	ctx := context.Background()

	handle, err := d.StartStream(ctx, StreamOptions{VoiceID: "mock-en-1"})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := d.PushText(ctx, handle, "first"); err != nil {
		t.Fatalf("PushText: %v", err)
	}
	if err := d.PushText(ctx, handle, "second"); err != nil {
		t.Fatalf("PushText: %v", err)
	}
	if state, _ := d.SessionState(handle); state != StateActive {
		t.Errorf("state = %v", state)
	}

	res, err := d.FinishStream(ctx, handle)
	if err != nil {
		t.Fatalf("FinishStream: %v", err)
	}
	want := append(mockAudio("first"), mockAudio("second")...)
	if !bytes.Equal(res.Audio, want) {
		t.Errorf("audio = %q, want %q", res.Audio, want)
	}
}

func TestDispatcherVoiceDiscovery(t *testing.T) {
	d, _ := newMockDispatcher(t, nil)
	ctx := context.Background()

	voices, err := d.ListVoices(ctx, nil)
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 3 {
		t.Fatalf("%d voices, want 3", len(voices))
	}

	filtered, err := d.ListVoices(ctx, &VoiceFilter{Language: "es"})
	if err != nil {
		t.Fatalf("ListVoices(filtered): %v", err)
	}
	if len(filtered) != 1 || filtered[0].Name != "Brook" {
		t.Errorf("es filter returned %+v, additional languages should match", filtered)
	}

	found, err := d.SearchVoices(ctx, "brook", nil)
	if err != nil {
		t.Fatalf("SearchVoices: %v", err)
	}
	if len(found) != 1 || found[0].ID != "mock-en-2" {
		t.Errorf("search returned %+v", found)
	}

	langs, err := d.ListLanguages(ctx)
	if err != nil {
		t.Fatalf("ListLanguages: %v", err)
	}
	if len(langs) != 2 {
		t.Fatalf("%d languages, want 2", len(langs))
	}
	if langs[0].Code != "de" || langs[0].VoiceCount != 1 {
		t.Errorf("langs[0] = %+v, want de with 1 voice (sorted by code)", langs[0])
	}
	if langs[1].Code != "en" || langs[1].VoiceCount != 2 {
		t.Errorf("langs[1] = %+v, want en with 2 voices", langs[1])
	}
}

func TestDispatcherGetVoice(t *testing.T) {
	d, adapter := newMockDispatcher(t, func(cfg *DispatcherConfig) {
		cfg.VoiceCache = &memoryVoiceCache{}
	})
	ctx := context.Background()

	voice, err := d.GetVoice(ctx, "mock-en-2")
	if err != nil {
		t.Fatalf("GetVoice: %v", err)
	}
	if voice.Name != "Brook" || voice.Language != "en" {
		t.Errorf("voice = %+v, want Brook/en", voice)
	}

	// Lookups ride the cached catalog rather than re-fetching.
	if _, err := d.GetVoice(ctx, "mock-de-1"); err != nil {
		t.Fatalf("GetVoice: %v", err)
	}
	if n := adapter.Calls("list_voices"); n != 1 {
		t.Errorf("adapter fetched voices %d times, want 1", n)
	}

	_, err = d.GetVoice(ctx, "mock-xx-9")
	if err == nil {
		t.Fatal("unknown voice id should fail")
	}
	if KindOf(err) != KindInvalidInput {
		t.Errorf("kind = %v, want KindInvalidInput", KindOf(err))
	}
}

// memoryVoiceCache is a test double for the Redis-backed cache.
type memoryVoiceCache struct {
	mu    sync.Mutex
	store map[string][]Voice
	hits  int
}

func (c *memoryVoiceCache) Get(ctx context.Context, provider string) ([]Voice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	voices, ok := c.store[provider]
	if ok {
		c.hits++
	}
	return voices, ok
}

func (c *memoryVoiceCache) Set(ctx context.Context, provider string, voices []Voice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = make(map[string][]Voice)
	}
	c.store[provider] = voices
}

func TestDispatcherUsesVoiceCache(t *testing.T) {
	vc := &memoryVoiceCache{}
	d, adapter := newMockDispatcher(t, func(cfg *DispatcherConfig) {
		cfg.VoiceCache = vc
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := d.ListVoices(ctx, nil); err != nil {
			t.Fatalf("ListVoices #%d: %v", i, err)
		}
	}

	if n := adapter.Calls("list_voices"); n != 1 {
		t.Errorf("adapter fetched voices %d times, want 1 (cache misses)", n)
	}
	if vc.hits != 2 {
		t.Errorf("cache hits = %d, want 2", vc.hits)
	}
}

func TestDispatcherValidateInput(t *testing.T) {
	d, adapter := newMockDispatcher(t, nil)

	res := d.ValidateInput(SynthesisRequest{Text: "hello world"})
	if !res.Valid || res.CharacterCount != 11 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.EstimatedDuration <= 0 {
		t.Error("estimated duration should be positive")
	}

	if res := d.ValidateInput(SynthesisRequest{Text: ""}); res.Valid || len(res.Errors) == 0 {
		t.Errorf("empty text should be invalid: %+v", res)
	}

	long := make([]byte, maxTextLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if res := d.ValidateInput(SynthesisRequest{Text: string(long)}); res.Valid {
		t.Error("over-limit text should be invalid")
	}

	warn := make([]byte, textLengthWarnThreshold+1)
	for i := range warn {
		warn[i] = 'a'
	}
	if res := d.ValidateInput(SynthesisRequest{Text: string(warn)}); !res.Valid || len(res.Warnings) == 0 {
		t.Errorf("near-limit text should warn but stay valid: %+v", res)
	}

	// Validation never contacts the provider.
	if adapter.Calls("synthesize") != 0 {
		t.Error("ValidateInput must stay local")
	}
}

func TestDispatcherBatchMixedValidation(t *testing.T) {
	d, _ := newMockDispatcher(t, func(cfg *DispatcherConfig) {
		cfg.BatchConcurrency = 2
	})

	reqs := []SynthesisRequest{
		{Text: "one", VoiceID: "mock-en-1"},
		{Text: ""}, // rejected locally
		{Text: "three", VoiceID: "mock-en-1"},
	}
	results := d.SynthesizeBatch(context.Background(), reqs)
	if len(results) != 3 {
		t.Fatalf("%d results, want 3", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("valid items should succeed")
	}
	if KindOf(results[1].Err) != KindInvalidInput {
		t.Errorf("results[1] kind = %v, want KindInvalidInput at its original position", KindOf(results[1].Err))
	}
	if !bytes.Equal(results[2].Result.Audio, mockAudio("three")) {
		t.Error("positional mapping broken around the invalid item")
	}
}

func TestDispatcherGetCapabilities(t *testing.T) {
	d, _ := newMockDispatcher(t, nil)
	caps := d.GetCapabilities()
	if caps[FeatureStreaming] != Supported {
		t.Error("mock streaming should be Supported")
	}
	if caps[FeatureLexicons] != Unsupported {
		t.Error("mock lexicons should be Unsupported")
	}
	if d.Provider() != ProviderMock {
		t.Errorf("Provider() = %q", d.Provider())
	}
}
