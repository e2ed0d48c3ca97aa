package tts

import "context"

// Adapter is the fixed contract every vendor connector satisfies.
// Adapters translate the canonical model to the vendor wire format and
// report failures raw (as *HTTPError or wrapped transport errors); they
// never retry and never classify beyond what the wire said.
type Adapter interface {
	// Name returns the provider identifier (for logging and error
	// attribution).
	Name() string

	// ListVoices returns the provider's voices, optionally filtered.
	ListVoices(ctx context.Context, filter *VoiceFilter) ([]Voice, error)

	// Synthesize converts one request to audio.
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)

	// StartStream opens an incremental synthesis conversation. Adapters
	// for providers without streaming return an unsupported-operation
	// error; the dispatcher normally short-circuits before reaching them.
	StartStream(ctx context.Context, opts StreamOptions) (ProviderStream, error)
}

// ProviderStream is one open streaming conversation at the vendor.
// Implementations need not be safe for concurrent use; the session manager
// serializes all calls on one stream.
type ProviderStream interface {
	// SendText forwards one text chunk. It returns only once the provider
	// acknowledged the chunk, or with the failure.
	SendText(ctx context.Context, text string) error

	// ReceiveAudio returns audio produced since the last call.
	// A nil slice with nil error means nothing is pending yet.
	ReceiveAudio(ctx context.Context) ([]byte, error)

	// Finish signals end-of-stream and returns any remaining audio.
	Finish(ctx context.Context) ([]byte, error)

	// Close releases the underlying connection. Safe to call after Finish.
	Close() error
}

// StreamOptions configures a streaming session.
type StreamOptions struct {
	// VoiceID selects the provider voice (for Deepgram-style providers
	// this is the model name).
	VoiceID string

	// Output configures the audio produced.
	Output AudioConfig

	// Language is the synthesis language tag, when the provider wants one.
	Language string
}

// VoiceCloner is implemented by adapters whose provider can create custom
// voices from reference audio.
type VoiceCloner interface {
	// CloneVoice creates a voice from samples and returns its ID.
	CloneVoice(ctx context.Context, name string, samples [][]byte, description string) (string, error)
}

// SpeechMarker is implemented by adapters whose provider can report
// word/sentence boundary timings without (or alongside) audio.
type SpeechMarker interface {
	SpeechMarks(ctx context.Context, req SynthesisRequest) ([]SpeechMark, error)
}

// LexiconManager is implemented by adapters whose provider supports
// pronunciation lexicons.
type LexiconManager interface {
	// CreateLexicon registers a lexicon and returns its ID.
	CreateLexicon(ctx context.Context, name, language string) (string, error)
}

// SoundEffectGenerator is implemented by adapters whose provider can
// generate non-speech audio from a description.
type SoundEffectGenerator interface {
	GenerateSoundEffect(ctx context.Context, description string, durationSeconds float64) (*SynthesisResult, error)
}

// AdapterFactory creates an adapter from a spec.
type AdapterFactory func(spec AdapterSpec) (Adapter, error)

var adapterFactories = make(map[string]AdapterFactory)

// RegisterAdapterFactory registers a factory for a provider type. Called
// from init in each adapter file; external connectors can register their
// own types before building a dispatcher.
func RegisterAdapterFactory(providerType string, factory AdapterFactory) {
	adapterFactories[providerType] = factory
}

// AdapterSpec holds the configuration needed to create an adapter instance.
// Credentials arrive already validated; this package does no environment
// parsing.
type AdapterSpec struct {
	// Type selects the adapter implementation (elevenlabs, polly, google,
	// deepgram, mock).
	Type string

	// APIKey is the vendor credential for key-authenticated providers.
	APIKey string

	// BaseURL overrides the vendor endpoint. Empty means the production
	// endpoint.
	BaseURL string

	// Region is the service region for region-scoped providers (Polly).
	Region string

	// AccessKeyID and SecretAccessKey are SigV4 credentials (Polly).
	AccessKeyID     string
	SecretAccessKey string
}

// CreateAdapterFromSpec creates an adapter implementation from a spec.
// Returns an error for unknown provider types.
func CreateAdapterFromSpec(spec AdapterSpec) (Adapter, error) {
	factory, ok := adapterFactories[spec.Type]
	if !ok {
		return nil, &UnsupportedProviderError{ProviderType: spec.Type}
	}
	return factory(spec)
}

// UnsupportedProviderError is returned when a provider type is not
// recognized.
type UnsupportedProviderError struct {
	ProviderType string
}

func (e *UnsupportedProviderError) Error() string {
	return "unsupported provider type: " + e.ProviderType
}
