package tts

// Provider identifiers for the built-in adapter set.
const (
	ProviderElevenLabs = "elevenlabs"
	ProviderPolly      = "polly"
	ProviderGoogle     = "google"
	ProviderDeepgram   = "deepgram"
	ProviderMock       = "mock"
)

// Feature identifies an optional provider capability.
type Feature string

// Optional features tracked by the capability registry. Core synthesis and
// voice listing are universal and not feature-gated.
const (
	FeatureStreaming    Feature = "streaming"
	FeatureVoiceCloning Feature = "voice_cloning"
	FeatureLexicons     Feature = "lexicons"
	FeatureSSML         Feature = "ssml"
	FeatureSoundEffects Feature = "sound_effects"
	FeatureSpeechMarks  Feature = "speech_marks"
)

// Support is the tri-state answer for one provider/feature pair.
type Support int

// Support levels.
const (
	// Unsupported operations are rejected synchronously; the adapter is
	// never invoked.
	Unsupported Support = iota

	// PlannedStub operations are forwarded to the adapter, which returns a
	// deterministic placeholder result.
	PlannedStub

	// Supported operations are forwarded normally.
	Supported
)

// String returns the support level name.
func (s Support) String() string {
	switch s {
	case Supported:
		return "supported"
	case PlannedStub:
		return "planned-stub"
	default:
		return "unsupported"
	}
}

// CapabilityMatrix records one provider's support level per feature.
// Features absent from the map are Unsupported.
type CapabilityMatrix map[Feature]Support

// defaultCapabilities is the static feature table for the built-in
// providers, derived from what each vendor API actually offers.
var defaultCapabilities = map[string]CapabilityMatrix{
	ProviderElevenLabs: {
		FeatureVoiceCloning: Supported,
		FeatureSoundEffects: PlannedStub,
	},
	ProviderPolly: {
		FeatureSSML:        Supported,
		FeatureSpeechMarks: Supported,
		FeatureLexicons:    PlannedStub,
	},
	ProviderGoogle: {
		FeatureSSML:        Supported,
		FeatureSpeechMarks: PlannedStub,
	},
	ProviderDeepgram: {
		FeatureStreaming: Supported,
	},
	ProviderMock: {
		FeatureStreaming:    Supported,
		FeatureVoiceCloning: Supported,
		FeatureSSML:         Supported,
		FeatureSpeechMarks:  Supported,
	},
}

// Registry answers capability queries ahead of adapter invocation.
// It is built once at startup and never mutated afterwards, so lookups are
// safe for concurrent use without locking.
type Registry struct {
	matrices map[string]CapabilityMatrix
}

// NewRegistry creates a registry over the built-in capability table.
func NewRegistry() *Registry {
	return NewRegistryWithMatrices(defaultCapabilities)
}

// NewRegistryWithMatrices creates a registry from an explicit table,
// copying it so later mutation of the argument cannot leak in.
func NewRegistryWithMatrices(matrices map[string]CapabilityMatrix) *Registry {
	copied := make(map[string]CapabilityMatrix, len(matrices))
	for provider, matrix := range matrices {
		m := make(CapabilityMatrix, len(matrix))
		for f, s := range matrix {
			m[f] = s
		}
		copied[provider] = m
	}
	return &Registry{matrices: copied}
}

// Supports reports the support level for a provider/feature pair.
// Unknown providers and unknown features are Unsupported.
func (r *Registry) Supports(provider string, feature Feature) Support {
	matrix, ok := r.matrices[provider]
	if !ok {
		return Unsupported
	}
	return matrix[feature]
}

// Capabilities returns a copy of the provider's full matrix, with every
// tracked feature present. Unknown providers get an all-Unsupported matrix.
func (r *Registry) Capabilities(provider string) CapabilityMatrix {
	out := make(CapabilityMatrix, len(allFeatures))
	for _, f := range allFeatures {
		out[f] = r.Supports(provider, f)
	}
	return out
}

var allFeatures = []Feature{
	FeatureStreaming,
	FeatureVoiceCloning,
	FeatureLexicons,
	FeatureSSML,
	FeatureSoundEffects,
	FeatureSpeechMarks,
}
