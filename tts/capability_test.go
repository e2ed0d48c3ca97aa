package tts

import "testing"

func TestDefaultCapabilityTable(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		provider string
		feature  Feature
		want     Support
	}{
		{ProviderElevenLabs, FeatureVoiceCloning, Supported},
		{ProviderElevenLabs, FeatureSoundEffects, PlannedStub},
		{ProviderElevenLabs, FeatureStreaming, Unsupported},
		{ProviderPolly, FeatureSSML, Supported},
		{ProviderPolly, FeatureSpeechMarks, Supported},
		{ProviderPolly, FeatureLexicons, PlannedStub},
		{ProviderPolly, FeatureVoiceCloning, Unsupported},
		{ProviderGoogle, FeatureSSML, Supported},
		{ProviderGoogle, FeatureSpeechMarks, PlannedStub},
		{ProviderDeepgram, FeatureStreaming, Supported},
		{ProviderDeepgram, FeatureSSML, Unsupported},
		{ProviderMock, FeatureStreaming, Supported},
	}
	for _, tt := range tests {
		if got := reg.Supports(tt.provider, tt.feature); got != tt.want {
			t.Errorf("Supports(%s, %s) = %v, want %v", tt.provider, tt.feature, got, tt.want)
		}
	}
}

func TestUnknownProviderAndFeature(t *testing.T) {
	reg := NewRegistry()
	if got := reg.Supports("nonexistent", FeatureStreaming); got != Unsupported {
		t.Errorf("unknown provider = %v, want Unsupported", got)
	}
	if got := reg.Supports(ProviderPolly, Feature("telepathy")); got != Unsupported {
		t.Errorf("unknown feature = %v, want Unsupported", got)
	}
}

func TestCapabilitiesListsEveryFeature(t *testing.T) {
	reg := NewRegistry()
	matrix := reg.Capabilities(ProviderDeepgram)
	if len(matrix) != len(allFeatures) {
		t.Fatalf("matrix has %d entries, want %d", len(matrix), len(allFeatures))
	}
	if matrix[FeatureStreaming] != Supported {
		t.Error("deepgram streaming should be Supported")
	}
	if matrix[FeatureVoiceCloning] != Unsupported {
		t.Error("deepgram voice cloning should be Unsupported")
	}

	// The returned matrix is a copy; mutating it must not affect lookups.
	matrix[FeatureVoiceCloning] = Supported
	if reg.Supports(ProviderDeepgram, FeatureVoiceCloning) != Unsupported {
		t.Error("mutating a returned matrix leaked into the registry")
	}
}

func TestRegistryCopiesInput(t *testing.T) {
	custom := map[string]CapabilityMatrix{
		"acme": {FeatureStreaming: Supported},
	}
	reg := NewRegistryWithMatrices(custom)
	custom["acme"][FeatureStreaming] = Unsupported

	if reg.Supports("acme", FeatureStreaming) != Supported {
		t.Error("mutating the source table leaked into the registry")
	}
}

func TestSupportString(t *testing.T) {
	tests := []struct {
		s    Support
		want string
	}{
		{Supported, "supported"},
		{PlannedStub, "planned-stub"},
		{Unsupported, "unsupported"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Support(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
