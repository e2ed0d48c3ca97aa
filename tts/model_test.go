package tts

import "testing"

func f(v float64) *float64 { return &v }

func TestVoiceSettingsValidate(t *testing.T) {
	tests := []struct {
		name     string
		settings *VoiceSettings
		wantErr  bool
	}{
		{"nil settings", nil, false},
		{"empty settings", &VoiceSettings{}, false},
		{"all in range", &VoiceSettings{Speed: f(1.5), Pitch: f(-5), Volume: f(0.8), Stability: f(0.5), Similarity: f(1)}, false},
		{"speed at bounds", &VoiceSettings{Speed: f(0.25)}, false},
		{"speed too slow", &VoiceSettings{Speed: f(0.1)}, true},
		{"speed too fast", &VoiceSettings{Speed: f(4.5)}, true},
		{"pitch too low", &VoiceSettings{Pitch: f(-21)}, true},
		{"pitch too high", &VoiceSettings{Pitch: f(20.5)}, true},
		{"volume negative", &VoiceSettings{Volume: f(-0.1)}, true},
		{"stability above one", &VoiceSettings{Stability: f(1.1)}, true},
		{"similarity above one", &VoiceSettings{Similarity: f(2)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && KindOf(err) != KindInvalidInput {
				t.Errorf("kind = %v, want KindInvalidInput", KindOf(err))
			}
		})
	}
}

func TestVoiceFilterMatches(t *testing.T) {
	voice := Voice{
		ID:                  "v1",
		Language:            "en",
		AdditionalLanguages: []string{"es", "fr"},
		Gender:              "female",
	}

	tests := []struct {
		name   string
		filter *VoiceFilter
		want   bool
	}{
		{"nil filter", nil, true},
		{"empty filter", &VoiceFilter{}, true},
		{"primary language", &VoiceFilter{Language: "en"}, true},
		{"additional language", &VoiceFilter{Language: "fr"}, true},
		{"wrong language", &VoiceFilter{Language: "ja"}, false},
		{"matching gender", &VoiceFilter{Gender: "female"}, true},
		{"wrong gender", &VoiceFilter{Gender: "male"}, false},
		{"both match", &VoiceFilter{Language: "es", Gender: "female"}, true},
		{"language matches gender does not", &VoiceFilter{Language: "es", Gender: "male"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(voice); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveFormat(t *testing.T) {
	if got := resolveFormat(AudioConfig{}); got.Name != "mp3" {
		t.Errorf("zero config resolves to %v, want mp3 default", got.Name)
	}

	got := resolveFormat(AudioConfig{Format: FormatPCM16, SampleRate: 8000, Channels: 2})
	if got.Name != "pcm" || got.SampleRate != 8000 || got.Channels != 2 {
		t.Errorf("resolved = %+v, overrides not applied", got)
	}

	// Overrides never mutate the shared format variables.
	if FormatPCM16.SampleRate != sampleRateDefault || FormatPCM16.Channels != 1 {
		t.Error("resolveFormat mutated a package format variable")
	}
}

func TestCreateAdapterFromSpec(t *testing.T) {
	for _, typ := range []string{ProviderElevenLabs, ProviderPolly, ProviderGoogle, ProviderDeepgram, ProviderMock} {
		adapter, err := CreateAdapterFromSpec(AdapterSpec{Type: typ, APIKey: "k", AccessKeyID: "a", SecretAccessKey: "s"})
		if err != nil {
			t.Errorf("CreateAdapterFromSpec(%s): %v", typ, err)
			continue
		}
		if adapter.Name() != typ {
			t.Errorf("adapter name = %v, want %v", adapter.Name(), typ)
		}
	}

	if _, err := CreateAdapterFromSpec(AdapterSpec{Type: "daleks"}); err == nil {
		t.Error("unknown provider type should fail")
	}
}
