package tts

import "fmt"

// Common audio constants.
const (
	// Standard sample rates.
	sampleRateDefault = 24000
	sampleRate44100   = 44100

	// Bit depths.
	bitDepthDefault = 16
)

// Voice settings bounds.
const (
	minSpeed      = 0.25
	maxSpeed      = 4.0
	minPitch      = -20.0
	maxPitch      = 20.0
	maxTextLength = 5000

	// estimatedSecondsPerChar approximates speech duration from text length.
	estimatedSecondsPerChar = 0.05

	// textLengthWarnThreshold is where ValidateInput starts warning.
	textLengthWarnThreshold = 4000
)

// TextType identifies how synthesis input text should be interpreted.
type TextType string

// Supported text types.
const (
	// TextTypePlain is unannotated text.
	TextTypePlain TextType = "plain"

	// TextTypeSSML is Speech Synthesis Markup Language.
	// Only some providers accept SSML input - check FeatureSSML.
	TextTypeSSML TextType = "ssml"
)

// SynthesisRequest describes one text-to-speech conversion.
// Requests are treated as immutable once constructed; components copy
// rather than mutate them.
type SynthesisRequest struct {
	// Text is the content to synthesize. Must be non-empty.
	Text string

	// TextType is how Text should be interpreted. Defaults to TextTypePlain.
	TextType TextType

	// Language is the BCP-47 language tag (e.g. "en-US"). Optional for
	// providers that infer language from the voice.
	Language string

	// VoiceID selects the provider voice.
	VoiceID string

	// Settings optionally tunes voice delivery.
	Settings *VoiceSettings

	// Output configures the audio produced.
	Output AudioConfig
}

// VoiceSettings tunes voice delivery. Every field is optional; nil means
// provider default. Values outside the documented bounds are rejected as
// InvalidInput before any adapter call.
type VoiceSettings struct {
	// Speed is the speech rate multiplier (0.25-4.0).
	Speed *float64

	// Pitch adjusts the voice pitch in semitones (-20 to 20).
	Pitch *float64

	// Volume is the gain (0.0-1.0).
	Volume *float64

	// Stability controls delivery consistency (0.0-1.0, ElevenLabs-style).
	Stability *float64

	// Similarity controls likeness to the reference voice (0.0-1.0,
	// ElevenLabs-style).
	Similarity *float64
}

// Validate checks all set fields against their bounds.
func (s *VoiceSettings) Validate() error {
	if s == nil {
		return nil
	}
	if s.Speed != nil && (*s.Speed < minSpeed || *s.Speed > maxSpeed) {
		return NewError(KindInvalidInput, "", "",
			fmt.Sprintf("speed %.2f out of range [%.2f, %.2f]", *s.Speed, minSpeed, maxSpeed), nil)
	}
	if s.Pitch != nil && (*s.Pitch < minPitch || *s.Pitch > maxPitch) {
		return NewError(KindInvalidInput, "", "",
			fmt.Sprintf("pitch %.1f out of range [%.1f, %.1f]", *s.Pitch, minPitch, maxPitch), nil)
	}
	for name, v := range map[string]*float64{
		"volume":     s.Volume,
		"stability":  s.Stability,
		"similarity": s.Similarity,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return NewError(KindInvalidInput, "", "",
				fmt.Sprintf("%s %.2f out of range [0, 1]", name, *v), nil)
		}
	}
	return nil
}

// AudioConfig configures synthesis output audio.
type AudioConfig struct {
	// Format is the output audio format. Zero value means provider default.
	Format AudioFormat

	// SampleRate overrides the format sample rate when non-zero.
	SampleRate int

	// Channels is the channel count (1=mono, 2=stereo). Zero means mono.
	Channels int
}

// AudioFormat describes an audio output format.
type AudioFormat struct {
	// Name is the format identifier ("mp3", "opus", "pcm", "wav", "flac").
	Name string

	// MIMEType is the content type (e.g. "audio/mpeg").
	MIMEType string

	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// BitDepth is the bits per sample (for PCM formats).
	BitDepth int

	// Channels is the number of audio channels.
	Channels int
}

// Common audio formats.
var (
	// FormatMP3 is MP3 format (most compatible).
	FormatMP3 = AudioFormat{
		Name:       "mp3",
		MIMEType:   "audio/mpeg",
		SampleRate: sampleRateDefault,
		BitDepth:   0, // Compressed
		Channels:   1,
	}

	// FormatOpus is Opus format (best for streaming).
	FormatOpus = AudioFormat{
		Name:       "opus",
		MIMEType:   "audio/opus",
		SampleRate: sampleRateDefault,
		BitDepth:   0, // Compressed
		Channels:   1,
	}

	// FormatPCM16 is raw 16-bit PCM.
	FormatPCM16 = AudioFormat{
		Name:       "pcm",
		MIMEType:   "audio/pcm",
		SampleRate: sampleRateDefault,
		BitDepth:   bitDepthDefault,
		Channels:   1,
	}

	// FormatWAV is WAV format (PCM with header).
	FormatWAV = AudioFormat{
		Name:       "wav",
		MIMEType:   "audio/wav",
		SampleRate: sampleRateDefault,
		BitDepth:   bitDepthDefault,
		Channels:   1,
	}

	// FormatFLAC is FLAC format (lossless).
	FormatFLAC = AudioFormat{
		Name:       "flac",
		MIMEType:   "audio/flac",
		SampleRate: sampleRateDefault,
		BitDepth:   bitDepthDefault,
		Channels:   1,
	}
)

// String returns the format name.
func (f AudioFormat) String() string {
	return f.Name
}

// SynthesisResult is the outcome of one synthesis operation.
// The caller owns the result exclusively after return.
type SynthesisResult struct {
	// Audio is the raw audio bytes.
	Audio []byte

	// Format is the resolved output format.
	Format AudioFormat

	// Marks are optional word/sentence boundary timings.
	Marks []SpeechMark

	// Metadata carries optional provider accounting data.
	Metadata *SynthesisMetadata

	// Incomplete is set when Audio is partial output from a streaming
	// session that ended in error or cancellation.
	Incomplete bool
}

// SynthesisMetadata carries provider accounting data attached to a result.
type SynthesisMetadata struct {
	// Provider is the originating provider name.
	Provider string

	// CharactersBilled is the character count the provider charged for.
	CharactersBilled int

	// RequestID is the provider-side request identifier, when reported.
	RequestID string

	// Stubbed marks deterministic placeholder results from planned-stub
	// operations.
	Stubbed bool
}

// SpeechMarkType identifies the granularity of a speech mark.
type SpeechMarkType string

// Speech mark granularities.
const (
	MarkWord     SpeechMarkType = "word"
	MarkSentence SpeechMarkType = "sentence"
)

// SpeechMark is a timing boundary within synthesized audio.
type SpeechMark struct {
	// TimeMillis is the offset from audio start.
	TimeMillis int

	// Type is the mark granularity.
	Type SpeechMarkType

	// Start and End are byte offsets into the source text.
	Start int
	End   int

	// Value is the marked text.
	Value string
}

// Voice describes a provider voice. Produced by adapters, read-only to
// callers.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is a human-readable voice name.
	Name string

	// Language is the primary language code (e.g. "en", "es").
	Language string

	// AdditionalLanguages lists other languages the voice speaks.
	AdditionalLanguages []string

	// Gender is the voice gender ("male", "female", "neutral").
	Gender string

	// Quality is the provider quality tier ("standard", "neural", "generative").
	Quality string

	// Description provides additional voice characteristics.
	Description string

	// Provider is the owning provider name.
	Provider string

	// PreviewURL is a voice sample URL, when available.
	PreviewURL string
}

// VoiceFilter narrows ListVoices and SearchVoices results.
// A nil filter matches everything.
type VoiceFilter struct {
	// Language matches the voice primary or additional languages.
	Language string

	// Gender matches the voice gender exactly.
	Gender string
}

// Matches reports whether the voice passes the filter.
func (f *VoiceFilter) Matches(v Voice) bool {
	if f == nil {
		return true
	}
	if f.Gender != "" && v.Gender != f.Gender {
		return false
	}
	if f.Language != "" {
		if v.Language == f.Language {
			return true
		}
		for _, l := range v.AdditionalLanguages {
			if l == f.Language {
				return true
			}
		}
		return false
	}
	return true
}

// ValidationResult reports whether a request's text is synthesizable
// without contacting the provider.
type ValidationResult struct {
	Valid             bool
	CharacterCount    int
	EstimatedDuration float64 // seconds
	Warnings          []string
	Errors            []string
}

// LanguageInfo summarizes voice availability for one language.
type LanguageInfo struct {
	Code       string
	Name       string
	VoiceCount int
}
