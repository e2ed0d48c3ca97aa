package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	googleBaseURL = "https://texttospeech.googleapis.com/v1"

	// Default timeout for Google Cloud TTS requests.
	defaultGoogleTimeout = 60 * time.Second
)

func init() {
	RegisterAdapterFactory(ProviderGoogle, func(spec AdapterSpec) (Adapter, error) {
		var opts []GoogleOption
		if spec.BaseURL != "" {
			opts = append(opts, WithGoogleBaseURL(spec.BaseURL))
		}
		return NewGoogleAdapter(spec.APIKey, opts...), nil
	})
}

// GoogleAdapter connects to the Google Cloud Text-to-Speech REST API.
// Authentication is either an API key or an OAuth2 token source (service
// account flows); the token source wins when both are set.
type GoogleAdapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
	tokens  oauth2.TokenSource
}

// GoogleOption configures the Google adapter.
type GoogleOption func(*GoogleAdapter)

// WithGoogleBaseURL sets a custom base URL.
func WithGoogleBaseURL(url string) GoogleOption {
	return func(a *GoogleAdapter) {
		a.baseURL = url
	}
}

// WithGoogleClient sets a custom HTTP client.
func WithGoogleClient(client *http.Client) GoogleOption {
	return func(a *GoogleAdapter) {
		a.client = client
	}
}

// WithGoogleTokenSource authenticates with OAuth2 bearer tokens instead of
// an API key.
func WithGoogleTokenSource(ts oauth2.TokenSource) GoogleOption {
	return func(a *GoogleAdapter) {
		a.tokens = ts
	}
}

// NewGoogleAdapter creates a Google Cloud TTS adapter.
func NewGoogleAdapter(apiKey string, opts ...GoogleOption) *GoogleAdapter {
	a := &GoogleAdapter{
		apiKey:  apiKey,
		baseURL: googleBaseURL,
		client:  &http.Client{Timeout: defaultGoogleTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Adapter.
func (a *GoogleAdapter) Name() string {
	return ProviderGoogle
}

// authorize attaches credentials to the request URL or headers.
func (a *GoogleAdapter) authorize(req *http.Request) error {
	if a.tokens != nil {
		token, err := a.tokens.Token()
		if err != nil {
			return fmt.Errorf("failed to fetch token: %w", err)
		}
		token.SetAuthHeader(req)
		return nil
	}
	q := req.URL.Query()
	q.Set("key", a.apiKey)
	req.URL.RawQuery = q.Encode()
	return nil
}

// googleSynthesisRequest is the text:synthesize request body.
type googleSynthesisRequest struct {
	Input       googleInput       `json:"input"`
	Voice       googleVoiceSelect `json:"voice"`
	AudioConfig googleAudioConfig `json:"audioConfig"`
}

// googleInput carries exactly one of Text and SSML.
type googleInput struct {
	Text string `json:"text,omitempty"`
	SSML string `json:"ssml,omitempty"`
}

type googleVoiceSelect struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
}

type googleAudioConfig struct {
	AudioEncoding   string   `json:"audioEncoding"`
	SpeakingRate    *float64 `json:"speakingRate,omitempty"`
	Pitch           *float64 `json:"pitch,omitempty"`
	VolumeGainDB    *float64 `json:"volumeGainDb,omitempty"`
	SampleRateHertz int      `json:"sampleRateHertz,omitempty"`
}

// googleSynthesisResponse carries the base64-encoded audio.
type googleSynthesisResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize implements Adapter.
func (a *GoogleAdapter) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	input := googleInput{Text: req.Text}
	if req.TextType == TextTypeSSML {
		input = googleInput{SSML: req.Text}
	}

	language := req.Language
	if language == "" {
		// Voice names embed the language ("en-US-Neural2-A").
		language = languageFromVoiceName(req.VoiceID)
	}

	audioCfg := googleAudioConfig{
		AudioEncoding:   a.mapFormat(req.Output.Format),
		SampleRateHertz: req.Output.SampleRate,
	}
	if s := req.Settings; s != nil {
		audioCfg.SpeakingRate = s.Speed
		audioCfg.Pitch = s.Pitch
		if s.Volume != nil {
			// The API takes gain in dB; map the 0-1 volume onto -96..0.
			gain := (*s.Volume - 1) * 96
			audioCfg.VolumeGainDB = &gain
		}
	}

	body, err := json.Marshal(googleSynthesisRequest{
		Input:       input,
		Voice:       googleVoiceSelect{LanguageCode: language, Name: req.VoiceID},
		AudioConfig: audioCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/text:synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := a.authorize(httpReq); err != nil {
		return nil, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, a.handleError(resp)
	}

	var payload googleSynthesisResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(payload.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}

	return &SynthesisResult{
		Audio:  audio,
		Format: resolveFormat(req.Output),
		Metadata: &SynthesisMetadata{
			Provider:         ProviderGoogle,
			CharactersBilled: len(req.Text),
		},
	}, nil
}

// googleVoicesResponse is the /voices listing payload.
type googleVoicesResponse struct {
	Voices []struct {
		LanguageCodes []string `json:"languageCodes"`
		Name          string   `json:"name"`
		Gender        string   `json:"ssmlGender"`
	} `json:"voices"`
}

// ListVoices implements Adapter.
func (a *GoogleAdapter) ListVoices(ctx context.Context, filter *VoiceFilter) ([]Voice, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := a.authorize(httpReq); err != nil {
		return nil, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, a.handleError(resp)
	}

	var payload googleVoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode voices: %w", err)
	}

	voices := make([]Voice, 0, len(payload.Voices))
	for _, v := range payload.Voices {
		language := ""
		var additional []string
		if len(v.LanguageCodes) > 0 {
			language = v.LanguageCodes[0]
			additional = v.LanguageCodes[1:]
		}
		voice := Voice{
			ID:                  v.Name,
			Name:                v.Name,
			Language:            language,
			AdditionalLanguages: additional,
			Gender:              strings.ToLower(v.Gender),
			Quality:             qualityFromVoiceName(v.Name),
			Provider:            ProviderGoogle,
		}
		if filter.Matches(voice) {
			voices = append(voices, voice)
		}
	}
	return voices, nil
}

// StartStream implements Adapter. The REST API has no incremental input.
func (a *GoogleAdapter) StartStream(ctx context.Context, opts StreamOptions) (ProviderStream, error) {
	return nil, NewError(KindUnsupportedOperation, ProviderGoogle, "", "streaming is not supported", nil)
}

// SpeechMarks implements SpeechMarker as a deterministic placeholder until
// the v1beta1 timepoint API is wired up.
func (a *GoogleAdapter) SpeechMarks(ctx context.Context, req SynthesisRequest) ([]SpeechMark, error) {
	return []SpeechMark{}, nil
}

// mapFormat converts an AudioFormat to the Google audioEncoding value.
func (a *GoogleAdapter) mapFormat(format AudioFormat) string {
	switch format.Name {
	case "pcm", "wav":
		return "LINEAR16"
	case "opus":
		return "OGG_OPUS"
	default:
		return "MP3"
	}
}

// languageFromVoiceName extracts the BCP-47 tag prefix from voice names
// like "en-US-Neural2-A".
func languageFromVoiceName(name string) string {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}

// qualityFromVoiceName maps Google voice families onto quality tiers.
func qualityFromVoiceName(name string) string {
	switch {
	case strings.Contains(name, "Neural"), strings.Contains(name, "Wavenet"):
		return "neural"
	case strings.Contains(name, "Studio"), strings.Contains(name, "Journey"):
		return "generative"
	default:
		return "standard"
	}
}

// googleErrorResponse is the standard Google API error envelope.
type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// handleError captures a non-success response as a raw HTTPError.
func (a *GoogleAdapter) handleError(resp *http.Response) error {
	httpErr := &HTTPError{
		Provider: ProviderGoogle,
		Status:   resp.StatusCode,
	}

	var errResp googleErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
		httpErr.Code = errResp.Error.Status
		httpErr.Message = errResp.Error.Message
	}
	return httpErr
}
