package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io/v1"

	// ElevenLabsModelMultilingual is the multilingual v2 model.
	ElevenLabsModelMultilingual = "eleven_multilingual_v2"
	// ElevenLabsModelTurbo is the fast turbo v2.5 model.
	ElevenLabsModelTurbo = "eleven_turbo_v2_5"

	// Default timeout for ElevenLabs requests.
	defaultElevenLabsTimeout = 60 * time.Second

	// Default voice settings sent when the request carries none.
	elevenLabsDefaultStability       = 0.5
	elevenLabsDefaultSimilarityBoost = 0.75

	// Audio format identifiers on the wire.
	elevenLabsFormatMP3 = "mp3_44100_128"
	elevenLabsFormatPCM = "pcm_24000"
)

func init() {
	RegisterAdapterFactory(ProviderElevenLabs, func(spec AdapterSpec) (Adapter, error) {
		var opts []ElevenLabsOption
		if spec.BaseURL != "" {
			opts = append(opts, WithElevenLabsBaseURL(spec.BaseURL))
		}
		return NewElevenLabsAdapter(spec.APIKey, opts...), nil
	})
}

// ElevenLabsAdapter connects to the ElevenLabs API. ElevenLabs specializes
// in high-quality voice cloning and natural-sounding speech; sound effect
// generation is stubbed pending API access.
type ElevenLabsAdapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
	model   string
}

// ElevenLabsOption configures the ElevenLabs adapter.
type ElevenLabsOption func(*ElevenLabsAdapter)

// WithElevenLabsBaseURL sets a custom base URL.
func WithElevenLabsBaseURL(url string) ElevenLabsOption {
	return func(a *ElevenLabsAdapter) {
		a.baseURL = url
	}
}

// WithElevenLabsClient sets a custom HTTP client.
func WithElevenLabsClient(client *http.Client) ElevenLabsOption {
	return func(a *ElevenLabsAdapter) {
		a.client = client
	}
}

// WithElevenLabsModel sets the synthesis model.
func WithElevenLabsModel(model string) ElevenLabsOption {
	return func(a *ElevenLabsAdapter) {
		a.model = model
	}
}

// NewElevenLabsAdapter creates an ElevenLabs adapter.
func NewElevenLabsAdapter(apiKey string, opts ...ElevenLabsOption) *ElevenLabsAdapter {
	a := &ElevenLabsAdapter{
		apiKey:  apiKey,
		baseURL: elevenLabsBaseURL,
		client:  &http.Client{Timeout: defaultElevenLabsTimeout},
		model:   ElevenLabsModelMultilingual,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Adapter.
func (a *ElevenLabsAdapter) Name() string {
	return ProviderElevenLabs
}

// elevenLabsSynthesisRequest is the request body for the TTS endpoint.
type elevenLabsSynthesisRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id,omitempty"`
	LanguageCode  string                   `json:"language_code,omitempty"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

// elevenLabsVoiceSettings configures voice parameters on the wire.
type elevenLabsVoiceSettings struct {
	Stability       float64  `json:"stability"`
	SimilarityBoost float64  `json:"similarity_boost"`
	Speed           *float64 `json:"speed,omitempty"`
}

// Synthesize implements Adapter.
func (a *ElevenLabsAdapter) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	settings := &elevenLabsVoiceSettings{
		Stability:       elevenLabsDefaultStability,
		SimilarityBoost: elevenLabsDefaultSimilarityBoost,
	}
	if s := req.Settings; s != nil {
		if s.Stability != nil {
			settings.Stability = *s.Stability
		}
		if s.Similarity != nil {
			settings.SimilarityBoost = *s.Similarity
		}
		settings.Speed = s.Speed
	}

	reqBody := elevenLabsSynthesisRequest{
		Text:          req.Text,
		ModelID:       a.model,
		LanguageCode:  req.Language,
		VoiceSettings: settings,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s",
		a.baseURL, req.VoiceID, a.mapFormat(req.Output.Format))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, a.handleError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	return &SynthesisResult{
		Audio:  audio,
		Format: resolveFormat(req.Output),
		Metadata: &SynthesisMetadata{
			Provider:         ProviderElevenLabs,
			CharactersBilled: len(req.Text),
			RequestID:        resp.Header.Get("request-id"),
		},
	}, nil
}

// elevenLabsVoicesResponse is the /voices listing payload.
type elevenLabsVoicesResponse struct {
	Voices []struct {
		VoiceID    string            `json:"voice_id"`
		Name       string            `json:"name"`
		Category   string            `json:"category"`
		Labels     map[string]string `json:"labels"`
		Desc       string            `json:"description"`
		PreviewURL string            `json:"preview_url"`
	} `json:"voices"`
}

// ListVoices implements Adapter.
func (a *ElevenLabsAdapter) ListVoices(ctx context.Context, filter *VoiceFilter) ([]Voice, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, a.handleError(resp)
	}

	var payload elevenLabsVoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode voices: %w", err)
	}

	voices := make([]Voice, 0, len(payload.Voices))
	for _, v := range payload.Voices {
		voice := Voice{
			ID:          v.VoiceID,
			Name:        v.Name,
			Language:    v.Labels["language"],
			Gender:      v.Labels["gender"],
			Quality:     v.Category,
			Description: v.Desc,
			Provider:    ProviderElevenLabs,
			PreviewURL:  v.PreviewURL,
		}
		if filter.Matches(voice) {
			voices = append(voices, voice)
		}
	}
	return voices, nil
}

// StartStream implements Adapter. ElevenLabs streaming input is not wired
// up; the dispatcher short-circuits before reaching this.
func (a *ElevenLabsAdapter) StartStream(ctx context.Context, opts StreamOptions) (ProviderStream, error) {
	return nil, NewError(KindUnsupportedOperation, ProviderElevenLabs, "", "streaming is not supported", nil)
}

// elevenLabsCloneResponse is the /voices/add payload.
type elevenLabsCloneResponse struct {
	VoiceID string `json:"voice_id"`
}

// CloneVoice implements VoiceCloner using the instant voice cloning
// endpoint. Samples are attached as multipart audio files.
func (a *ElevenLabsAdapter) CloneVoice(ctx context.Context, name string, samples [][]byte, description string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("name", name); err != nil {
		return "", fmt.Errorf("failed to write name field: %w", err)
	}
	if description != "" {
		if err := writer.WriteField("description", description); err != nil {
			return "", fmt.Errorf("failed to write description field: %w", err)
		}
	}
	for i, sample := range samples {
		part, err := writer.CreateFormFile("files", fmt.Sprintf("sample_%d.mp3", i))
		if err != nil {
			return "", fmt.Errorf("failed to create sample part: %w", err)
		}
		if _, err := part.Write(sample); err != nil {
			return "", fmt.Errorf("failed to write sample: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/voices/add", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", a.apiKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", a.handleError(resp)
	}

	var payload elevenLabsCloneResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode clone response: %w", err)
	}
	return payload.VoiceID, nil
}

// GenerateSoundEffect implements SoundEffectGenerator as a deterministic
// placeholder until the sound generation endpoint is wired up.
func (a *ElevenLabsAdapter) GenerateSoundEffect(ctx context.Context, description string, durationSeconds float64) (*SynthesisResult, error) {
	return &SynthesisResult{
		Audio:  []byte{},
		Format: FormatMP3,
		Metadata: &SynthesisMetadata{
			Provider: ProviderElevenLabs,
			Stubbed:  true,
		},
	}, nil
}

// mapFormat converts an AudioFormat to the ElevenLabs format string.
func (a *ElevenLabsAdapter) mapFormat(format AudioFormat) string {
	switch format.Name {
	case "pcm":
		return elevenLabsFormatPCM
	default:
		return elevenLabsFormatMP3
	}
}

// elevenLabsErrorResponse is the vendor error envelope.
type elevenLabsErrorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

// handleError captures a non-success response as a raw HTTPError. The
// normalizer owns classification; nothing is decided here beyond decoding
// what the wire said.
func (a *ElevenLabsAdapter) handleError(resp *http.Response) error {
	httpErr := &HTTPError{
		Provider: ProviderElevenLabs,
		Status:   resp.StatusCode,
	}

	var errResp elevenLabsErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
		httpErr.Code = errResp.Detail.Status
		httpErr.Message = errResp.Detail.Message
	}
	return httpErr
}
