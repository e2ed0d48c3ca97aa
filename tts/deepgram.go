package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/voxkit/voxkit/tts/internal/streaming"
)

const (
	deepgramBaseURL   = "https://api.deepgram.com/v1"
	deepgramStreamURL = "wss://api.deepgram.com/v1/speak"

	// DeepgramModelDefault is the default Aura voice model.
	DeepgramModelDefault = "aura-asteria-en"

	// Default timeout for Deepgram REST requests.
	defaultDeepgramTimeout = 60 * time.Second
)

func init() {
	RegisterAdapterFactory(ProviderDeepgram, func(spec AdapterSpec) (Adapter, error) {
		var opts []DeepgramOption
		if spec.BaseURL != "" {
			opts = append(opts, WithDeepgramBaseURL(spec.BaseURL))
		}
		return NewDeepgramAdapter(spec.APIKey, opts...), nil
	})
}

// DeepgramAdapter connects to the Deepgram Aura TTS API. It is the one
// built-in adapter with true incremental streaming, over the speak
// WebSocket endpoint.
type DeepgramAdapter struct {
	apiKey    string
	baseURL   string
	streamURL string
	client    *http.Client
}

// DeepgramOption configures the Deepgram adapter.
type DeepgramOption func(*DeepgramAdapter)

// WithDeepgramBaseURL sets a custom REST base URL.
func WithDeepgramBaseURL(url string) DeepgramOption {
	return func(a *DeepgramAdapter) {
		a.baseURL = url
	}
}

// WithDeepgramStreamURL sets a custom WebSocket endpoint.
func WithDeepgramStreamURL(url string) DeepgramOption {
	return func(a *DeepgramAdapter) {
		a.streamURL = url
	}
}

// WithDeepgramClient sets a custom HTTP client.
func WithDeepgramClient(client *http.Client) DeepgramOption {
	return func(a *DeepgramAdapter) {
		a.client = client
	}
}

// NewDeepgramAdapter creates a Deepgram adapter.
func NewDeepgramAdapter(apiKey string, opts ...DeepgramOption) *DeepgramAdapter {
	a := &DeepgramAdapter{
		apiKey:    apiKey,
		baseURL:   deepgramBaseURL,
		streamURL: deepgramStreamURL,
		client:    &http.Client{Timeout: defaultDeepgramTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Adapter.
func (a *DeepgramAdapter) Name() string {
	return ProviderDeepgram
}

// speakQuery builds the model/encoding query string shared by the REST and
// WebSocket endpoints.
func speakQuery(model string, out AudioConfig) url.Values {
	if model == "" {
		model = DeepgramModelDefault
	}
	q := url.Values{}
	q.Set("model", model)
	switch out.Format.Name {
	case "pcm", "wav":
		q.Set("encoding", "linear16")
		rate := out.SampleRate
		if rate == 0 {
			rate = sampleRateDefault
		}
		q.Set("sample_rate", strconv.Itoa(rate))
	case "opus":
		q.Set("encoding", "opus")
	default:
		q.Set("encoding", "mp3")
	}
	return q
}

// Synthesize implements Adapter over the batch REST endpoint.
func (a *DeepgramAdapter) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	body, err := json.Marshal(map[string]string{"text": req.Text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := a.baseURL + "/speak?" + speakQuery(req.VoiceID, req.Output).Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

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
			Provider:         ProviderDeepgram,
			CharactersBilled: len(req.Text),
			RequestID:        resp.Header.Get("dg-request-id"),
		},
	}, nil
}

// ListVoices implements Adapter. Deepgram exposes a fixed Aura model
// catalog rather than a voices API.
func (a *DeepgramAdapter) ListVoices(ctx context.Context, filter *VoiceFilter) ([]Voice, error) {
	catalog := []Voice{
		{ID: "aura-asteria-en", Name: "Asteria", Language: "en-US", Gender: "female"},
		{ID: "aura-luna-en", Name: "Luna", Language: "en-US", Gender: "female"},
		{ID: "aura-stella-en", Name: "Stella", Language: "en-US", Gender: "female"},
		{ID: "aura-athena-en", Name: "Athena", Language: "en-GB", Gender: "female"},
		{ID: "aura-hera-en", Name: "Hera", Language: "en-US", Gender: "female"},
		{ID: "aura-orion-en", Name: "Orion", Language: "en-US", Gender: "male"},
		{ID: "aura-arcas-en", Name: "Arcas", Language: "en-US", Gender: "male"},
		{ID: "aura-perseus-en", Name: "Perseus", Language: "en-US", Gender: "male"},
		{ID: "aura-angus-en", Name: "Angus", Language: "en-IE", Gender: "male"},
		{ID: "aura-orpheus-en", Name: "Orpheus", Language: "en-US", Gender: "male"},
		{ID: "aura-helios-en", Name: "Helios", Language: "en-GB", Gender: "male"},
		{ID: "aura-zeus-en", Name: "Zeus", Language: "en-US", Gender: "male"},
	}

	voices := make([]Voice, 0, len(catalog))
	for _, v := range catalog {
		v.Quality = "generative"
		v.Provider = ProviderDeepgram
		if filter.Matches(v) {
			voices = append(voices, v)
		}
	}
	return voices, nil
}

// StartStream implements Adapter over the speak WebSocket endpoint.
func (a *DeepgramAdapter) StartStream(ctx context.Context, opts StreamOptions) (ProviderStream, error) {
	endpoint := a.streamURL + "?" + speakQuery(opts.VoiceID, opts.Output).Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+a.apiKey)

	conn := streaming.NewConn(&streaming.ConnConfig{
		URL:     endpoint,
		Headers: headers,
	})
	// Single dial attempt: retrying is the resilience engine's job.
	if err := conn.Connect(ctx); err != nil {
		var dialErr *streaming.DialError
		if errors.As(err, &dialErr) && dialErr.Status != 0 {
			return nil, &HTTPError{
				Provider: ProviderDeepgram,
				Status:   dialErr.Status,
				Message:  "websocket handshake rejected",
			}
		}
		return nil, err
	}

	return &deepgramStream{conn: conn}, nil
}

// deepgramControl is a JSON control frame from the speak socket.
type deepgramControl struct {
	Type        string `json:"type"`
	SequenceID  int    `json:"sequence_id"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// deepgramStream is one open speak WebSocket conversation. Not safe for
// concurrent use; the session manager serializes calls.
type deepgramStream struct {
	conn    *streaming.Conn
	pending []byte
}

// SendText implements ProviderStream. Each chunk is sent as a Speak
// message followed by a Flush; the Flushed control frame is the provider
// acknowledgement, with audio frames collected along the way.
func (s *deepgramStream) SendText(ctx context.Context, text string) error {
	if err := s.conn.SendJSON(map[string]string{"type": "Speak", "text": text}); err != nil {
		return err
	}
	if err := s.conn.SendJSON(map[string]string{"type": "Flush"}); err != nil {
		return err
	}

	for {
		msg, err := s.conn.Receive(ctx)
		if err != nil {
			return err
		}
		if msg.Binary {
			s.pending = append(s.pending, msg.Data...)
			continue
		}

		var ctrl deepgramControl
		if err := json.Unmarshal(msg.Data, &ctrl); err != nil {
			continue
		}
		switch ctrl.Type {
		case "Flushed":
			return nil
		case "Error":
			return &HTTPError{
				Provider: ProviderDeepgram,
				Code:     ctrl.Code,
				Message:  ctrl.Description,
			}
		}
		// Metadata and Warning frames are informational.
	}
}

// ReceiveAudio implements ProviderStream, draining the buffered frames.
func (s *deepgramStream) ReceiveAudio(ctx context.Context) ([]byte, error) {
	out := s.pending
	s.pending = nil
	return out, nil
}

// Finish implements ProviderStream. Close tells the server to flush and
// shut down; remaining audio arrives before the close frame.
func (s *deepgramStream) Finish(ctx context.Context) ([]byte, error) {
	if err := s.conn.SendJSON(map[string]string{"type": "Close"}); err != nil {
		return nil, err
	}

	tail := s.pending
	s.pending = nil
	for {
		msg, err := s.conn.Receive(ctx)
		if err != nil {
			if streaming.IsNormalClose(err) {
				return tail, nil
			}
			return tail, err
		}
		if msg.Binary {
			tail = append(tail, msg.Data...)
			continue
		}
		var ctrl deepgramControl
		if err := json.Unmarshal(msg.Data, &ctrl); err != nil {
			continue
		}
		if ctrl.Type == "Error" {
			return tail, &HTTPError{
				Provider: ProviderDeepgram,
				Code:     ctrl.Code,
				Message:  ctrl.Description,
			}
		}
	}
}

// Close implements ProviderStream.
func (s *deepgramStream) Close() error {
	return s.conn.Close()
}

// deepgramErrorResponse is the REST error envelope.
type deepgramErrorResponse struct {
	ErrCode string `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

// handleError captures a non-success response as a raw HTTPError.
func (a *DeepgramAdapter) handleError(resp *http.Response) error {
	httpErr := &HTTPError{
		Provider: ProviderDeepgram,
		Status:   resp.StatusCode,
	}

	var errResp deepgramErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
		httpErr.Code = errResp.ErrCode
		httpErr.Message = errResp.ErrMsg
	}
	return httpErr
}
