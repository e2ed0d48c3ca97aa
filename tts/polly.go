package tts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

const (
	pollyServiceName   = "polly"
	pollyDefaultRegion = "us-east-1"

	// PollyEngineNeural selects the neural voice engine.
	PollyEngineNeural = "neural"
	// PollyEngineStandard selects the standard voice engine.
	PollyEngineStandard = "standard"

	// Default timeout for Polly requests.
	defaultPollyTimeout = 60 * time.Second
)

func init() {
	RegisterAdapterFactory(ProviderPolly, func(spec AdapterSpec) (Adapter, error) {
		var opts []PollyOption
		if spec.BaseURL != "" {
			opts = append(opts, WithPollyBaseURL(spec.BaseURL))
		}
		region := spec.Region
		if region == "" {
			region = pollyDefaultRegion
		}
		return NewPollyAdapter(spec.AccessKeyID, spec.SecretAccessKey, region, opts...), nil
	})
}

// PollyAdapter connects to Amazon Polly over its REST API, signing each
// request with SigV4. Polly offers SSML input and speech marks; lexicon
// management is stubbed pending IAM scoping.
type PollyAdapter struct {
	region  string
	baseURL string
	client  *http.Client
	signer  *v4.Signer
	creds   aws.CredentialsProvider
	engine  string
}

// PollyOption configures the Polly adapter.
type PollyOption func(*PollyAdapter)

// WithPollyBaseURL sets a custom endpoint (for localstack-style testing).
func WithPollyBaseURL(url string) PollyOption {
	return func(a *PollyAdapter) {
		a.baseURL = url
	}
}

// WithPollyClient sets a custom HTTP client.
func WithPollyClient(client *http.Client) PollyOption {
	return func(a *PollyAdapter) {
		a.client = client
	}
}

// WithPollyEngine selects the voice engine.
func WithPollyEngine(engine string) PollyOption {
	return func(a *PollyAdapter) {
		a.engine = engine
	}
}

// WithPollyCredentials replaces the static credentials provider.
func WithPollyCredentials(provider aws.CredentialsProvider) PollyOption {
	return func(a *PollyAdapter) {
		a.creds = provider
	}
}

// NewPollyAdapter creates a Polly adapter with static credentials.
func NewPollyAdapter(accessKeyID, secretAccessKey, region string, opts ...PollyOption) *PollyAdapter {
	a := &PollyAdapter{
		region:  region,
		baseURL: fmt.Sprintf("https://polly.%s.amazonaws.com", region),
		client:  &http.Client{Timeout: defaultPollyTimeout},
		signer:  v4.NewSigner(),
		creds:   credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		engine:  PollyEngineNeural,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Adapter.
func (a *PollyAdapter) Name() string {
	return ProviderPolly
}

// sign computes the payload hash and SigV4-signs the request in place.
func (a *PollyAdapter) sign(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := a.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve credentials: %w", err)
	}
	sum := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(sum[:])
	return a.signer.SignHTTP(ctx, creds, req, payloadHash, pollyServiceName, a.region, time.Now())
}

// pollySynthesisRequest is the SynthesizeSpeech request body.
type pollySynthesisRequest struct {
	Engine          string   `json:"Engine,omitempty"`
	LanguageCode    string   `json:"LanguageCode,omitempty"`
	OutputFormat    string   `json:"OutputFormat"`
	SampleRate      string   `json:"SampleRate,omitempty"`
	SpeechMarkTypes []string `json:"SpeechMarkTypes,omitempty"`
	Text            string   `json:"Text"`
	TextType        string   `json:"TextType,omitempty"`
	VoiceID         string   `json:"VoiceId"`
}

func (a *PollyAdapter) synthesisBody(req SynthesisRequest, outputFormat string, markTypes []string) ([]byte, error) {
	textType := "text"
	if req.TextType == TextTypeSSML {
		textType = "ssml"
	}
	body := pollySynthesisRequest{
		Engine:          a.engine,
		LanguageCode:    req.Language,
		OutputFormat:    outputFormat,
		SpeechMarkTypes: markTypes,
		Text:            req.Text,
		TextType:        textType,
		VoiceID:         req.VoiceID,
	}
	if req.Output.SampleRate > 0 {
		body.SampleRate = strconv.Itoa(req.Output.SampleRate)
	}
	return json.Marshal(body)
}

func (a *PollyAdapter) postSpeech(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := a.sign(ctx, httpReq, body); err != nil {
		return nil, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, a.handleError(resp)
	}
	return resp, nil
}

// Synthesize implements Adapter.
func (a *PollyAdapter) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	body, err := a.synthesisBody(req, a.mapFormat(req.Output.Format), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := a.postSpeech(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	billed := 0
	if n := resp.Header.Get("x-amzn-RequestCharacters"); n != "" {
		billed, _ = strconv.Atoi(n)
	}

	return &SynthesisResult{
		Audio:  audio,
		Format: resolveFormat(req.Output),
		Metadata: &SynthesisMetadata{
			Provider:         ProviderPolly,
			CharactersBilled: billed,
			RequestID:        resp.Header.Get("x-amzn-RequestId"),
		},
	}, nil
}

// pollyMark is one line of the speech mark stream (newline-delimited JSON).
type pollyMark struct {
	Time  int    `json:"time"`
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Value string `json:"value"`
}

// SpeechMarks implements SpeechMarker via the json output format, which
// returns newline-delimited mark records instead of audio.
func (a *PollyAdapter) SpeechMarks(ctx context.Context, req SynthesisRequest) ([]SpeechMark, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	body, err := a.synthesisBody(req, "json", []string{"word", "sentence"})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := a.postSpeech(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read marks: %w", err)
	}

	var marks []SpeechMark
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var m pollyMark
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			return nil, fmt.Errorf("failed to decode mark: %w", err)
		}
		marks = append(marks, SpeechMark{
			TimeMillis: m.Time,
			Type:       SpeechMarkType(m.Type),
			Start:      m.Start,
			End:        m.End,
			Value:      m.Value,
		})
	}
	return marks, nil
}

// pollyVoicesResponse is the DescribeVoices payload.
type pollyVoicesResponse struct {
	Voices []struct {
		ID                  string   `json:"Id"`
		Name                string   `json:"Name"`
		Gender              string   `json:"Gender"`
		LanguageCode        string   `json:"LanguageCode"`
		AdditionalLanguages []string `json:"AdditionalLanguageCodes"`
		SupportedEngines    []string `json:"SupportedEngines"`
	} `json:"Voices"`
	NextToken string `json:"NextToken"`
}

// ListVoices implements Adapter, following NextToken pagination.
func (a *PollyAdapter) ListVoices(ctx context.Context, filter *VoiceFilter) ([]Voice, error) {
	var voices []Voice
	token := ""

	for {
		endpoint := a.baseURL + "/v1/voices"
		if token != "" {
			endpoint += "?NextToken=" + token
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if err := a.sign(ctx, httpReq, nil); err != nil {
			return nil, err
		}

		resp, err := a.client.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			return nil, a.handleError(resp)
		}

		var payload pollyVoicesResponse
		err = json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode voices: %w", err)
		}

		for _, v := range payload.Voices {
			quality := PollyEngineStandard
			for _, e := range v.SupportedEngines {
				if e == PollyEngineNeural {
					quality = PollyEngineNeural
					break
				}
			}
			voice := Voice{
				ID:                  v.ID,
				Name:                v.Name,
				Language:            v.LanguageCode,
				AdditionalLanguages: v.AdditionalLanguages,
				Gender:              strings.ToLower(v.Gender),
				Quality:             quality,
				Provider:            ProviderPolly,
			}
			if filter.Matches(voice) {
				voices = append(voices, voice)
			}
		}

		if payload.NextToken == "" {
			return voices, nil
		}
		token = payload.NextToken
	}
}

// StartStream implements Adapter. Polly has no incremental input API.
func (a *PollyAdapter) StartStream(ctx context.Context, opts StreamOptions) (ProviderStream, error) {
	return nil, NewError(KindUnsupportedOperation, ProviderPolly, "", "streaming is not supported", nil)
}

// CreateLexicon implements LexiconManager as a deterministic placeholder
// until PutLexicon IAM scoping lands.
func (a *PollyAdapter) CreateLexicon(ctx context.Context, name, language string) (string, error) {
	return "polly-lexicon-" + name, nil
}

// mapFormat converts an AudioFormat to the Polly OutputFormat value.
func (a *PollyAdapter) mapFormat(format AudioFormat) string {
	switch format.Name {
	case "pcm", "wav":
		return "pcm"
	case "opus":
		return "ogg_vorbis"
	default:
		return "mp3"
	}
}

// handleError captures a non-success response as a raw HTTPError. Polly
// reports the exception type in the x-amzn-ErrorType header and a message
// in the JSON body.
func (a *PollyAdapter) handleError(resp *http.Response) error {
	httpErr := &HTTPError{
		Provider: ProviderPolly,
		Status:   resp.StatusCode,
	}

	if errType := resp.Header.Get("x-amzn-ErrorType"); errType != "" {
		// The header form is "ThrottlingException:http://..." on some stacks.
		httpErr.Code, _, _ = strings.Cut(errType, ":")
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		httpErr.Message = body.Message
	}
	return httpErr
}
