package tts

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/voxkit/voxkit/logger"
	"github.com/voxkit/voxkit/metrics/prometheus"
)

// VoiceCache stores voice lists so repeated ListVoices calls skip the
// provider. Implementations live outside this package (see the cache
// package for the Redis-backed one).
type VoiceCache interface {
	// Get returns the cached voices and whether the cache held them.
	Get(ctx context.Context, provider string) ([]Voice, bool)

	// Set stores the voices for the provider.
	Set(ctx context.Context, provider string, voices []Voice)
}

// DispatcherConfig configures a Dispatcher. Only Adapter is required.
type DispatcherConfig struct {
	// Adapter is the active provider connector, selected once at startup.
	Adapter Adapter

	// Registry is the capability registry. Defaults to the built-in table.
	Registry *Registry

	// Policy is the retry policy applied to every adapter call.
	// Zero value means DefaultRetryPolicy.
	Policy RetryPolicy

	// BatchConcurrency bounds in-flight batch items. 0 means sequential.
	BatchConcurrency int

	// RateLimit is the outbound requests-per-second cap. 0 disables
	// rate limiting.
	RateLimit float64

	// RateBurst is the limiter burst size when RateLimit is set.
	RateBurst int

	// VoiceCache optionally caches ListVoices results.
	VoiceCache VoiceCache
}

// Dispatcher is the single entry point to the TTS layer. It resolves the
// active adapter, consults the capability registry before optional-feature
// operations, and routes work to the resilience engine, the session
// manager, or the batch orchestrator. It never retries or classifies
// errors itself.
type Dispatcher struct {
	adapter  Adapter
	registry *Registry
	policy   RetryPolicy
	sessions *SessionManager
	batch    *BatchOrchestrator
	limiter  *rate.Limiter
	cache    VoiceCache
}

// NewDispatcher creates a dispatcher from explicit configuration.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Adapter == nil {
		return nil, NewError(KindInvalidInput, "", "", "adapter is required", nil)
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	policy := cfg.Policy.withDefaults()

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Dispatcher{
		adapter:  cfg.Adapter,
		registry: cfg.Registry,
		policy:   policy,
		sessions: NewSessionManager(cfg.Adapter, policy),
		batch:    NewBatchOrchestrator(cfg.Adapter, policy, cfg.BatchConcurrency),
		limiter:  limiter,
		cache:    cfg.VoiceCache,
	}, nil
}

// Provider returns the active provider name.
func (d *Dispatcher) Provider() string {
	return d.adapter.Name()
}

// GetCapabilities returns the active provider's full capability matrix.
func (d *Dispatcher) GetCapabilities() CapabilityMatrix {
	return d.registry.Capabilities(d.adapter.Name())
}

// checkFeature rejects Unsupported features before any adapter work.
// PlannedStub and Supported both pass through.
func (d *Dispatcher) checkFeature(feature Feature) error {
	if d.registry.Supports(d.adapter.Name(), feature) == Unsupported {
		return NewError(KindUnsupportedOperation, d.adapter.Name(), "",
			"provider does not support "+string(feature), nil)
	}
	return nil
}

// wait applies the outbound rate limit, when configured.
func (d *Dispatcher) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return Normalize(d.adapter.Name(), err)
	}
	return nil
}

// ListVoices returns the provider's voices, served from the cache when one
// is configured and warm.
func (d *Dispatcher) ListVoices(ctx context.Context, filter *VoiceFilter) ([]Voice, error) {
	voices, err := d.allVoices(ctx)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return voices, nil
	}
	filtered := make([]Voice, 0, len(voices))
	for _, v := range voices {
		if filter.Matches(v) {
			filtered = append(filtered, v)
		}
	}
	return filtered, nil
}

func (d *Dispatcher) allVoices(ctx context.Context) ([]Voice, error) {
	provider := d.adapter.Name()
	if d.cache != nil {
		if voices, ok := d.cache.Get(ctx, provider); ok {
			return voices, nil
		}
	}

	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	voices, err := Execute(ctx, provider, "list_voices", d.policy,
		func(ctx context.Context) ([]Voice, error) {
			return d.adapter.ListVoices(ctx, nil)
		})
	if err != nil {
		return nil, err
	}
	if d.cache != nil {
		d.cache.Set(ctx, provider, voices)
	}
	return voices, nil
}

// GetVoice returns a single voice by id, served from the same catalog as
// ListVoices. Unknown ids fail with KindInvalidInput.
func (d *Dispatcher) GetVoice(ctx context.Context, voiceID string) (*Voice, error) {
	voices, err := d.allVoices(ctx)
	if err != nil {
		return nil, err
	}
	for i := range voices {
		if voices[i].ID == voiceID {
			v := voices[i]
			return &v, nil
		}
	}
	return nil, NewError(KindInvalidInput, d.adapter.Name(), "voice_not_found",
		"voice not found: "+voiceID, nil)
}

// SearchVoices returns voices whose name or description matches the query,
// case-insensitively, further narrowed by the optional filter.
func (d *Dispatcher) SearchVoices(ctx context.Context, query string, filter *VoiceFilter) ([]Voice, error) {
	voices, err := d.ListVoices(ctx, filter)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	matched := make([]Voice, 0, len(voices))
	for _, v := range voices {
		if strings.Contains(strings.ToLower(v.Name), q) ||
			strings.Contains(strings.ToLower(v.Description), q) {
			matched = append(matched, v)
		}
	}
	return matched, nil
}

// ListLanguages summarizes voice availability by language.
func (d *Dispatcher) ListLanguages(ctx context.Context) ([]LanguageInfo, error) {
	voices, err := d.allVoices(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, v := range voices {
		counts[v.Language]++
	}
	langs := make([]LanguageInfo, 0, len(counts))
	for code, n := range counts {
		langs = append(langs, LanguageInfo{Code: code, VoiceCount: n})
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i].Code < langs[j].Code })
	return langs, nil
}

// ValidateInput checks a request locally without contacting the provider.
func (d *Dispatcher) ValidateInput(req SynthesisRequest) ValidationResult {
	result := ValidationResult{
		CharacterCount:    len(req.Text),
		EstimatedDuration: float64(len(req.Text)) * estimatedSecondsPerChar,
	}
	if req.Text == "" {
		result.Errors = append(result.Errors, ErrEmptyText.Error())
	}
	if len(req.Text) > maxTextLength {
		result.Errors = append(result.Errors, "text exceeds maximum length")
	} else if len(req.Text) > textLengthWarnThreshold {
		result.Warnings = append(result.Warnings, "text approaching length limit")
	}
	if err := req.Settings.Validate(); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	if req.TextType == TextTypeSSML &&
		d.registry.Supports(d.adapter.Name(), FeatureSSML) == Unsupported {
		result.Errors = append(result.Errors, "provider does not accept SSML input")
	}
	result.Valid = len(result.Errors) == 0
	return result
}

// validateRequest rejects malformed requests before any adapter call.
func (d *Dispatcher) validateRequest(req SynthesisRequest) error {
	if req.Text == "" {
		return Normalize(d.adapter.Name(), ErrEmptyText)
	}
	if err := req.Settings.Validate(); err != nil {
		return Normalize(d.adapter.Name(), err)
	}
	if req.TextType == TextTypeSSML {
		if err := d.checkFeature(FeatureSSML); err != nil {
			return err
		}
	}
	return nil
}

// Synthesize converts one request to audio through the resilience engine.
func (d *Dispatcher) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	if err := d.validateRequest(req); err != nil {
		return nil, err
	}
	if err := d.wait(ctx); err != nil {
		return nil, err
	}

	provider := d.adapter.Name()
	logger.SynthesisCall(provider, req.VoiceID, len(req.Text))
	start := time.Now()

	res, err := Execute(ctx, provider, "synthesize", d.policy,
		func(ctx context.Context) (*SynthesisResult, error) {
			return d.adapter.Synthesize(ctx, req)
		})

	elapsed := time.Since(start).Seconds()
	prometheus.RecordSynthesisDuration(provider, "synthesize", elapsed)
	if err != nil {
		logger.SynthesisFailed(provider, err)
		return nil, err
	}
	prometheus.RecordAudioBytes(provider, len(res.Audio))
	logger.SynthesisResponse(provider, len(res.Audio), elapsed)
	return res, nil
}

// SynthesizeBatch fans out requests with isolated per-item failure.
// results[i] corresponds to requests[i].
func (d *Dispatcher) SynthesizeBatch(ctx context.Context, requests []SynthesisRequest) []BatchResult {
	results := make([]BatchResult, 0, len(requests))
	valid := make([]SynthesisRequest, 0, len(requests))
	invalidAt := make(map[int]error)

	for i, req := range requests {
		if err := d.validateRequest(req); err != nil {
			invalidAt[i] = err
			continue
		}
		valid = append(valid, req)
	}

	executed := d.batch.SynthesizeBatch(ctx, valid)

	next := 0
	for i := range requests {
		if err, bad := invalidAt[i]; bad {
			results = append(results, BatchResult{Err: err})
			continue
		}
		results = append(results, executed[next])
		next++
	}
	return results
}

// StartStream opens a streaming session after a capability check.
func (d *Dispatcher) StartStream(ctx context.Context, opts StreamOptions) (SessionHandle, error) {
	if err := d.checkFeature(FeatureStreaming); err != nil {
		return "", err
	}
	if err := d.wait(ctx); err != nil {
		return "", err
	}
	return d.sessions.StartStream(ctx, opts)
}

// PushText forwards one chunk to an open session in strict FIFO order.
func (d *Dispatcher) PushText(ctx context.Context, handle SessionHandle, text string) error {
	return d.sessions.PushText(ctx, handle, text)
}

// FinishStream drains and finalizes a session, returning its audio.
func (d *Dispatcher) FinishStream(ctx context.Context, handle SessionHandle) (*SynthesisResult, error) {
	return d.sessions.FinishStream(ctx, handle)
}

// CancelStream aborts a session, discarding in-flight acknowledgements.
func (d *Dispatcher) CancelStream(handle SessionHandle) error {
	return d.sessions.Cancel(handle)
}

// SessionState reports the lifecycle state of a session handle.
func (d *Dispatcher) SessionState(handle SessionHandle) (SessionState, error) {
	return d.sessions.State(handle)
}

// CloneVoice creates a custom voice from reference audio on providers that
// support it.
func (d *Dispatcher) CloneVoice(ctx context.Context, name string, samples [][]byte, description string) (string, error) {
	if err := d.checkFeature(FeatureVoiceCloning); err != nil {
		return "", err
	}
	cloner, ok := d.adapter.(VoiceCloner)
	if !ok {
		return "", NewError(KindUnsupportedOperation, d.adapter.Name(), "",
			"adapter does not implement voice cloning", nil)
	}
	if err := d.wait(ctx); err != nil {
		return "", err
	}
	return Execute(ctx, d.adapter.Name(), "clone_voice", d.policy,
		func(ctx context.Context) (string, error) {
			return cloner.CloneVoice(ctx, name, samples, description)
		})
}

// SpeechMarks returns word/sentence boundary timings for a request.
func (d *Dispatcher) SpeechMarks(ctx context.Context, req SynthesisRequest) ([]SpeechMark, error) {
	if err := d.checkFeature(FeatureSpeechMarks); err != nil {
		return nil, err
	}
	marker, ok := d.adapter.(SpeechMarker)
	if !ok {
		return nil, NewError(KindUnsupportedOperation, d.adapter.Name(), "",
			"adapter does not implement speech marks", nil)
	}
	if err := d.validateRequest(req); err != nil {
		return nil, err
	}
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	return Execute(ctx, d.adapter.Name(), "speech_marks", d.policy,
		func(ctx context.Context) ([]SpeechMark, error) {
			return marker.SpeechMarks(ctx, req)
		})
}

// GenerateSoundEffect produces non-speech audio from a description on
// providers that support it (planned-stub on ElevenLabs-style providers).
func (d *Dispatcher) GenerateSoundEffect(ctx context.Context, description string, durationSeconds float64) (*SynthesisResult, error) {
	if err := d.checkFeature(FeatureSoundEffects); err != nil {
		return nil, err
	}
	gen, ok := d.adapter.(SoundEffectGenerator)
	if !ok {
		return nil, NewError(KindUnsupportedOperation, d.adapter.Name(), "",
			"adapter does not implement sound effects", nil)
	}
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	return Execute(ctx, d.adapter.Name(), "sound_effect", d.policy,
		func(ctx context.Context) (*SynthesisResult, error) {
			return gen.GenerateSoundEffect(ctx, description, durationSeconds)
		})
}

// CreateLexicon registers a pronunciation lexicon on providers that
// support it (planned-stub on Polly-style providers).
func (d *Dispatcher) CreateLexicon(ctx context.Context, name, language string) (string, error) {
	if err := d.checkFeature(FeatureLexicons); err != nil {
		return "", err
	}
	mgr, ok := d.adapter.(LexiconManager)
	if !ok {
		return "", NewError(KindUnsupportedOperation, d.adapter.Name(), "",
			"adapter does not implement lexicons", nil)
	}
	if err := d.wait(ctx); err != nil {
		return "", err
	}
	return Execute(ctx, d.adapter.Name(), "create_lexicon", d.policy,
		func(ctx context.Context) (string, error) {
			return mgr.CreateLexicon(ctx, name, language)
		})
}
