// Package tts provides a provider-agnostic text-to-speech dispatch layer.
//
// The package presents one canonical synthesis and voice-management surface
// while routing to heterogeneous vendor back ends, each with its own feature
// set, request shape, and failure taxonomy.
//
// # Architecture
//
// The package provides:
//   - A canonical model (SynthesisRequest, SynthesisResult, Voice, Error)
//     shared by every component
//   - An Adapter contract implemented once per vendor
//   - A capability Registry describing what each provider supports, consulted
//     before any optional-feature call so known-unsupported operations never
//     reach the network
//   - A resilience engine (Execute) wrapping every adapter call with timeout,
//     bounded retry, and backoff
//   - A SessionManager owning streaming synthesis conversations with strict
//     FIFO chunk ordering
//   - A batch orchestrator fanning out independent requests with isolated
//     per-item failure
//   - A Dispatcher facade tying the pieces together
//
// # Usage
//
// Basic usage with an ElevenLabs-style back end:
//
//	d, err := tts.NewDispatcher(tts.DispatcherConfig{
//	    Adapter: tts.NewElevenLabsAdapter(os.Getenv("ELEVENLABS_API_KEY")),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := d.Synthesize(ctx, tts.SynthesisRequest{
//	    Text:    "Hello world",
//	    VoiceID: "21m00Tcm4TlvDq8ikWAM",
//	})
//
// # Streaming
//
// Providers with streaming support (Deepgram-style) go through the session
// manager:
//
//	handle, err := d.StartStream(ctx, tts.StreamOptions{VoiceID: "aura-asteria-en"})
//	d.PushText(ctx, handle, "Hello ")
//	d.PushText(ctx, handle, "world")
//	result, err := d.FinishStream(ctx, handle)
package tts
