package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewElevenLabsAdapter(t *testing.T) {
	a := NewElevenLabsAdapter("test-key")
	if a.apiKey != "test-key" {
		t.Errorf("apiKey = %v, want test-key", a.apiKey)
	}
	if a.baseURL != elevenLabsBaseURL {
		t.Errorf("baseURL = %v, want %v", a.baseURL, elevenLabsBaseURL)
	}
	if a.model != ElevenLabsModelMultilingual {
		t.Errorf("model = %v, want %v", a.model, ElevenLabsModelMultilingual)
	}
	if a.Name() != ProviderElevenLabs {
		t.Errorf("Name() = %v", a.Name())
	}
}

func TestElevenLabsAdapter_WithOptions(t *testing.T) {
	customClient := &http.Client{}
	a := NewElevenLabsAdapter("test-key",
		WithElevenLabsBaseURL("https://custom.api.com"),
		WithElevenLabsClient(customClient),
		WithElevenLabsModel(ElevenLabsModelTurbo),
	)
	if a.baseURL != "https://custom.api.com" {
		t.Errorf("baseURL = %v", a.baseURL)
	}
	if a.client != customClient {
		t.Error("client was not set")
	}
	if a.model != ElevenLabsModelTurbo {
		t.Errorf("model = %v", a.model)
	}
}

func TestElevenLabsAdapter_Synthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %v, want POST", r.Method)
		}
		if !strings.Contains(r.URL.Path, "/text-to-speech/voice-1") {
			t.Errorf("Path = %v, should address the voice", r.URL.Path)
		}
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("xi-api-key = %v", got)
		}
		if got := r.URL.Query().Get("output_format"); got != elevenLabsFormatMP3 {
			t.Errorf("output_format = %v", got)
		}

		body, _ := io.ReadAll(r.Body)
		var req elevenLabsSynthesisRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("invalid request body: %v", err)
		}
		if req.Text != "hello" {
			t.Errorf("text = %v", req.Text)
		}
		if req.VoiceSettings == nil || req.VoiceSettings.Stability != 0.3 {
			t.Errorf("voice settings = %+v, want caller stability", req.VoiceSettings)
		}

		w.Header().Set("request-id", "req-123")
		_, _ = w.Write([]byte("fake-mp3-bytes"))
	}))
	defer server.Close()

	a := NewElevenLabsAdapter("test-key", WithElevenLabsBaseURL(server.URL))
	stability := 0.3
	res, err := a.Synthesize(context.Background(), SynthesisRequest{
		Text:     "hello",
		VoiceID:  "voice-1",
		Settings: &VoiceSettings{Stability: &stability},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(res.Audio) != "fake-mp3-bytes" {
		t.Errorf("audio = %q", res.Audio)
	}
	if res.Metadata.RequestID != "req-123" || res.Metadata.CharactersBilled != 5 {
		t.Errorf("metadata = %+v", res.Metadata)
	}
}

func TestElevenLabsAdapter_SynthesizeEmptyText(t *testing.T) {
	a := NewElevenLabsAdapter("test-key")
	if _, err := a.Synthesize(context.Background(), SynthesisRequest{}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("error = %v, want ErrEmptyText", err)
	}
}

func TestElevenLabsAdapter_ErrorDecoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":{"status":"invalid_api_key","message":"key is wrong"}}`))
	}))
	defer server.Close()

	a := NewElevenLabsAdapter("bad-key", WithElevenLabsBaseURL(server.URL))
	_, err := a.Synthesize(context.Background(), SynthesisRequest{Text: "hello", VoiceID: "v"})
	if err == nil {
		t.Fatal("expected error")
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error %T, want raw *HTTPError from the adapter", err)
	}
	if httpErr.Status != 401 || httpErr.Code != "invalid_api_key" || httpErr.Message != "key is wrong" {
		t.Errorf("httpErr = %+v", httpErr)
	}

	// The normalizer turns the vendor code into the canonical kind.
	if kind := Normalize(ProviderElevenLabs, err).Kind; kind != KindUnauthorized {
		t.Errorf("normalized kind = %v, want KindUnauthorized", kind)
	}
}

func TestElevenLabsAdapter_ListVoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voices" {
			t.Errorf("Path = %v", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"voices":[
			{"voice_id":"v1","name":"Rachel","category":"premade","labels":{"gender":"female","language":"en"}},
			{"voice_id":"v2","name":"Antoni","category":"premade","labels":{"gender":"male","language":"en"}}
		]}`))
	}))
	defer server.Close()

	a := NewElevenLabsAdapter("test-key", WithElevenLabsBaseURL(server.URL))
	voices, err := a.ListVoices(context.Background(), &VoiceFilter{Gender: "female"})
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "v1" || voices[0].Provider != ProviderElevenLabs {
		t.Errorf("voices = %+v", voices)
	}
}

func TestElevenLabsAdapter_CloneVoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voices/add" {
			t.Errorf("Path = %v", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("not a multipart request: %v", err)
		}
		if got := r.FormValue("name"); got != "narrator" {
			t.Errorf("name = %v", got)
		}
		if files := r.MultipartForm.File["files"]; len(files) != 2 {
			t.Errorf("%d sample files, want 2", len(files))
		}
		_, _ = w.Write([]byte(`{"voice_id":"cloned-1"}`))
	}))
	defer server.Close()

	a := NewElevenLabsAdapter("test-key", WithElevenLabsBaseURL(server.URL))
	id, err := a.CloneVoice(context.Background(), "narrator",
		[][]byte{[]byte("sample-a"), []byte("sample-b")}, "deep voice")
	if err != nil {
		t.Fatalf("CloneVoice: %v", err)
	}
	if id != "cloned-1" {
		t.Errorf("voice id = %v", id)
	}
}
