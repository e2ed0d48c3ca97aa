// Package logger provides structured logging with automatic credential redaction.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - TTS provider call logging (synthesis requests, responses, errors)
//   - Streaming session lifecycle logging
//   - Automatic API key and signature redaction
//   - Level-based verbosity control
//
// All exported functions use the global DefaultLogger which can be configured
// for different output formats and log levels.
package logger

import (
	"log/slog"
	"os"
	"regexp"
	"strings"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger
)

func init() {
	// Check LOG_LEVEL environment variable
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		switch strings.ToLower(envLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	// Initialize with text handler writing to stderr
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(handler)
}

// SetLevel changes the logging level for all subsequent log operations.
// This is safe for concurrent use as it replaces the entire logger instance.
func SetLevel(level slog.Level) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(handler)
}

// SetVerbose enables debug-level logging when verbose is true, otherwise
// sets info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// Info logs an informational message with structured key-value attributes.
// Args should be provided in key-value pairs: key1, value1, key2, value2, ...
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors or unexpected but non-critical situations.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// SynthesisCall logs an outbound synthesis request with structured fields.
// Additional attributes can be passed as key-value pairs.
func SynthesisCall(provider, voice string, characters int, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"voice", voice,
		"characters", characters,
	)
	allAttrs = append(allAttrs, attrs...)
	Info("TTS synthesis call", allAttrs...)
}

// SynthesisResponse logs a completed synthesis with audio accounting.
func SynthesisResponse(provider string, audioBytes int, durationSeconds float64, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"audio_bytes", audioBytes,
		"duration_seconds", durationSeconds,
	)
	allAttrs = append(allAttrs, attrs...)
	Info("TTS synthesis complete", allAttrs...)
}

// SynthesisFailed logs a synthesis failure for debugging and monitoring.
func SynthesisFailed(provider string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"error", err,
	)
	allAttrs = append(allAttrs, attrs...)
	Error("TTS synthesis failed", allAttrs...)
}

// StreamEvent logs a streaming session lifecycle event.
func StreamEvent(provider, session, event string, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"session", session,
		"event", event,
	)
	allAttrs = append(allAttrs, attrs...)
	Debug("TTS stream event", allAttrs...)
}

var (
	// credentialPatterns contains compiled regular expressions for
	// detecting sensitive data in log output. Patterns match the
	// credential formats of the supported vendors.
	credentialPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk_[a-zA-Z0-9]{32,}`),                  // ElevenLabs API keys
		regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),                // Google API keys
		regexp.MustCompile(`AWS4-HMAC-SHA256[^\n"]*`),              // SigV4 authorization
		regexp.MustCompile(`(Token|Bearer)\s+[a-zA-Z0-9._~+/-]+`),  // Token/Bearer headers
		regexp.MustCompile(`xi-api-key:\s*[a-zA-Z0-9]+`),           // ElevenLabs header form
	}
)

// RedactSensitiveData removes API keys and signatures from strings.
// It replaces matched patterns with a redacted form that preserves the
// first few characters for debugging while hiding the sensitive portion.
//
// This function is safe for concurrent use as it only reads from the
// compiled patterns.
func RedactSensitiveData(input string) string {
	result := input

	for _, pattern := range credentialPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer [REDACTED]"
			}
			if strings.HasPrefix(match, "Token ") {
				return "Token [REDACTED]"
			}
			// Show first 4 characters for debugging context
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}

	return result
}
