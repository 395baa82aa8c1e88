// Package orchestrator is the core request dispatcher: it accepts a single
// abstract AI request, asks the provider registry for an ordered candidate
// list, and drives per-adapter execution with fallback across providers
// until one succeeds or every eligible candidate is exhausted.
package orchestrator

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestKind identifies the shape of work a Request carries.
type RequestKind string

const (
	TextCompletion     RequestKind = "text_completion"
	ChatCompletion     RequestKind = "chat_completion"
	VisionAnalysis     RequestKind = "vision_analysis"
	ImageGeneration    RequestKind = "image_generation"
	TextToSpeech       RequestKind = "text_to_speech"
	AudioTranscription RequestKind = "audio_transcription"
)

// ErrorCode enumerates the taxonomy of §7. HTTPError renders an HTTP_<status>
// member for provider status codes that don't map to a named code.
type ErrorCode string

const (
	ErrQuotaExceeded     ErrorCode = "QUOTA_EXCEEDED"
	ErrRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrTimeout           ErrorCode = "TIMEOUT"
	ErrCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrInvalidResponse   ErrorCode = "INVALID_RESPONSE"
	ErrCancelled         ErrorCode = "CANCELLED"
	ErrUnknown           ErrorCode = "UNKNOWN_ERROR"
)

// HTTPError renders the HTTP_<status> member of the ErrorCode taxonomy.
func HTTPError(status int) ErrorCode {
	return ErrorCode("HTTP_" + itoa(status))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// RequestContext carries caller/session scoping information.
type RequestContext struct {
	RequestID string
	UserID    string
	SessionID string
	Language  string // ISO code, default "en"
}

// Request is the uniform, immutable AI request the orchestrator accepts.
// Adapters must never mutate a *Request; any per-provider transformation
// happens on a derived wire payload.
type Request struct {
	Kind                 RequestKind
	Prompt               string
	SystemPrompt         string
	MaxTokens            int
	Temperature          float64
	ImageBytes           []byte
	ImageFormat          string
	ImageURLs            []string
	AudioBytes           []byte
	AudioFormat          string
	AdditionalParameters map[string]any
	Context              RequestContext
}

// Response is the uniform result of one adapter execution or one orchestrator
// call. A response is successful iff IsSuccess is true, ErrorCode is empty,
// and Content (or a binary payload) is present.
type Response struct {
	Content        string
	Provider       string
	Model          string
	TokensUsed     int
	ProcessingTime time.Duration
	IsSuccess      bool
	EstimatedCost  decimal.Decimal
	ErrorCode      ErrorCode
	ErrorMessage   string
	Metadata       map[string]any
}

// ProviderCapabilities declares what an adapter supports.
type ProviderCapabilities struct {
	TextCompletion     bool
	ChatCompletion     bool
	VisionAnalysis     bool
	ImageGeneration    bool
	TextToSpeech       bool
	AudioTranscription bool
	MaxTokensLimit     int
	Languages          []string // ISO codes; empty means "all"
	ImageFormats       []string
	AudioFormats       []string
}

// Supports reports whether the capability set includes kind.
func (c ProviderCapabilities) Supports(kind RequestKind) bool {
	switch kind {
	case TextCompletion:
		return c.TextCompletion
	case ChatCompletion:
		return c.ChatCompletion
	case VisionAnalysis:
		return c.VisionAnalysis
	case ImageGeneration:
		return c.ImageGeneration
	case TextToSpeech:
		return c.TextToSpeech
	case AudioTranscription:
		return c.AudioTranscription
	default:
		return false
	}
}

// SupportsLanguage reports whether lang is accepted. An empty Languages set
// means "all languages accepted".
func (c ProviderCapabilities) SupportsLanguage(lang string) bool {
	if len(c.Languages) == 0 {
		return true
	}
	if lang == "" {
		lang = "en"
	}
	for _, l := range c.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// ProviderConfiguration holds the per-adapter settings recognized by §6.
type ProviderConfiguration struct {
	Name                                 string
	Model                                string
	BaseURL                              string
	APIKey                               string
	IsEnabled                            bool
	TimeoutSeconds                       int
	MaxRetries                           int
	CircuitBreakerFailuresBeforeBreaking int
	CircuitBreakerDurationSeconds        int
	EnableCaching                        bool
	CacheDurationMinutes                 int
	EnableRateLimiting                   bool
	RequestsPerMinute                    int
	AdditionalSettings                   map[string]any
}

// Timeout returns the configured per-call timeout, defaulting to 30s.
func (c ProviderConfiguration) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HealthStatus is the result of Orchestrator.HealthCheck.
type HealthStatus struct {
	Healthy            bool
	HealthyProviders   int
	TotalProviders     int
	RecentFailures5Min int
	ProviderQuotas     map[string]any
}
