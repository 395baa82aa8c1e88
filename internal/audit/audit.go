// Package audit provides fire-and-forget observability capture for completed
// requests. Grounded on internal/logger/logger.go's async batched-channel
// pattern: logging must never block the caller's response path.
package audit

import (
	"context"
	"time"
)

// Entry is one audit record, matching spec.md §4.9 exactly.
type Entry struct {
	RequestID        string
	Provider         string
	Model            string
	UserID           string
	SessionID        string
	Kind             string
	PromptHash       string
	PromptLength     int
	ResponseLength   int
	TokensUsed       int
	DurationMs       int64
	EstimatedCost    float64
	Success          bool
	ErrorCode        string
	ErrorMessage     string
	RequestMetadata  map[string]any
	ResponseMetadata map[string]any
	CreatedAt        time.Time
}

// Sink accepts audit entries. LogRequest must not block; implementations
// enqueue and flush asynchronously, matching logger.Logger's discipline.
type Sink interface {
	LogRequest(e Entry)
	Close() error
}

// NullSink discards every entry — used when AI.Orchestration.enableAuditLogging
// is false.
type NullSink struct{}

func NewNullSink() *NullSink { return &NullSink{} }

func (NullSink) LogRequest(Entry)  {}
func (NullSink) Close() error      { return nil }
