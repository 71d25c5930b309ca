// Package observability implements the allocator's side-channel
// event sink. Recording is strictly best-effort; nothing here may
// fail or slow a core operation.
package observability

import (
	"context"
	"encoding/json"
	"log"

	"github.com/seatwise/table-allocation/internal/allocator"
)

// LogSink writes structured event records to the process log.
type LogSink struct{}

// NewLogSink returns a ready LogSink.
func NewLogSink() *LogSink { return &LogSink{} }

// Record implements allocator.ObservabilitySink.
func (s *LogSink) Record(_ context.Context, event allocator.ObservabilityEvent) {
	payload, err := json.Marshal(event.Context)
	if err != nil {
		payload = []byte("{}")
	}
	log.Printf("[%s] %s severity=%s %s", event.Source, event.EventType, event.Severity, payload)
}
