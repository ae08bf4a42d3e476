package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
)

type captureSink struct {
	entries []model.AuditEntry
	err     error
}

func (s *captureSink) AppendAudit(_ context.Context, entries ...model.AuditEntry) error {
	s.entries = append(s.entries, entries...)
	return s.err
}

func TestRecorder_EmitPersists(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink)

	r.Emit(context.Background(),
		model.AuditEntry{DocumentVersionID: "doc-1", Event: model.AuditParseStarted},
		model.AuditEntry{DocumentVersionID: "doc-1", Event: model.AuditPIIRedacted},
	)

	if len(sink.entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(sink.entries))
	}
	if sink.entries[1].Event != model.AuditPIIRedacted {
		t.Errorf("event = %s", sink.entries[1].Event)
	}
}

func TestRecorder_SinkFailureSwallowed(t *testing.T) {
	r := NewRecorder(&captureSink{err: errors.New("db down")})

	// Must not panic or propagate the sink error.
	r.Emit(context.Background(), model.AuditEntry{Event: model.AuditParseFailed})
}

func TestRecorder_NilSink(t *testing.T) {
	r := NewRecorder(nil)
	r.Emit(context.Background(), model.AuditEntry{Event: model.AuditCacheHit})
}
