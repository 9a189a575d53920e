package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ghalamif/frostline/internal/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { f.closed = true; return nil }

func TestKafkaSinkKeysBySource(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{w: w, timeout: time.Second}
	ts := time.Now()

	err := sink.WriteBatch([]*domain.SensorReading{
		{Seq: 1, SourceID: "freezer-a", Timestamp: ts},
		{Seq: 2, SourceID: "freezer-a", Timestamp: ts.Add(time.Second)},
	})
	if err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "freezer-a" || !w.msgs[1].Time.Equal(ts.Add(time.Second)) {
		t.Fatalf("unexpected message %+v", w.msgs[0])
	}

	if err := sink.Close(); err != nil || !w.closed {
		t.Fatalf("expected writer closed")
	}
}

func TestKafkaSinkWrapsError(t *testing.T) {
	boom := errors.New("leader not available")
	sink := &KafkaSink{w: &fakeWriter{err: boom}, timeout: time.Second}
	if err := sink.WriteBatch([]*domain.SensorReading{{Seq: 1}}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if err := sink.WriteBatch(nil); err != nil {
		t.Fatalf("empty batch should be a no-op, got %v", err)
	}
}
