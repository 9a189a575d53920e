package frostline

import (
	"errors"
	"testing"
	"time"

	"github.com/ghalamif/frostline/internal/domain"
)

func TestNewCallbackSink(t *testing.T) {
	var received []Reading
	sink := NewCallbackSink("cb", func(batch []Reading) error {
		received = append(received, batch...)
		return nil
	})

	input := &Reading{
		SourceID:  "freezer-1",
		Timestamp: time.Unix(1, 0),
		Seq:       42,
		CO2PPM:    domain.Uint16(612),
	}

	if err := sink.WriteBatch([]*Reading{input}); err != nil {
		t.Fatalf("WriteBatch returned error: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 batch entry, got %d", len(received))
	}
	got := received[0]
	if got.SourceID != input.SourceID || got.Seq != input.Seq {
		t.Fatalf("mismatched reading payload: %+v vs %+v", got, input)
	}
	if got.CO2PPM == nil || *got.CO2PPM != 612 {
		t.Fatalf("expected co2 to be copied, got %v", got.CO2PPM)
	}
	if got.CO2PPM == input.CO2PPM {
		t.Fatalf("callback must not share field storage with the pipeline")
	}
}

func TestNewCallbackSinkNilHandler(t *testing.T) {
	sink := NewCallbackSink("", nil)
	if err := sink.WriteBatch([]*Reading{{Seq: 1}}); err == nil {
		t.Fatalf("expected error when callback is nil")
	}
	if sink.Name() != "callback" {
		t.Fatalf("expected default name, got %q", sink.Name())
	}
}

func TestNewChannelSink(t *testing.T) {
	sink, ch, closeFn := NewChannelSink("chan", 1)
	defer closeFn()

	input := &Reading{SourceID: "freezer-2", Seq: 7}
	errCh := make(chan error, 1)

	go func() {
		errCh <- sink.WriteBatch([]*Reading{input})
	}()

	var batch []Reading
	select {
	case batch = <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel batch")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("WriteBatch returned error: %v", err)
	}
	if len(batch) != 1 || batch[0].SourceID != input.SourceID {
		t.Fatalf("unexpected batch data: %+v", batch)
	}

	closeFn()
	if err := sink.WriteBatch([]*Reading{input}); !errors.Is(err, ErrChannelSinkClosed) {
		t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
	}
}

func TestChannelSinkCloseUnblocksWriter(t *testing.T) {
	sink, _, closeFn := NewChannelSink("chan", 0)
	errCh := make(chan error, 1)
	go func() {
		errCh <- sink.WriteBatch([]*Reading{{Seq: 1}})
	}()

	time.Sleep(10 * time.Millisecond)
	closeFn()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrChannelSinkClosed) {
			t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("writer still blocked after close")
	}
}
