package application

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"urgify-core/internal/domain"
)

func testDelivery(id, topic string) *domain.WebhookDelivery {
	return &domain.WebhookDelivery{
		DeliveryID: id,
		Topic:      topic,
		Shop:       "x.myshopify.com",
		Payload:    []byte(`{"id":1}`),
	}
}

func newTestProcessor(ledger *fakeLedger, dlq *fakeDeadLetterStore, sink *fakeSink) *Processor {
	return NewProcessor(ledger, dlq, sink, nil, zerolog.Nop())
}

func TestProcessInvokesHandlerExactlyOnce(t *testing.T) {
	ledger := newFakeLedger()
	dlq := newFakeDeadLetterStore()
	proc := newTestProcessor(ledger, dlq, &fakeSink{})
	ctx := context.Background()

	var calls int32
	handler := func(ctx context.Context, shop string, payload []byte) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}

	delivery := testDelivery("abc", "products/create")
	if err := proc.Process(ctx, delivery, handler); err != nil {
		t.Fatalf("first Process failed: %v", err)
	}
	if err := proc.Process(ctx, delivery, handler); err != nil {
		t.Fatalf("second Process failed: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected handler to run exactly once, ran %d times", got)
	}
	if ledger.count() != 1 {
		t.Fatalf("expected exactly 1 ledger row, got %d", ledger.count())
	}
	if len(dlq.all()) != 0 {
		t.Fatalf("expected no dead letters, got %d", len(dlq.all()))
	}
}

func TestProcessConcurrentSameDeliveryRunsOnce(t *testing.T) {
	ledger := newFakeLedger()
	proc := newTestProcessor(ledger, newFakeDeadLetterStore(), &fakeSink{})

	var counter int32
	handler := func(ctx context.Context, shop string, payload []byte) error {
		atomic.AddInt32(&counter, 1)
		return nil
	}

	const concurrent = 8
	var wg sync.WaitGroup
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = proc.Process(context.Background(), testDelivery("abc", "products/create"), handler)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&counter); got != 1 {
		t.Fatalf("expected side effect exactly once under concurrency, got %d", got)
	}
}

func TestProcessDeadLettersFailureAndReturnsOriginalError(t *testing.T) {
	ledger := newFakeLedger()
	dlq := newFakeDeadLetterStore()
	proc := newTestProcessor(ledger, dlq, &fakeSink{})

	boom := errors.New("boom")
	handler := func(ctx context.Context, shop string, payload []byte) error {
		return boom
	}

	delivery := &domain.WebhookDelivery{
		DeliveryID: "err1",
		Topic:      "themes/delete",
		Shop:       "y",
		Payload:    []byte(`{"id":9}`),
	}
	err := proc.Process(context.Background(), delivery, handler)
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error re-raised, got %v", err)
	}

	records := dlq.all()
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 dead letter, got %d", len(records))
	}
	rec := records[0]
	if rec.Topic != "themes/delete" || rec.Shop != "y" || rec.Error != "boom" {
		t.Fatalf("unexpected dead letter: %+v", rec)
	}
	if string(rec.Payload) != `{"id":9}` {
		t.Fatalf("expected original payload preserved, got %s", rec.Payload)
	}
	if rec.RetryCount != 0 || rec.RetriedAt != nil {
		t.Fatalf("expected fresh dead letter, got %+v", rec)
	}
	if ledger.count() != 0 {
		t.Fatalf("failed delivery must not be marked processed")
	}
}

func TestProcessFailedDeliveryCanBeRedelivered(t *testing.T) {
	proc := newTestProcessor(newFakeLedger(), newFakeDeadLetterStore(), &fakeSink{})

	var calls int32
	failing := true
	handler := func(ctx context.Context, shop string, payload []byte) error {
		atomic.AddInt32(&calls, 1)
		if failing {
			return errors.New("transient")
		}
		return nil
	}

	delivery := testDelivery("retry-me", "products/update")
	if err := proc.Process(context.Background(), delivery, handler); err == nil {
		t.Fatalf("expected first attempt to fail")
	}

	// A failed delivery leaves no ledger row, so the platform's redelivery
	// runs the handler again.
	failing = false
	if err := proc.Process(context.Background(), delivery, handler); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 handler invocations, got %d", got)
	}
}

func TestProcessFallsBackToSinkWhenDeadLetterStoreFails(t *testing.T) {
	dlq := newFakeDeadLetterStore()
	dlq.addErr = errors.New("db unreachable")
	sink := &fakeSink{}
	proc := newTestProcessor(newFakeLedger(), dlq, sink)

	boom := errors.New("boom")
	err := proc.Process(context.Background(), testDelivery("d1", "products/create"),
		func(ctx context.Context, shop string, payload []byte) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected the failure recorded in the fallback sink")
	}
}

func TestProcessSchedulesReplayOnDeadLetter(t *testing.T) {
	dlq := newFakeDeadLetterStore()
	scheduler := &fakeScheduler{}
	proc := NewProcessor(newFakeLedger(), dlq, &fakeSink{}, scheduler, zerolog.Nop())

	_ = proc.Process(context.Background(), testDelivery("d1", "products/create"),
		func(ctx context.Context, shop string, payload []byte) error { return errors.New("boom") })

	if len(scheduler.scheduled) != 1 {
		t.Fatalf("expected 1 scheduled replay, got %d", len(scheduler.scheduled))
	}
	if scheduler.scheduled[0] != dlq.all()[0].ID {
		t.Fatalf("scheduled replay should reference the dead letter id")
	}
}

func TestProcessLedgerCheckFailureDeadLetters(t *testing.T) {
	ledger := newFakeLedger()
	ledger.checkErr = errors.New("db unreachable")
	dlq := newFakeDeadLetterStore()
	proc := newTestProcessor(ledger, dlq, &fakeSink{})

	var calls int32
	err := proc.Process(context.Background(), testDelivery("d1", "products/create"),
		func(ctx context.Context, shop string, payload []byte) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	if err == nil {
		t.Fatalf("expected ledger check failure to propagate")
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("handler must not run when the idempotency check failed")
	}

	// The platform was already acked, so the only trace left is the dead
	// letter carrying the original payload for replay.
	records := dlq.all()
	if len(records) != 1 {
		t.Fatalf("expected the delivery dead-lettered, got %d records", len(records))
	}
	if records[0].Topic != "products/create" || string(records[0].Payload) != `{"id":1}` {
		t.Fatalf("unexpected dead letter: %+v", records[0])
	}
}

func TestProcessLedgerCheckFailureFallsBackToSink(t *testing.T) {
	ledger := newFakeLedger()
	ledger.checkErr = errors.New("db unreachable")
	dlq := newFakeDeadLetterStore()
	dlq.addErr = errors.New("db unreachable")
	sink := &fakeSink{}
	proc := newTestProcessor(ledger, dlq, sink)

	err := proc.Process(context.Background(), testDelivery("d1", "products/create"),
		func(ctx context.Context, shop string, payload []byte) error { return nil })
	if err == nil {
		t.Fatalf("expected ledger check failure to propagate")
	}
	if sink.count() != 1 {
		t.Fatalf("expected the failure recorded in the fallback sink")
	}
}

func TestProcessLedgerWriteFailurePropagatesAndLogs(t *testing.T) {
	ledger := newFakeLedger()
	ledger.markErr = errors.New("db unreachable")

	var buf bytes.Buffer
	proc := NewProcessor(ledger, newFakeDeadLetterStore(), &fakeSink{}, nil, zerolog.New(&buf))

	err := proc.Process(context.Background(), testDelivery("d1", "products/create"),
		func(ctx context.Context, shop string, payload []byte) error { return nil })
	if err == nil {
		t.Fatalf("expected ledger write failure to propagate")
	}
	if !strings.Contains(buf.String(), "Ledger write failed after successful handler") {
		t.Fatalf("expected the write failure logged, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "d1") {
		t.Fatalf("expected the delivery id in the breadcrumb, got %q", buf.String())
	}
}

func TestProcessRecoversHandlerPanic(t *testing.T) {
	dlq := newFakeDeadLetterStore()
	proc := newTestProcessor(newFakeLedger(), dlq, &fakeSink{})

	err := proc.Process(context.Background(), testDelivery("d1", "products/create"),
		func(ctx context.Context, shop string, payload []byte) error { panic("oops") })
	if err == nil {
		t.Fatalf("expected panic converted to error")
	}
	if len(dlq.all()) != 1 {
		t.Fatalf("expected panicking handler to dead-letter")
	}
}
