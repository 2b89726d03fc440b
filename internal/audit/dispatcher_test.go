package audit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/evdms/dealer-backend/internal/testdb"
	"github.com/evdms/dealer-backend/internal/workflow"
	"github.com/evdms/dealer-backend/pkg/enums"
	"github.com/evdms/dealer-backend/pkg/logger"
	"github.com/evdms/dealer-backend/pkg/metrics"
)

type recordingSink struct {
	mu      sync.Mutex
	records []Record
	gate    chan struct{}
	err     error
}

func (s *recordingSink) Write(_ context.Context, r Record) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func testActor() workflow.Actor {
	dealerID := uuid.New()
	return workflow.Actor{UserID: uuid.New(), DealerID: &dealerID, Capabilities: []enums.Capability{enums.CapabilityDealerStaff}}
}

func TestDispatcherDeliversToEverySinkAndDrainsOnClose(t *testing.T) {
	first, second := &recordingSink{}, &recordingSink{err: errors.New("sink down")}
	d, err := NewDispatcher(testdb.Logger(), 8, nil, first, second)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	d.Start()

	actor := testActor()
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), New(actor, "quote.submitted", "quote", uuid.New()).Transition("DRAFT", "PENDING_DEALER_MANAGER_APPROVAL"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if first.count() != 5 || second.count() != 5 {
		t.Fatalf("expected 5 records per sink, got %d and %d", first.count(), second.count())
	}
	if first.records[0].ActorID != actor.UserID || first.records[0].DealerID == nil {
		t.Fatalf("actor not carried onto record: %+v", first.records[0])
	}
}

func TestDispatcherDropsWhenBufferFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWorkflowMetrics(reg)
	sink := &recordingSink{gate: make(chan struct{})}
	d, err := NewDispatcher(testdb.Logger(), 1, m, sink)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	// worker not started: the buffer holds one record and the rest must be dropped without blocking
	done := make(chan struct{})
	go func() {
		for i := 0; i < 4; i++ {
			d.Emit(context.Background(), New(testActor(), "order.approved", "order", uuid.New()))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}

	d.Start()
	close(sink.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected 1 delivered record, got %d", sink.count())
	}
	if got := counterValue(t, reg, "evdms_audit_records_dropped_total"); got != 3 {
		t.Fatalf("expected 3 dropped, got %v", got)
	}
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	sink := &recordingSink{}
	d, err := NewDispatcher(testdb.Logger(), 4, nil, sink)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	d.Start()
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	d.Emit(context.Background(), New(testActor(), "quote.expired", "quote", uuid.New()))
	if sink.count() != 0 {
		t.Fatalf("expected nothing delivered after close")
	}
}

func TestNewDispatcherRequiresSink(t *testing.T) {
	if _, err := NewDispatcher(testdb.Logger(), 1, nil); err == nil {
		t.Fatal("expected error without sinks")
	}
	if _, err := NewDispatcher(nil, 1, nil, &recordingSink{}); err == nil {
		t.Fatal("expected error without logger")
	}
}

func TestLogSinkWritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: &buf})
	record := New(testActor(), "payment.completed", "payment", uuid.New()).
		Transition("PENDING", "COMPLETED").
		With("txn_ref", "TXN-1")

	if err := NewLogSink(logg).Write(context.Background(), record); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"audit_action":"payment.completed"`, `"to":"COMPLETED"`, `"meta_txn_ref":"TXN-1"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestRecordWithDoesNotShareMetadata(t *testing.T) {
	base := New(testActor(), "quote.approved", "quote", uuid.New()).With("a", 1)
	derived := base.With("b", 2)
	if _, ok := base.Metadata["b"]; ok {
		t.Fatal("With mutated the original record")
	}
	if len(derived.Metadata) != 2 {
		t.Fatalf("expected 2 metadata entries, got %v", derived.Metadata)
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
