package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/evdms/dealer-backend/pkg/logger"
	"github.com/evdms/dealer-backend/pkg/metrics"
)

const (
	defaultBufferSize = 1024
	sinkTimeout       = 5 * time.Second
)

// Dispatcher buffers records in a channel drained by one worker goroutine.
type Dispatcher struct {
	records chan Record
	sinks   []Sink
	logg    *logger.Logger
	metrics *metrics.WorkflowMetrics

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	started sync.Once
}

func NewDispatcher(logg *logger.Logger, bufferSize int, m *metrics.WorkflowMetrics, sinks ...Sink) (*Dispatcher, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if len(sinks) == 0 {
		return nil, errors.New("at least one audit sink required")
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Dispatcher{
		records: make(chan Record, bufferSize),
		sinks:   sinks,
		logg:    logg,
		metrics: m,
		done:    make(chan struct{}),
	}, nil
}

// Start launches the worker. It is safe to call more than once.
func (d *Dispatcher) Start() {
	d.started.Do(func() {
		go d.run()
	})
}

// Emit enqueues the record or drops it when the buffer is full or the dispatcher is closed.
func (d *Dispatcher) Emit(ctx context.Context, record Record) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ctx, record, "dispatcher closed")
		return
	}
	select {
	case d.records <- record:
	default:
		d.drop(ctx, record, "buffer full")
	}
}

// Close stops accepting records and waits for the worker to drain the buffer or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.records)
	d.mu.Unlock()

	d.Start()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for record := range d.records {
		for _, sink := range d.sinks {
			d.write(sink, record)
		}
	}
}

func (d *Dispatcher) write(sink Sink, record Record) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.logg.Warn(d.logg.WithField(ctx, "panic", r), "audit sink panicked")
		}
	}()
	if err := sink.Write(ctx, record); err != nil {
		fields := map[string]any{
			"action":    record.Action,
			"entity_id": record.EntityID.String(),
			"error":     err.Error(),
		}
		d.logg.Warn(d.logg.WithFields(ctx, fields), "audit sink write failed")
	}
}

func (d *Dispatcher) drop(ctx context.Context, record Record, reason string) {
	d.metrics.AuditDropped()
	fields := map[string]any{
		"action":    record.Action,
		"entity_id": record.EntityID.String(),
		"reason":    reason,
	}
	d.logg.Warn(d.logg.WithFields(ctx, fields), "audit record dropped")
}
