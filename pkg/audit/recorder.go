package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RecorderConfig tunes the asynchronous writer.
type RecorderConfig struct {
	// Buffer is the queue size. Default: 1000
	Buffer int

	// WriteTimeout bounds each store write. Default: 5s
	WriteTimeout time.Duration
}

// Recorder queues records and writes them in the background. A nil
// *Recorder discards everything, so components can take one optionally.
type Recorder struct {
	store  Store
	cfg    RecorderConfig
	queue  chan *Record
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder starts a recorder writing to store.
func NewRecorder(store Store, cfg RecorderConfig, logger *slog.Logger) *Recorder {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1000
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		store:  store,
		cfg:    cfg,
		queue:  make(chan *Record, cfg.Buffer),
		done:   make(chan struct{}),
		logger: logger.With("component", "audit.recorder"),
		now:    time.Now,
	}

	r.wg.Add(1)
	go r.worker()

	return r
}

// Record enqueues rec, filling in its ID and timestamp when empty. It never
// blocks: when the queue is full the record is dropped and logged.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if r == nil {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now().UTC()
	}

	select {
	case <-r.done:
		r.logger.WarnContext(ctx, "recorder closed, dropping audit record", "record_id", rec.ID)
		return
	default:
	}

	select {
	case r.queue <- &rec:
	default:
		r.logger.ErrorContext(ctx, "audit queue full, dropping record",
			"record_id", rec.ID,
			"kind", rec.Kind,
			"tenant_id", rec.TenantID,
			"capacity", r.cfg.Buffer)
	}
}

// Close drains the queue and stops the worker.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.once.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		case <-r.done:
			for {
				select {
				case rec := <-r.queue:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()

	if err := r.store.Append(ctx, rec); err != nil {
		r.logger.Error("failed to write audit record",
			"record_id", rec.ID,
			"kind", rec.Kind,
			"error", err)
	}
}
