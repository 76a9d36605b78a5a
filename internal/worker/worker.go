// Package worker consumes job descriptors and drives the recognition
// pipeline: recognize, extract, score, persist, acknowledge. Each worker is
// an independent consumption unit with its own queue connection; concurrency
// comes from running several workers, never from parallelism inside one.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/carnetocr/carnetocr/internal/broker"
	"github.com/carnetocr/carnetocr/internal/extract"
	"github.com/carnetocr/carnetocr/internal/jobs"
	"github.com/carnetocr/carnetocr/internal/recognize"
	"github.com/carnetocr/carnetocr/internal/results"
)

// Recognizer abstracts the remote vision call.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Source opens a fresh consumer connection to the job queue. Workers call it
// again after losing the connection.
type Source func(ctx context.Context) (broker.Consumer, error)

// Config holds one worker's dependencies.
type Config struct {
	ID             int
	Source         Source
	Recognizer     Recognizer
	Store          results.Store
	ReconnectDelay time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
}

type Worker struct {
	id             int
	source         Source
	recognizer     Recognizer
	store          results.Store
	reconnectDelay time.Duration
	log            *slog.Logger
	now            func() time.Time
}

func New(cfg Config) *Worker {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Worker{
		id:             cfg.ID,
		source:         cfg.Source,
		recognizer:     cfg.Recognizer,
		store:          cfg.Store,
		reconnectDelay: cfg.ReconnectDelay,
		log:            cfg.Logger.With("worker", cfg.ID),
		now:            cfg.Now,
	}
}

// Run blocks consuming deliveries until ctx is cancelled. Loss of the queue
// connection is never fatal: the worker redials after ReconnectDelay,
// indefinitely.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		consumer, err := w.source(ctx)
		if err != nil {
			w.log.Error("worker.connect_failed", "error", err, "retry_in", w.reconnectDelay)
			if !w.pause(ctx) {
				return
			}
			continue
		}
		deliveries, err := consumer.Consume(ctx)
		if err != nil {
			w.log.Error("worker.consume_failed", "error", err, "retry_in", w.reconnectDelay)
			_ = consumer.Close()
			if !w.pause(ctx) {
				return
			}
			continue
		}

		w.log.Info("worker.waiting")
		for d := range deliveries {
			w.handle(ctx, d)
		}
		_ = consumer.Close()
		if ctx.Err() != nil {
			return
		}
		w.log.Warn("worker.connection_lost", "retry_in", w.reconnectDelay)
		if !w.pause(ctx) {
			return
		}
	}
}

func (w *Worker) handle(ctx context.Context, d broker.Delivery) {
	desc, err := jobs.Decode(d.Body())
	if err != nil {
		// A malformed payload has no job id to record an error under.
		// Requeue it once; if it comes back still malformed it is poison
		// and gets dropped.
		w.log.Error("worker.bad_descriptor", "error", err, "redelivered", d.Redelivered())
		_ = d.Nack(!d.Redelivered())
		return
	}

	log := w.log.With("job_id", desc.JobID)
	log.Info("worker.job.received", "filename", desc.Filename)

	rec, unclassified := w.process(ctx, desc)
	if unclassified == nil {
		if err := w.store.Put(ctx, rec); err != nil {
			unclassified = fmt.Errorf("persist result: %w", err)
		}
	}

	if unclassified != nil {
		if ctx.Err() != nil {
			// Shutting down mid-pipeline. The failure comes from the
			// cancelled context, not the job; hand the delivery back so
			// redelivery, not finalization, is the recovery path.
			log.Warn("worker.job.returned", "error", unclassified)
			_ = d.Nack(true)
			return
		}
		if !d.Redelivered() {
			// Hand the job to any available worker via redelivery.
			log.Error("worker.job.requeued", "error", unclassified)
			_ = d.Nack(true)
			return
		}
		// Second unclassified failure: treat as terminal so a
		// deterministically failing message cannot loop forever.
		log.Error("worker.job.poison", "error", unclassified)
		failed := results.Failed(desc.JobID, unclassified.Error(), w.now())
		if perr := w.store.Put(ctx, failed); perr != nil {
			log.Error("worker.job.error_write_failed", "error", perr)
		}
		_ = d.Ack()
		return
	}

	if err := d.Ack(); err != nil {
		log.Error("worker.job.ack_failed", "error", err)
		return
	}
	log.Info("worker.job.done", "status", rec.Status)
}

// process runs the pipeline to a terminal record. Modeled failures (missing
// image, recognition exhausted) come back as error records with a nil error;
// a non-nil error means the failure is unclassified and the delivery should
// be redelivered.
func (w *Worker) process(ctx context.Context, desc jobs.Descriptor) (results.Record, error) {
	image, err := os.ReadFile(desc.Filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Redelivery cannot make the file appear; terminal.
			return results.Failed(desc.JobID, "card image file not found", w.now()), nil
		}
		return results.Record{}, fmt.Errorf("read image: %w", err)
	}

	text, err := w.recognizer.Recognize(ctx, image)
	if err != nil {
		var rerr *recognize.Error
		if errors.As(err, &rerr) {
			return results.Failed(desc.JobID, err.Error(), w.now()), nil
		}
		return results.Record{}, fmt.Errorf("recognize: %w", err)
	}

	return results.Completed(desc.JobID, extract.Extract(text), w.now()), nil
}

func (w *Worker) pause(ctx context.Context) bool {
	select {
	case <-time.After(w.reconnectDelay):
		return true
	case <-ctx.Done():
		return false
	}
}
