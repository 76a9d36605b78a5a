package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carnetocr/carnetocr/constants"
	"github.com/carnetocr/carnetocr/internal/broker"
	"github.com/carnetocr/carnetocr/internal/jobs"
	"github.com/carnetocr/carnetocr/internal/recognize"
	"github.com/carnetocr/carnetocr/internal/results"
)

type fakeRecognizer struct {
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ []byte) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

// flakyStore fails the first n Puts, then delegates.
type flakyStore struct {
	results.Store
	remaining atomic.Int32
}

func (s *flakyStore) Put(ctx context.Context, rec results.Record) error {
	if s.remaining.Add(-1) >= 0 {
		return fmt.Errorf("store unavailable")
	}
	return s.Store.Put(ctx, rec)
}

func newResultStore(t *testing.T) *results.SQLiteStore {
	t.Helper()
	store, err := results.OpenSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func startWorker(t *testing.T, src Source, rec Recognizer, store results.Store) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	w := New(Config{
		ID:             1,
		Source:         src,
		Recognizer:     rec,
		Store:          store,
		ReconnectDelay: 10 * time.Millisecond,
	})
	go w.Run(ctx)
}

func queueSource(q *broker.MemoryQueue) Source {
	return func(context.Context) (broker.Consumer, error) { return q, nil }
}

func publishJob(t *testing.T, q *broker.MemoryQueue, desc jobs.Descriptor) {
	t.Helper()
	body, err := desc.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := q.Publish(context.Background(), body); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "carnet.png")
	if err := os.WriteFile(path, []byte("fake image bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func waitForRecord(t *testing.T, store results.Store, jobID string) *results.Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := store.Get(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if rec != nil {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no record for job %s within deadline", jobID)
	return nil
}

func TestJobCompletes(t *testing.T) {
	q := broker.NewMemoryQueue(4)
	store := newResultStore(t)
	rec := &fakeRecognizer{text: "Nombre: Ana Rojas\nCódigo: 2020123\nCarrera: Derecho\nInstitución: UPTC"}
	startWorker(t, queueSource(q), rec, store)

	jobID := uuid.New().String()
	publishJob(t, q, jobs.Descriptor{JobID: jobID, Filename: writeImage(t)})

	got := waitForRecord(t, store, jobID)
	if got.Status != constants.StatusCompleted {
		t.Fatalf("Status = %q, want %q", got.Status, constants.StatusCompleted)
	}
	if got.Name != "Ana Rojas" || got.StudentCode != "2020123" {
		t.Errorf("fields = %+v", got.CardFields)
	}
	if got.Confidence["institucion"] != 1.0 {
		t.Errorf("Confidence = %v", got.Confidence)
	}
	if got.ProcessedAt == nil {
		t.Error("ProcessedAt = nil")
	}
}

func TestRecognitionExhaustionIsTerminal(t *testing.T) {
	q := broker.NewMemoryQueue(4)
	store := newResultStore(t)
	rec := &fakeRecognizer{err: &recognize.Error{Attempts: 3, Last: fmt.Errorf("model status 502")}}
	startWorker(t, queueSource(q), rec, store)

	jobID := uuid.New().String()
	publishJob(t, q, jobs.Descriptor{JobID: jobID, Filename: writeImage(t)})

	got := waitForRecord(t, store, jobID)
	if got.Status != constants.StatusError {
		t.Fatalf("Status = %q, want %q", got.Status, constants.StatusError)
	}
	if got.Error == "" {
		t.Error("Error message is empty")
	}
	// Terminal outcome: acknowledged, not redelivered.
	time.Sleep(50 * time.Millisecond)
	if n := rec.calls.Load(); n != 1 {
		t.Errorf("recognizer calls = %d, want 1", n)
	}
}

func TestMissingImageIsTerminal(t *testing.T) {
	q := broker.NewMemoryQueue(4)
	store := newResultStore(t)
	rec := &fakeRecognizer{text: "irrelevant"}
	startWorker(t, queueSource(q), rec, store)

	jobID := uuid.New().String()
	publishJob(t, q, jobs.Descriptor{JobID: jobID, Filename: filepath.Join(t.TempDir(), "gone.png")})

	got := waitForRecord(t, store, jobID)
	if got.Status != constants.StatusError {
		t.Fatalf("Status = %q, want %q", got.Status, constants.StatusError)
	}
	if got.Error != "card image file not found" {
		t.Errorf("Error = %q", got.Error)
	}
	if n := rec.calls.Load(); n != 0 {
		t.Errorf("recognizer calls = %d, want 0", n)
	}
}

func TestUnclassifiedFailureIsRedelivered(t *testing.T) {
	q := broker.NewMemoryQueue(4)
	backing := newResultStore(t)
	store := &flakyStore{Store: backing}
	store.remaining.Store(1) // first Put fails
	rec := &fakeRecognizer{text: "Nombre: Ana"}
	startWorker(t, queueSource(q), rec, store)

	jobID := uuid.New().String()
	publishJob(t, q, jobs.Descriptor{JobID: jobID, Filename: writeImage(t)})

	got := waitForRecord(t, backing, jobID)
	if got.Status != constants.StatusCompleted {
		t.Fatalf("Status = %q, want %q", got.Status, constants.StatusCompleted)
	}
	if n := rec.calls.Load(); n != 2 {
		t.Errorf("recognizer calls = %d, want 2 (original + redelivery)", n)
	}
}

func TestPersistentUnclassifiedFailureTurnsTerminal(t *testing.T) {
	q := broker.NewMemoryQueue(4)
	backing := newResultStore(t)
	store := &flakyStore{Store: backing}
	store.remaining.Store(2) // both completed-record Puts fail
	rec := &fakeRecognizer{text: "Nombre: Ana"}
	startWorker(t, queueSource(q), rec, store)

	jobID := uuid.New().String()
	publishJob(t, q, jobs.Descriptor{JobID: jobID, Filename: writeImage(t)})

	// The error-record write after the second failure goes through.
	got := waitForRecord(t, backing, jobID)
	if got.Status != constants.StatusError {
		t.Fatalf("Status = %q, want %q", got.Status, constants.StatusError)
	}
	if got.Error == "" {
		t.Error("Error message is empty")
	}
}

// blockingRecognizer holds the pipeline open until its context is cancelled.
type blockingRecognizer struct {
	started chan struct{}
}

func (b *blockingRecognizer) Recognize(ctx context.Context, _ []byte) (string, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func TestShutdownMidJobLeavesDeliveryQueued(t *testing.T) {
	q := broker.NewMemoryQueue(4)
	store := newResultStore(t)

	jobID := uuid.New().String()
	publishJob(t, q, jobs.Descriptor{JobID: jobID, Filename: writeImage(t)})

	// Make the pending delivery a redelivery before the worker sees it.
	seedCtx, seedCancel := context.WithCancel(context.Background())
	ch, err := q.Consume(seedCtx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	d := <-ch
	if err := d.Nack(true); err != nil {
		t.Fatalf("Nack: %v", err)
	}
	seedCancel()

	rec := &blockingRecognizer{started: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	w := New(Config{
		ID:             1,
		Source:         queueSource(q),
		Recognizer:     rec,
		Store:          store,
		ReconnectDelay: 10 * time.Millisecond,
	})
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-rec.started:
	case <-time.After(2 * time.Second):
		t.Fatal("recognizer was never invoked")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}

	// The interrupted job must survive shutdown: requeued, never finalized.
	if q.Len() != 1 {
		t.Errorf("queue length = %d after shutdown, want 1", q.Len())
	}
	got, err := store.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("record stored during shutdown: %+v", got)
	}
}

func TestMalformedDescriptorIsDropped(t *testing.T) {
	q := broker.NewMemoryQueue(4)
	store := newResultStore(t)
	rec := &fakeRecognizer{text: "irrelevant"}
	startWorker(t, queueSource(q), rec, store)

	if err := q.Publish(context.Background(), []byte(`{"bad":"payload"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// Requeued once, then dropped; the pipeline never runs.
	time.Sleep(100 * time.Millisecond)
	if n := rec.calls.Load(); n != 0 {
		t.Errorf("recognizer calls = %d, want 0", n)
	}
	if q.Len() != 0 {
		t.Errorf("queue length = %d, want 0", q.Len())
	}
}

func TestWorkerRetriesConnection(t *testing.T) {
	q := broker.NewMemoryQueue(4)
	store := newResultStore(t)
	rec := &fakeRecognizer{text: "Nombre: Ana"}

	var attempts atomic.Int32
	src := func(ctx context.Context) (broker.Consumer, error) {
		if attempts.Add(1) <= 2 {
			return nil, fmt.Errorf("connection refused")
		}
		return q, nil
	}
	startWorker(t, src, rec, store)

	jobID := uuid.New().String()
	publishJob(t, q, jobs.Descriptor{JobID: jobID, Filename: writeImage(t)})

	got := waitForRecord(t, store, jobID)
	if got.Status != constants.StatusCompleted {
		t.Fatalf("Status = %q, want %q", got.Status, constants.StatusCompleted)
	}
	if n := attempts.Load(); n < 3 {
		t.Errorf("connection attempts = %d, want at least 3", n)
	}
}
