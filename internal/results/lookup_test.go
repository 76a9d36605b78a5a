package results

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carnetocr/carnetocr/constants"
)

func TestFindPendingByDefault(t *testing.T) {
	ctx := context.Background()
	lookup := NewLookup(newTestStore(t), nil)
	jobID := uuid.New().String()

	rec, err := lookup.Find(ctx, jobID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if rec.Status != constants.StatusProcessing {
		t.Errorf("Status = %q, want %q", rec.Status, constants.StatusProcessing)
	}
	if rec.JobID != jobID {
		t.Errorf("JobID = %q, want %q", rec.JobID, jobID)
	}
}

func TestFindReturnsStoredRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	lookup := NewLookup(store, nil)
	jobID := uuid.New().String()

	if err := store.Put(ctx, Failed(jobID, "boom", time.Now())); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rec, err := lookup.Find(ctx, jobID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if rec.Status != constants.StatusError || rec.Error != "boom" {
		t.Errorf("record = %+v", rec)
	}
}

func TestFindRejectsMalformedID(t *testing.T) {
	ctx := context.Background()
	lookup := NewLookup(newTestStore(t), nil)

	canonical := uuid.New().String()
	malformed := []string{
		"",
		"abc",
		"not-a-uuid",
		"1234",
		// Alternate UUID spellings: only the canonical hyphenated form
		// matches what intake hands out.
		"urn:uuid:" + canonical,
		"{" + canonical + "}",
		strings.ReplaceAll(canonical, "-", ""),
	}
	for _, id := range malformed {
		_, err := lookup.Find(ctx, id)
		if !errors.Is(err, ErrInvalidJobID) {
			t.Errorf("Find(%q) error = %v, want ErrInvalidJobID", id, err)
		}
	}
}
