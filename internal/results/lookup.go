package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidJobID reports a malformed job identifier. Callers must keep it
// distinct from "no result yet", which is reported as a processing record.
var ErrInvalidJobID = errors.New("invalid job id")

// Lookup reads stored outcomes and reports processing for jobs that have no
// record yet.
type Lookup struct {
	store Store
	log   *slog.Logger
}

func NewLookup(store Store, logger *slog.Logger) *Lookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookup{store: store, log: logger}
}

// Find validates the identifier before touching the store. Only the
// canonical hyphenated UUID form is accepted, matching the shape intake
// assigns; urn-prefixed, braced and bare-hex spellings are rejected.
func (l *Lookup) Find(ctx context.Context, jobID string) (Record, error) {
	id := strings.TrimSpace(jobID)
	if len(id) != 36 {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}

	rec, err := l.store.Get(ctx, id)
	if err != nil {
		l.log.Error("lookup.store_error", "job_id", id, "error", err)
		return Record{}, fmt.Errorf("load result: %w", err)
	}
	if rec == nil {
		return Pending(id), nil
	}
	return *rec, nil
}
