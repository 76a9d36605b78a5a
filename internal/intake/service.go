// Package intake validates uploaded card images and enqueues jobs. A
// successful submission performs exactly one durable queue write; a rejected
// payload performs none and generates no identifier.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/carnetocr/carnetocr/constants"
	"github.com/carnetocr/carnetocr/internal/broker"
	"github.com/carnetocr/carnetocr/internal/common"
	"github.com/carnetocr/carnetocr/internal/jobs"
)

type Service struct {
	uploadDir string
	pub       broker.Publisher
	log       *slog.Logger
}

func NewService(uploadDir string, pub broker.Publisher, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Service{uploadDir: uploadDir, pub: pub, log: logger}, nil
}

// Submit validates the payload, persists it under a job-scoped name and
// publishes the job descriptor. Validation runs before the identifier is
// generated, so rejected payloads leave no partial job behind.
func (s *Service) Submit(ctx context.Context, image []byte) (string, error) {
	ext, err := sniffImage(image)
	if err != nil {
		return "", err
	}

	jobID := uuid.New().String()
	filename := filepath.Join(s.uploadDir, fmt.Sprintf("carnet_%s.%s", jobID, ext))
	if err := os.WriteFile(filename, image, 0o644); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}

	body, err := jobs.Descriptor{JobID: jobID, Filename: filename}.Encode()
	if err != nil {
		_ = os.Remove(filename)
		return "", err
	}
	if err := s.pub.Publish(ctx, body); err != nil {
		// No partial jobs: a submission either queues or fails whole.
		_ = os.Remove(filename)
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	s.log.Info("intake.job_queued", "job_id", jobID, "filename", filename, "bytes", len(image))
	return jobID, nil
}

func sniffImage(b []byte) (string, error) {
	if len(b) == 0 {
		return "", common.NewAppError("EMPTY_IMAGE", "image payload is empty", common.ErrInvalidInput)
	}
	var ext string
	switch http.DetectContentType(b) {
	case "image/png":
		ext = "png"
	case "image/jpeg":
		ext = "jpg"
	case "image/gif":
		ext = "gif"
	case "image/webp":
		ext = "webp"
	default:
		return "", common.NewAppError("UNSUPPORTED_IMAGE", "payload is not a supported image", common.ErrInvalidInput)
	}
	if _, ok := constants.AllowedImageExtensions[ext]; !ok {
		return "", common.NewAppError("UNSUPPORTED_IMAGE", "image type not allowed", common.ErrInvalidInput)
	}
	return ext, nil
}
