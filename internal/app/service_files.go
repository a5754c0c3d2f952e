package app

import (
	"context"
	"io"
	"time"
)

const presignTTL = 15 * time.Minute

// UploadFile stores an attachment or avatar and returns its object key.
func (s *Service) UploadFile(ctx context.Context, session Session, folder, filename, contentType string, r io.Reader, size int64) (string, error) {
	if s.files == nil {
		return "", errUnavailable("FILES_UNAVAILABLE", "File storage is not configured")
	}
	switch folder {
	case "chat", "payments", "avatars":
	default:
		return "", errValidation("unknown upload folder", map[string]any{"folder": folder})
	}
	key, err := s.files.Put(ctx, folder, filename, contentType, r, size)
	if err != nil {
		return "", err
	}
	s.recordActivity(ctx, session, "file.uploaded", "file", key, filename)
	return key, nil
}

// FileURL returns a short-lived download link for an object key.
func (s *Service) FileURL(ctx context.Context, key, downloadName string) (string, error) {
	if s.files == nil {
		return "", errUnavailable("FILES_UNAVAILABLE", "File storage is not configured")
	}
	return s.files.PresignedURL(ctx, key, downloadName, presignTTL)
}
