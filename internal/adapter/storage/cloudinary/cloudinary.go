// Package cloudinary persists finalized answer recordings to Cloudinary and
// returns durable playback URLs. It implements domain.AudioStore.
package cloudinary

import (
	"bytes"
	"fmt"
	"log/slog"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// Store uploads audio blobs under a fixed folder.
type Store struct {
	client *cld.Cloudinary
	folder string
}

// New constructs a Store from a cloudinary:// URL.
func New(cloudinaryURL, folder string) (*Store, error) {
	if cloudinaryURL == "" {
		return nil, fmt.Errorf("cloudinary url is required")
	}
	client, err := cld.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary init: %w", err)
	}
	if folder == "" {
		folder = "interview-answers"
	}
	return &Store{client: client, folder: folder}, nil
}

// Save uploads the blob under key and returns its secure URL. Audio uploads
// use the "video" resource type, which is how Cloudinary models audio files.
func (s *Store) Save(ctx domain.Context, key string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty audio blob", domain.ErrInvalidArgument)
	}
	overwrite := true
	res, err := s.client.Upload.Upload(ctx, bytes.NewReader(audio), uploader.UploadParams{
		PublicID:     key,
		Folder:       s.folder,
		ResourceType: "video",
		Overwrite:    &overwrite,
	})
	if err != nil {
		return "", fmt.Errorf("%w: upload: %v", domain.ErrPersistence, err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("%w: upload: %s", domain.ErrPersistence, res.Error.Message)
	}
	slog.Info("audio stored",
		slog.String("public_id", res.PublicID),
		slog.Int("bytes", len(audio)))
	return res.SecureURL, nil
}
