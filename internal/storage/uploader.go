package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comfyserve/internal/images"
)

// Uploader pushes generated images to Supabase Storage and hands back public
// URLs, backing the url return format. Images are converted to webp first.
type Uploader struct {
	baseURL    string
	serviceKey string
	bucket     string
	quality    float32
	httpc      *http.Client
	log        *zap.Logger
}

func NewUploader(baseURL, serviceKey, bucket string, quality float32) *Uploader {
	return &Uploader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		quality:    quality,
		httpc:      &http.Client{Timeout: 60 * time.Second},
		log:        zap.L(),
	}
}

// Upload stores one image under the job's prefix and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, jobID string, data []byte) (string, error) {
	webpData, err := images.ConvertToWebP(data, u.quality)
	if err != nil {
		return "", fmt.Errorf("convert for upload: %w", err)
	}

	objectPath := fmt.Sprintf("%s/%s.webp", jobID, uuid.New().String())
	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", u.baseURL, u.bucket, objectPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(webpData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+u.serviceKey)
	req.Header.Set("Content-Type", "image/webp")

	resp, err := u.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, body)
	}

	u.log.Info("image uploaded",
		zap.String("path", objectPath),
		zap.Int("bytes", len(webpData)))

	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", u.baseURL, u.bucket, objectPath), nil
}
