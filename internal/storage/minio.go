// Package storage is the file storage collaborator: it accepts a binary
// blob plus a path and returns a durable URL. The engine only ever deals in
// the returned URL string.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL overrides the URL base for returned links (CDN or reverse
	// proxy in front of the bucket). Empty means direct endpoint URLs.
	PublicURL string
}

type Service struct {
	client *minio.Client
	cfg    Config
}

// New connects to the object store and makes sure the bucket exists.
func New(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		log.Printf("storage: created bucket %s", cfg.Bucket)
	}

	return &Service{client: client, cfg: cfg}, nil
}

// Upload stores the blob at path and returns its durable URL.
func (s *Service) Upload(ctx context.Context, path string, blob []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, path, bytes.NewReader(blob), int64(len(blob)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	return s.URLFor(path), nil
}

// URLFor builds the durable URL for a stored path.
func (s *Service) URLFor(path string) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimSuffix(s.cfg.PublicURL, "/") + "/" + path
	}
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.cfg.Endpoint, s.cfg.Bucket, path)
}

// VersionPath is the canonical object path for an uploaded version file.
func VersionPath(projectID, versionID, fileName string) string {
	return fmt.Sprintf("projects/%s/versions/%s/%s", projectID, versionID, fileName)
}

// ThumbnailPath is the canonical object path for a project thumbnail.
func ThumbnailPath(projectID string) string {
	return fmt.Sprintf("projects/%s/thumbnail.png", projectID)
}
