// Package storage writes archived audit documents to object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"linkforge-backend/shared/config"
	"linkforge-backend/shared/logger"
)

// MinIOStore puts objects into a single bucket
type MinIOStore struct {
	client     *minio.Client
	bucketName string
	log        *zap.Logger
}

// NewMinIOStore connects to MinIO and makes sure the archive bucket exists
func NewMinIOStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*MinIOStore, error) {
	log = logger.OrNop(log).Named("minio")

	// MINIO_SERVER_URL carries a scheme; the client wants host:port
	parsedURL, err := url.Parse(cfg.MinIOServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MinIO endpoint: %w", err)
	}
	endpoint := parsedURL.Host
	if endpoint == "" {
		endpoint = cfg.MinIOServerURL
	}

	log.Info("connecting to MinIO", zap.String("endpoint", endpoint), zap.Bool("ssl", cfg.MinIOUseSSL))

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIORootUser, cfg.MinIORootPassword, ""),
		Secure: cfg.MinIOUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	store := &MinIOStore{
		client:     client,
		bucketName: cfg.AuditArchiveBucket,
		log:        log,
	}
	if err := store.initializeBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MinIOStore) initializeBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		s.log.Info("archive bucket ready", zap.String("bucket", s.bucketName))
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	s.log.Info("archive bucket created", zap.String("bucket", s.bucketName))
	return nil
}

// PutObject uploads data under key
func (s *MinIOStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
