package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/echoform/echoform-backend/internal/pkg/logger"
	"github.com/echoform/echoform-backend/internal/platform/envutil"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBase overrides the endpoint when building download URLs,
	// for deployments that front MinIO with a CDN or reverse proxy.
	PublicBase string
}

func ResolveMinioConfigFromEnv() (MinioConfig, error) {
	cfg := MinioConfig{
		Endpoint:   envutil.String("MINIO_ENDPOINT", ""),
		AccessKey:  envutil.String("MINIO_ACCESS_KEY", ""),
		SecretKey:  envutil.String("MINIO_SECRET_KEY", ""),
		Bucket:     envutil.String("MINIO_BUCKET", "echoform-audio"),
		UseSSL:     envutil.Bool("MINIO_USE_SSL", false),
		PublicBase: envutil.String("MINIO_PUBLIC_BASE", ""),
	}
	if cfg.Endpoint == "" {
		return MinioConfig{}, fmt.Errorf("MINIO_ENDPOINT is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return MinioConfig{}, fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required")
	}
	return cfg, nil
}

type minioStore struct {
	log    *logger.Logger
	cfg    MinioConfig
	client *minio.Client
}

func NewMinioStore(ctx context.Context, log *logger.Logger, cfg MinioConfig) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client init failed: %w", err)
	}

	s := &minioStore{
		log:    log.With("service", "MinioBlobStore"),
		cfg:    cfg,
		client: client,
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	log.Info(
		"MinIO blob store ready",
		"endpoint", cfg.Endpoint,
		"bucket", cfg.Bucket,
		"use_ssl", cfg.UseSSL,
	)
	return s, nil
}

func (s *minioStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket check failed: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("bucket create failed: %w", err)
	}
	return nil
}

func (s *minioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("object key required")
	}
	opts := minio.PutObjectOptions{}
	if contentType != "" {
		opts.ContentType = contentType
	}
	if _, err := s.client.PutObject(ctx, s.cfg.Bucket, key, r, size, opts); err != nil {
		return fmt.Errorf("put object %q failed: %w", key, err)
	}
	return nil
}

func (s *minioStore) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("get object %q failed: %w", key, err)
	}
	st, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, 0, fmt.Errorf("stat object %q failed: %w", key, err)
	}
	return obj, st.Size, nil
}

func (s *minioStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return false, nil
		}
		return false, fmt.Errorf("stat object %q failed: %w", key, err)
	}
	return true, nil
}

func (s *minioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q failed: %w", key, err)
	}
	return nil
}

func (s *minioStore) URL(key string) string {
	if s.cfg.PublicBase != "" {
		return strings.TrimRight(s.cfg.PublicBase, "/") + "/" + key
	}
	scheme := "http://"
	if s.cfg.UseSSL {
		scheme = "https://"
	}
	return scheme + s.cfg.Endpoint + "/" + s.cfg.Bucket + "/" + key
}
