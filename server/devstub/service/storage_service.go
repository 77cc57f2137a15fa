package service

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

type StorageService struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

func NewStorageService(client *minio.Client, bucket string, ttlMinutes int) *StorageService {
	return &StorageService{
		client: client,
		bucket: bucket,
		ttl:    time.Duration(ttlMinutes) * time.Minute,
	}
}

func (s *StorageService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
}

// PresignUpload mints a fresh storage key and a signed PUT target for it.
func (s *StorageService) PresignUpload(ctx context.Context, projectID, filename string) (string, string, error) {
	key := storageKey(projectID, filename)
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.ttl)
	if err != nil {
		return "", "", err
	}
	return u.String(), key, nil
}

// PresignDownload derives a short-lived GET URL. wantAttachment forces a
// content-disposition so a plain link click saves to disk.
func (s *StorageService) PresignDownload(ctx context.Context, key, filename string, wantAttachment bool) (string, error) {
	params := url.Values{}
	if wantAttachment {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.ttl, params)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// StatSize confirms the direct transfer actually landed and returns the
// stored byte size.
func (s *StorageService) StatSize(ctx context.Context, key string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (s *StorageService) Remove(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

func storageKey(projectID, filename string) string {
	base := strings.TrimPrefix(path.Base(filename), "/")
	if base == "" || base == "." {
		base = "deliverable"
	}
	return path.Join("projects", projectID, uuid.NewString()+"_"+base)
}
