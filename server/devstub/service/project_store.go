// Package service implements the devstub's project record, object storage
// and realtime fan-out. The devstub is a reference emulator of the backend
// contract for local development; it makes no durability promises.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"signoff/client/domain"
)

var (
	ErrNotFound     = errors.New("project not found")
	ErrFileAttached = errors.New("a deliverable is already attached")
	ErrNoFile       = errors.New("no deliverable attached")
)

const (
	projectKeyPrefix = "signoff:project:"
	adminKeyPrefix   = "signoff:admin:"
	publicKeyPrefix  = "signoff:public:"
	fileKeyPrefix    = "signoff:file:"
)

type ProjectStore struct {
	redis             *redis.Client
	defaultExpiryDays int
}

func NewProjectStore(client *redis.Client, defaultExpiryDays int) *ProjectStore {
	return &ProjectStore{redis: client, defaultExpiryDays: defaultExpiryDays}
}

// Create mints both capability tokens for a fresh PENDING record.
func (s *ProjectStore) Create(ctx context.Context, name string) (domain.Project, error) {
	now := time.Now().UTC()
	expiresAt := now.AddDate(0, 0, s.defaultExpiryDays)
	project := domain.Project{
		ID:          uuid.NewString(),
		Name:        name,
		AdminToken:  uuid.NewString(),
		PublicToken: uuid.NewString(),
		Status:      domain.StatusPending,
		ExpiresAt:   &expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.save(ctx, project); err != nil {
		return domain.Project{}, err
	}
	if err := s.redis.Set(ctx, adminKeyPrefix+project.AdminToken, project.ID, 0).Err(); err != nil {
		return domain.Project{}, err
	}
	if err := s.redis.Set(ctx, publicKeyPrefix+project.PublicToken, project.ID, 0).Err(); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

func (s *ProjectStore) ByAdminToken(ctx context.Context, token string) (domain.Project, error) {
	return s.byIndex(ctx, adminKeyPrefix+token)
}

func (s *ProjectStore) ByPublicToken(ctx context.Context, token string) (domain.Project, error) {
	return s.byIndex(ctx, publicKeyPrefix+token)
}

func (s *ProjectStore) ByFileID(ctx context.Context, fileID string) (domain.Project, error) {
	return s.byIndex(ctx, fileKeyPrefix+fileID)
}

// ApplyDecision records the reviewer verdict and the latest comment.
func (s *ProjectStore) ApplyDecision(ctx context.Context, publicToken string, decision domain.DecisionType, comment string) (domain.Project, error) {
	project, err := s.ByPublicToken(ctx, publicToken)
	if err != nil {
		return domain.Project{}, err
	}
	project.Status = domain.ProjectStatus(decision)
	project.LatestComment = &comment
	project.UpdatedAt = time.Now().UTC()
	if err := s.save(ctx, project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

func (s *ProjectStore) SetExpiration(ctx context.Context, adminToken string, days int) (domain.Project, error) {
	project, err := s.ByAdminToken(ctx, adminToken)
	if err != nil {
		return domain.Project{}, err
	}
	expiresAt := time.Now().UTC().AddDate(0, 0, days)
	project.ExpiresAt = &expiresAt
	project.UpdatedAt = time.Now().UTC()
	if err := s.save(ctx, project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// AttachFile enforces the single-deliverable invariant: a new file only goes
// in when none is attached.
func (s *ProjectStore) AttachFile(ctx context.Context, adminToken string, asset domain.FileAsset) (domain.Project, error) {
	project, err := s.ByAdminToken(ctx, adminToken)
	if err != nil {
		return domain.Project{}, err
	}
	if project.File != nil {
		return domain.Project{}, ErrFileAttached
	}
	asset.ProjectID = project.ID
	project.File = &asset
	project.UpdatedAt = time.Now().UTC()
	if err := s.save(ctx, project); err != nil {
		return domain.Project{}, err
	}
	if err := s.redis.Set(ctx, fileKeyPrefix+asset.ID, project.ID, 0).Err(); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

func (s *ProjectStore) DetachFile(ctx context.Context, adminToken, fileID string) (domain.FileAsset, domain.Project, error) {
	project, err := s.ByAdminToken(ctx, adminToken)
	if err != nil {
		return domain.FileAsset{}, domain.Project{}, err
	}
	if project.File == nil || project.File.ID != fileID {
		return domain.FileAsset{}, domain.Project{}, ErrNoFile
	}
	removed := *project.File
	project.File = nil
	project.UpdatedAt = time.Now().UTC()
	if err := s.save(ctx, project); err != nil {
		return domain.FileAsset{}, domain.Project{}, err
	}
	_ = s.redis.Del(ctx, fileKeyPrefix+fileID).Err()
	return removed, project, nil
}

// Delete drops the record and every index pointing at it.
func (s *ProjectStore) Delete(ctx context.Context, adminToken string) (domain.Project, error) {
	project, err := s.ByAdminToken(ctx, adminToken)
	if err != nil {
		return domain.Project{}, err
	}
	keys := []string{
		projectKeyPrefix + project.ID,
		adminKeyPrefix + project.AdminToken,
		publicKeyPrefix + project.PublicToken,
	}
	if project.File != nil {
		keys = append(keys, fileKeyPrefix+project.File.ID)
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

func (s *ProjectStore) save(ctx context.Context, project domain.Project) error {
	raw, err := json.Marshal(project)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, projectKeyPrefix+project.ID, raw, 0).Err()
}

func (s *ProjectStore) byIndex(ctx context.Context, indexKey string) (domain.Project, error) {
	id, err := s.redis.Get(ctx, indexKey).Result()
	if err == redis.Nil {
		return domain.Project{}, ErrNotFound
	}
	if err != nil {
		return domain.Project{}, err
	}
	raw, err := s.redis.Get(ctx, projectKeyPrefix+id).Result()
	if err == redis.Nil {
		return domain.Project{}, ErrNotFound
	}
	if err != nil {
		return domain.Project{}, err
	}
	var project domain.Project
	if err := json.Unmarshal([]byte(raw), &project); err != nil {
		return domain.Project{}, fmt.Errorf("decode project %s: %w", id, err)
	}
	return project, nil
}
