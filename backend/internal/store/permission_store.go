package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// PermissionStore answers the registry's permission-gate queries from
// the project-membership and lock tables.
type PermissionStore struct{ db *gorm.DB }

func NewPermissionStore(db *gorm.DB) *PermissionStore {
	return &PermissionStore{db: db}
}

// CanAccess: any membership row grants read access to the project.
func (s *PermissionStore) CanAccess(ctx context.Context, userID uint64, projectID string) (bool, error) {
	var row ProjectMember
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CanEdit: the user needs an editor-grade role, and no live exclusive
// lock held by someone else on the file.
func (s *PermissionStore) CanEdit(ctx context.Context, userID uint64, projectID, fileID string) (bool, error) {
	var row ProjectMember
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if row.Role != RoleOwner && row.Role != RoleEditor {
		return false, nil
	}

	var foreign int64
	err = s.db.WithContext(ctx).Model(&FileLock{}).
		Where("project_id = ? AND file_id = ? AND user_id <> ? AND expires_at > ?",
			projectID, fileID, userID, time.Now()).
		Count(&foreign).Error
	if err != nil {
		return false, err
	}
	return foreign == 0, nil
}
