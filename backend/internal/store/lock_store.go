package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockStore manages the exclusive file-lock table. The registry only
// reads holder sets; acquisition is exposed for the surrounding
// services and tests.
type LockStore struct{ db *gorm.DB }

func NewLockStore(db *gorm.DB) *LockStore {
	return &LockStore{db: db}
}

func (s *LockStore) Acquire(ctx context.Context, projectID, fileID string, userID uint64, ttl time.Duration) error {
	row := FileLock{ProjectID: projectID, FileID: fileID, UserID: userID, ExpiresAt: time.Now().Add(ttl)}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "file_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"expires_at"}),
		}).
		Create(&row).Error
}

func (s *LockStore) Release(ctx context.Context, projectID, fileID string, userID uint64) error {
	return s.db.WithContext(ctx).
		Where("project_id = ? AND file_id = ? AND user_id = ?", projectID, fileID, userID).
		Delete(&FileLock{}).Error
}

// Holders returns users with a live lock on the file.
func (s *LockStore) Holders(ctx context.Context, projectID, fileID string) ([]uint64, error) {
	var holders []uint64
	err := s.db.WithContext(ctx).Model(&FileLock{}).
		Where("project_id = ? AND file_id = ? AND expires_at > ?", projectID, fileID, time.Now()).
		Pluck("user_id", &holders).Error
	return holders, err
}

// PurgeExpired removes dead locks; run from the periodic sweep.
func (s *LockStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&FileLock{})
	return res.RowsAffected, res.Error
}
