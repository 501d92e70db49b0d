package store

import (
	"context"

	"gorm.io/gorm"
)

// ActivityStore is the activity-log sink.
type ActivityStore struct{ db *gorm.DB }

func NewActivityStore(db *gorm.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

func (s *ActivityStore) Record(ctx context.Context, projectID string, userID uint64, fileID, kind, message string) error {
	row := ActivityLog{
		ProjectID: projectID,
		UserID:    userID,
		FileID:    fileID,
		Kind:      kind,
		Message:   message,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}
