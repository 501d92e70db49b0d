package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContentStore is the durable home of file content. A missing row reads
// as an empty document at version 0, so the first open of a new file
// just works.
type ContentStore struct{ db *gorm.DB }

func NewContentStore(db *gorm.DB) *ContentStore {
	return &ContentStore{db: db}
}

func (s *ContentStore) Get(ctx context.Context, projectID, fileID string) (string, uint64, error) {
	var row FileContent
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND file_id = ?", projectID, fileID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return row.Content, row.Version, nil
}

func (s *ContentStore) Put(ctx context.Context, projectID, fileID, content string, version uint64) error {
	row := FileContent{ProjectID: projectID, FileID: fileID, Content: content, Version: version}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "file_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "version", "updated_at"}),
		}).
		Create(&row).Error
}
