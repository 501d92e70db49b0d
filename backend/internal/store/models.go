package store

import "time"

// Member roles; anything at or above RoleEditor may submit operations.
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

type FileContent struct {
	ProjectID string `gorm:"primaryKey;size:64"`
	FileID    string `gorm:"primaryKey;size:64"`
	Content   string `gorm:"type:longtext"`
	Version   uint64
	UpdatedAt time.Time
}

type ProjectMember struct {
	ProjectID string `gorm:"primaryKey;size:64"`
	UserID    uint64 `gorm:"primaryKey"`
	Role      string `gorm:"size:16"`
	CreatedAt time.Time
}

type FileLock struct {
	ProjectID string    `gorm:"primaryKey;size:64"`
	FileID    string    `gorm:"primaryKey;size:64"`
	UserID    uint64    `gorm:"primaryKey"`
	ExpiresAt time.Time `gorm:"index"`
}

type ActivityLog struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	ProjectID string `gorm:"size:64;index"`
	UserID    uint64
	FileID    string `gorm:"size:64"`
	Kind      string `gorm:"size:32"`
	Message   string `gorm:"size:512"`
	CreatedAt time.Time
}
