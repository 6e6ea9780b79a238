package models

import (
	"time"
)

// SyncedModel is embedded by every entity mirrored from an external
// service. ExternalId stays nil for records created locally and for
// placeholder rows until the source record is seen; it is unique per
// table so upserts can key on it.
type SyncedModel struct {
	ID           int        `gorm:"primary_key" json:"id"`
	ExternalId   *string    `gorm:"size:64;uniqueIndex" json:"external_id"`
	ExternalMeta []byte     `gorm:"type:json" json:"external_meta,omitempty"`
	LastSyncAt   *time.Time `json:"last_sync_at"`
	SyncStatus   string     `gorm:"size:20;default:pending;index" json:"sync_status"`
	IsDeleted    bool       `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// MarkSynced stamps the row as freshly mirrored.
func (m *SyncedModel) MarkSynced(now time.Time) {
	m.LastSyncAt = &now
	m.SyncStatus = EntitySyncStatusSynced
	m.IsDeleted = false
}
