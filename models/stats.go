package models

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/almasoft/crm_backend/config"
)

const statsCacheKey = "moysklad:sync:statistics"
const statsCacheTTL = 60 * time.Second

// SyncStatistics is the dashboard snapshot over mirrored data.
type SyncStatistics struct {
	EntityCounts map[string]int64 `json:"entity_counts"`
	ErrorCounts  map[string]int64 `json:"error_counts"`
	LastJob      *SyncJob         `json:"last_job,omitempty"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

// GetSyncStatistics counts live rows per entity table. Results are
// cached in Redis briefly since dashboards poll this.
func GetSyncStatistics(db *gorm.DB, serviceName string) (*SyncStatistics, error) {
	var cached SyncStatistics
	if ok, err := config.GetRedisObject(statsCacheKey, &cached); err == nil && ok {
		return &cached, nil
	}

	stats := &SyncStatistics{
		EntityCounts: map[string]int64{},
		ErrorCounts:  map[string]int64{},
		GeneratedAt:  time.Now().UTC(),
	}

	tables := map[string]interface{}{
		"products":           &Product{},
		"product_folders":    &ProductFolder{},
		"product_variants":   &ProductVariant{},
		"services":           &Service{},
		"units_of_measure":   &UnitOfMeasure{},
		"counterparties":     &Counterparty{},
		"stores":             &Store{},
		"stock":              &Stock{},
		"organizations":      &Organization{},
		"employees":          &Employee{},
		"projects":           &Project{},
		"contracts":          &Contract{},
		"currencies":         &Currency{},
		"countries":          &Country{},
		"sales_documents":    &SalesDocument{},
		"purchase_documents": &PurchaseDocument{},
	}
	for name, model := range tables {
		var count int64
		if err := db.Model(model).Where("is_deleted = ?", false).Count(&count).Error; err != nil {
			return nil, err
		}
		stats.EntityCounts[name] = count

		var errCount int64
		err := db.Model(model).
			Where("is_deleted = ? AND sync_status = ?", false, EntitySyncStatusError).
			Count(&errCount).Error
		if err != nil {
			return nil, err
		}
		if errCount > 0 {
			stats.ErrorCounts[name] = errCount
		}
	}

	var lastJob SyncJob
	err := db.Where("service_name = ?", serviceName).
		Order("created_at desc").First(&lastJob).Error
	if err == nil {
		stats.LastJob = &lastJob
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	_ = config.SetRedisObject(statsCacheKey, stats, statsCacheTTL)
	return stats, nil
}

// InvalidateSyncStatistics drops the cached snapshot, called after a
// job finishes so the next poll sees fresh counts.
func InvalidateSyncStatistics() {
	_ = config.RemoveRedisKey(statsCacheKey)
}
