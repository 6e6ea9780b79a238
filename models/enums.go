package models

// Sync status carried on every mirrored row.
const (
	EntitySyncStatusPending = "pending"
	EntitySyncStatusSynced  = "synced"
	EntitySyncStatusError   = "error"
)

// SyncJob lifecycle. pending is the only initial state; completed and
// failed are terminal.
const (
	SyncJobStatusPending   = "pending"
	SyncJobStatusRunning   = "running"
	SyncJobStatusCompleted = "completed"
	SyncJobStatusFailed    = "failed"
)

const (
	SyncJobTypeFull        = "full_sync"
	SyncJobTypeIncremental = "incremental_sync"
	SyncJobTypeEnhanced    = "enhanced_sync"
)

// IntegrationConfig.SyncStatus values.
const (
	IntegrationSyncInactive = "inactive"
	IntegrationSyncActive   = "active"
	IntegrationSyncError    = "error"
)

const ServiceMoySklad = "moysklad"

func IsTerminalJobStatus(status string) bool {
	return status == SyncJobStatusCompleted || status == SyncJobStatusFailed
}

func IsValidJobType(jobType string) bool {
	switch jobType {
	case SyncJobTypeFull, SyncJobTypeIncremental, SyncJobTypeEnhanced:
		return true
	}
	return false
}
