package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IntegrationConfig holds per-service connection settings. One row per
// external service, keyed by ServiceName.
type IntegrationConfig struct {
	ID                  int        `gorm:"primary_key" json:"id"`
	ServiceName         string     `gorm:"size:50;uniqueIndex;not null" json:"service_name"`
	IsEnabled           bool       `gorm:"default:false" json:"is_enabled"`
	Credentials         []byte     `gorm:"type:json" json:"-"`
	SyncIntervalMinutes int        `gorm:"default:60" json:"sync_interval_minutes"`
	LastSyncAt          *time.Time `json:"last_sync_at"`
	NextSyncAt          *time.Time `json:"next_sync_at"`
	SyncStatus          string     `gorm:"size:20;default:inactive" json:"sync_status"`
	ErrorMessage        string     `gorm:"type:text" json:"error_message"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IntegrationCredentials is the shape stored in IntegrationConfig.Credentials.
// Token wins over login/password when both are present.
type IntegrationCredentials struct {
	Token    string `json:"token,omitempty"`
	Login    string `json:"login,omitempty"`
	Password string `json:"password,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

func (c *IntegrationConfig) GetCredentials() (*IntegrationCredentials, error) {
	creds := &IntegrationCredentials{}
	if len(c.Credentials) == 0 {
		return creds, nil
	}
	if err := json.Unmarshal(c.Credentials, creds); err != nil {
		return nil, fmt.Errorf("integration %s: bad credentials payload: %w", c.ServiceName, err)
	}
	return creds, nil
}

func (c *IntegrationConfig) SetCredentials(creds *IntegrationCredentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	c.Credentials = raw
	return nil
}

func GetIntegrationConfig(db *gorm.DB, serviceName string) (*IntegrationConfig, error) {
	var cfg IntegrationConfig
	err := db.Where("service_name = ?", serviceName).First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpsertIntegrationConfig creates or updates the single row for a service.
func UpsertIntegrationConfig(db *gorm.DB, cfg *IntegrationConfig) error {
	var existing IntegrationConfig
	err := db.Where("service_name = ?", cfg.ServiceName).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(cfg).Error
	}
	if err != nil {
		return err
	}
	cfg.ID = existing.ID
	cfg.CreatedAt = existing.CreatedAt
	return db.Save(cfg).Error
}

// SyncJob is one tracked synchronization run. JobId is the public
// identifier; ID stays internal.
type SyncJob struct {
	ID              int        `gorm:"primary_key" json:"-"`
	JobId           string     `gorm:"size:36;uniqueIndex;not null" json:"job_id"`
	ServiceName     string     `gorm:"size:50;index;not null" json:"service_name"`
	JobType         string     `gorm:"size:30;not null" json:"job_type"`
	Status          string     `gorm:"size:20;default:pending;index" json:"status"`
	TotalRecords    int        `gorm:"default:0" json:"total_records"`
	ProcessedCount  int        `gorm:"default:0" json:"processed_count"`
	FailedCount     int        `gorm:"default:0" json:"failed_count"`
	StartedAt       *time.Time `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	ResultData      []byte     `gorm:"type:json" json:"result_data,omitempty"`
	ErrorMessage    string     `gorm:"type:text" json:"error_message"`
	TriggeredBy     string     `gorm:"size:100" json:"triggered_by"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func NewSyncJob(serviceName, jobType, triggeredBy string) *SyncJob {
	return &SyncJob{
		JobId:       uuid.NewString(),
		ServiceName: serviceName,
		JobType:     jobType,
		Status:      SyncJobStatusPending,
		TriggeredBy: triggeredBy,
	}
}

func CreateSyncJob(db *gorm.DB, job *SyncJob) error {
	return db.Create(job).Error
}

func GetSyncJobByJobId(db *gorm.DB, jobId string) (*SyncJob, error) {
	var job SyncJob
	err := db.Where("job_id = ?", jobId).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimSyncJob transitions pending -> running exactly once. A second
// worker claiming the same job gets ErrJobNotClaimable.
var ErrJobNotClaimable = errors.New("sync job is not in pending state")

func ClaimSyncJob(db *gorm.DB, jobId string) (*SyncJob, error) {
	now := time.Now().UTC()
	res := db.Model(&SyncJob{}).
		Where("job_id = ? AND status = ?", jobId, SyncJobStatusPending).
		Updates(map[string]interface{}{
			"status":     SyncJobStatusRunning,
			"started_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrJobNotClaimable
	}
	return GetSyncJobByJobId(db, jobId)
}

// UpdateSyncJobProgress persists the running counters mid-flight so
// job polling shows live progress.
func UpdateSyncJobProgress(db *gorm.DB, jobId string, total, processed, failed int) error {
	return db.Model(&SyncJob{}).
		Where("job_id = ? AND status = ?", jobId, SyncJobStatusRunning).
		Updates(map[string]interface{}{
			"total_records":   total,
			"processed_count": processed,
			"failed_count":    failed,
		}).Error
}

// FinalizeSyncJob moves a running job into a terminal state. Calls
// against an already-terminal job are ignored so retries stay safe.
func FinalizeSyncJob(db *gorm.DB, jobId, status, errorMessage string, total, processed, failed int, resultData interface{}) error {
	if !IsTerminalJobStatus(status) {
		return fmt.Errorf("finalize: %q is not a terminal job status", status)
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":          status,
		"completed_at":    now,
		"total_records":   total,
		"processed_count": processed,
		"failed_count":    failed,
		"error_message":   errorMessage,
	}
	if resultData != nil {
		raw, err := json.Marshal(resultData)
		if err != nil {
			return err
		}
		updates["result_data"] = raw
	}
	return db.Model(&SyncJob{}).
		Where("job_id = ? AND status = ?", jobId, SyncJobStatusRunning).
		Updates(updates).Error
}

type SyncJobFilter struct {
	ServiceName string
	Status      string
	JobType     string
}

func ListSyncJobs(db *gorm.DB, f SyncJobFilter, p Pagination) ([]SyncJob, int64, error) {
	var rows []SyncJob
	var total int64
	tx := db.Model(&SyncJob{})
	if f.ServiceName != "" {
		tx = tx.Where("service_name = ?", f.ServiceName)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if f.JobType != "" {
		tx = tx.Where("job_type = ?", f.JobType)
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := p.Apply(tx).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// HasActiveSyncJob reports whether a pending or running job exists for
// the service and job type.
func HasActiveSyncJob(db *gorm.DB, serviceName, jobType string) (bool, error) {
	var count int64
	err := db.Model(&SyncJob{}).
		Where("service_name = ? AND job_type = ? AND status IN ?",
			serviceName, jobType, []string{SyncJobStatusPending, SyncJobStatusRunning}).
		Count(&count).Error
	return count > 0, err
}
