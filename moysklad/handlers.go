package moysklad

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"bitbucket.org/almasoft/crm_backend/config"
	"bitbucket.org/almasoft/crm_backend/models"
	"bitbucket.org/almasoft/crm_backend/utils"
)

type ConfigRequest struct {
	IsEnabled           *bool  `json:"is_enabled"`
	Token               string `json:"token"`
	Login               string `json:"login"`
	Password            string `json:"password"`
	BaseURL             string `json:"base_url" validate:"omitempty,url"`
	SyncIntervalMinutes int    `json:"sync_interval_minutes" validate:"omitempty,min=5,max=1440"`
}

type ConfigResponse struct {
	ServiceName         string  `json:"service_name"`
	IsEnabled           bool    `json:"is_enabled"`
	HasCredentials      bool    `json:"has_credentials"`
	AuthMode            string  `json:"auth_mode"`
	BaseURL             string  `json:"base_url,omitempty"`
	SyncIntervalMinutes int     `json:"sync_interval_minutes"`
	LastSyncAt          *string `json:"last_sync_at"`
	NextSyncAt          *string `json:"next_sync_at"`
	SyncStatus          string  `json:"sync_status"`
	ErrorMessage        string  `json:"error_message,omitempty"`
}

type TriggerSyncRequest struct {
	JobType string      `json:"job_type"`
	Options SyncOptions `json:"options"`
}

func mapConfigToResponse(cfg *models.IntegrationConfig) ConfigResponse {
	resp := ConfigResponse{
		ServiceName:         cfg.ServiceName,
		IsEnabled:           cfg.IsEnabled,
		SyncIntervalMinutes: cfg.SyncIntervalMinutes,
		SyncStatus:          cfg.SyncStatus,
		ErrorMessage:        cfg.ErrorMessage,
	}
	if creds, err := cfg.GetCredentials(); err == nil {
		resp.BaseURL = creds.BaseURL
		switch {
		case creds.Token != "":
			resp.HasCredentials = true
			resp.AuthMode = "token"
		case creds.Login != "":
			resp.HasCredentials = true
			resp.AuthMode = "basic"
		}
	}
	if cfg.LastSyncAt != nil {
		v := cfg.LastSyncAt.UTC().Format("2006-01-02T15:04:05Z")
		resp.LastSyncAt = &v
	}
	if cfg.NextSyncAt != nil {
		v := cfg.NextSyncAt.UTC().Format("2006-01-02T15:04:05Z")
		resp.NextSyncAt = &v
	}
	return resp
}

// GetConfigHandler returns the integration config without credential
// values; only their presence and mode are exposed.
func GetConfigHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		cfg, err := models.GetIntegrationConfig(db, models.ServiceMoySklad)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, ConfigResponse{
				ServiceName:         models.ServiceMoySklad,
				SyncIntervalMinutes: 60,
				SyncStatus:          models.IntegrationSyncInactive,
			})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, mapConfigToResponse(cfg))
	}
}

// UpdateConfigHandler upserts the config row. Credentials are only
// replaced when the request carries them, so enabling/disabling does
// not wipe a stored token.
func UpdateConfigHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ConfigRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateStruct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		if req.Login != "" && req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password is required with login"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())

		cfg, err := models.GetIntegrationConfig(db, models.ServiceMoySklad)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cfg = &models.IntegrationConfig{
				ServiceName:         models.ServiceMoySklad,
				SyncIntervalMinutes: 60,
				SyncStatus:          models.IntegrationSyncInactive,
			}
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if req.IsEnabled != nil {
			cfg.IsEnabled = *req.IsEnabled
		}
		if req.SyncIntervalMinutes > 0 {
			cfg.SyncIntervalMinutes = req.SyncIntervalMinutes
		}
		if req.Token != "" || req.Login != "" || req.BaseURL != "" {
			creds, err := cfg.GetCredentials()
			if err != nil {
				creds = &models.IntegrationCredentials{}
			}
			if req.Token != "" {
				creds.Token = strings.TrimSpace(req.Token)
				creds.Login = ""
				creds.Password = ""
			}
			if req.Login != "" {
				creds.Login = strings.TrimSpace(req.Login)
				creds.Password = req.Password
				creds.Token = ""
			}
			if req.BaseURL != "" {
				creds.BaseURL = strings.TrimSpace(req.BaseURL)
			}
			if err := cfg.SetCredentials(creds); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		if err := models.UpsertIntegrationConfig(db, cfg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, mapConfigToResponse(cfg))
	}
}

// TestConnectionHandler checks the stored credentials against the live
// API and reports the organization count on success.
func TestConnectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		cfg, err := models.GetIntegrationConfig(db, models.ServiceMoySklad)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusConflict, gin.H{"error": "moysklad is not configured"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		creds, err := cfg.GetCredentials()
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		client, err := newClient(creds)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}

		orgCount, err := client.testConnection(c.Request.Context())
		if err != nil {
			status := http.StatusBadGateway
			if IsAuthError(err) {
				status = http.StatusUnauthorized
			}
			c.JSON(status, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "organizations": orgCount})
	}
}

// TriggerSyncHandler creates a pending job and hands it to the worker
// via Pub/Sub. A second trigger while one is pending or running of the
// same type gets a 409.
func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// An empty or malformed body means defaults.
		var req TriggerSyncRequest
		_ = c.ShouldBindJSON(&req)
		jobType := strings.TrimSpace(req.JobType)
		if jobType == "" {
			jobType = models.SyncJobTypeFull
		}
		if !models.IsValidJobType(jobType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown job type"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())

		cfg, err := models.GetIntegrationConfig(db, models.ServiceMoySklad)
		if err != nil || !cfg.IsEnabled {
			c.JSON(http.StatusConflict, gin.H{"error": "moysklad integration is not enabled"})
			return
		}

		active, err := models.HasActiveSyncJob(db, models.ServiceMoySklad, jobType)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if active {
			c.JSON(http.StatusConflict, gin.H{"error": "a sync of this type is already in progress"})
			return
		}

		triggeredBy, ok := utils.GetUsernameFromContext(c.Request.Context())
		if !ok || triggeredBy == "" {
			triggeredBy = "api"
		}
		job := models.NewSyncJob(models.ServiceMoySklad, jobType, triggeredBy)
		if err := models.CreateSyncJob(db, job); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if config.EnvBoolDefault("MOYSKLAD_SYNC_INLINE", false) {
			// Local and test setups run the worker in-process.
			go func() {
				_ = ProcessSyncJob(context.Background(), SyncPubSubPayload{JobId: job.JobId, Options: req.Options})
			}()
		} else if err := PublishSyncJob(c.Request.Context(), job.JobId, req.Options); err != nil {
			config.LogError(config.GetLogger(), "moysklad", "TriggerSyncHandler", "publish failed", map[string]interface{}{
				"job_id": job.JobId,
			}, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue sync job"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"job_id": job.JobId, "status": job.Status})
	}
}

func ListJobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		p := models.ParsePagination(c.Query("limit"), c.Query("offset"))
		filter := models.SyncJobFilter{
			ServiceName: models.ServiceMoySklad,
			Status:      strings.TrimSpace(c.Query("status")),
			JobType:     strings.TrimSpace(c.Query("job_type")),
		}
		rows, total, err := models.ListSyncJobs(db, filter, p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}

func GetJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		job, err := models.GetSyncJobByJobId(db, c.Param("jobId"))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func StatisticsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		stats, err := models.GetSyncStatistics(db, models.ServiceMoySklad)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// RegisterRoutes mounts all integration endpoints on the router group.
func RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/config", GetConfigHandler())
	rg.PUT("/config", UpdateConfigHandler())
	rg.POST("/test", TestConnectionHandler())
	rg.POST("/sync", TriggerSyncHandler())
	rg.GET("/jobs", ListJobsHandler())
	rg.GET("/jobs/:jobId", GetJobHandler())
	rg.GET("/statistics", StatisticsHandler())
}
