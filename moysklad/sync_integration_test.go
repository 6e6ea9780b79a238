package moysklad_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/almasoft/crm_backend/config"
	"bitbucket.org/almasoft/crm_backend/models"
	"bitbucket.org/almasoft/crm_backend/moysklad"
)

// stubAPI emulates the upstream list endpoints. Responses are keyed by
// path; unknown paths return an empty collection.
type stubAPI struct {
	mu         sync.Mutex
	rows       map[string][]map[string]interface{}
	pageSize   int
	authFail   bool
	serverFail bool
	requests   int
}

func newStubAPI() *stubAPI {
	return &stubAPI{rows: map[string][]map[string]interface{}{}, pageSize: 2}
}

func (s *stubAPI) set(path string, rows []map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[path] = rows
}

func (s *stubAPI) setAuthFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authFail = v
}

func (s *stubAPI) setServerFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverFail = v
}

func (s *stubAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests++
		authFail := s.authFail
		serverFail := s.serverFail
		all := s.rows[r.URL.Path]
		pageSize := s.pageSize
		s.mu.Unlock()

		if authFail {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errors":[{"error":"Unauthorized"}]}`))
			return
		}
		if serverFail {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"errors":[{"error":"Service temporarily unavailable"}]}`))
			return
		}

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		end := offset + pageSize
		if end > len(all) {
			end = len(all)
		}
		var page []map[string]interface{}
		if offset < len(all) {
			page = all[offset:end]
		}
		body, _ := json.Marshal(map[string]interface{}{
			"meta": map[string]interface{}{"size": len(all)},
			"rows": page,
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}

func productRow(id, name string) map[string]interface{} {
	row := map[string]interface{}{
		"meta": map[string]interface{}{
			"href": "https://stub/entity/product/" + id,
		},
		"id":         id,
		"salePrices": []map[string]interface{}{{"value": 150000}},
	}
	if name != "" {
		row["name"] = name
	}
	return row
}

func runJob(t *testing.T, jobType string, options moysklad.SyncOptions) *models.SyncJob {
	t.Helper()
	db := config.GetDB()
	job := models.NewSyncJob(models.ServiceMoySklad, jobType, "test")
	if err := models.CreateSyncJob(db, job); err != nil {
		t.Fatalf("CreateSyncJob: %v", err)
	}
	err := moysklad.ProcessSyncJob(context.Background(), moysklad.SyncPubSubPayload{
		JobId:   job.JobId,
		Options: options,
	})
	if err != nil {
		t.Fatalf("ProcessSyncJob: %v", err)
	}
	got, err := models.GetSyncJobByJobId(db, job.JobId)
	if err != nil {
		t.Fatalf("GetSyncJobByJobId: %v", err)
	}
	return got
}

func TestMoySkladSyncPipeline(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	stub := newStubAPI()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "crm_test")
	// Keep the client fast under test.
	t.Setenv("MOYSKLAD_RATE_LIMIT_PER_MIN", "600000")
	t.Setenv("MOYSKLAD_MAX_RETRIES", "1")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatal("db is nil after ConnectDatabaseWithRetry")
	}

	cfg := &models.IntegrationConfig{
		ServiceName:         models.ServiceMoySklad,
		IsEnabled:           true,
		SyncIntervalMinutes: 60,
	}
	if err := cfg.SetCredentials(&models.IntegrationCredentials{Token: "test-token", BaseURL: srv.URL}); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
	if err := models.UpsertIntegrationConfig(db, cfg); err != nil {
		t.Fatalf("UpsertIntegrationConfig: %v", err)
	}

	t.Run("partial failure keeps counters honest", func(t *testing.T) {
		// Six products over three pages, one with no name.
		stub.set("/entity/product", []map[string]interface{}{
			productRow("p-0", "Widget 0"),
			productRow("p-1", "Widget 1"),
			productRow("p-2", "Widget 2"),
			productRow("p-3", ""),
			productRow("p-4", "Widget 4"),
			productRow("p-5", "Widget 5"),
		})

		job := runJob(t, models.SyncJobTypeFull, moysklad.SyncOptions{Products: true})

		if job.Status != models.SyncJobStatusCompleted {
			t.Fatalf("status = %q, want completed (error=%q)", job.Status, job.ErrorMessage)
		}
		if job.TotalRecords != 6 || job.ProcessedCount != 5 || job.FailedCount != 1 {
			t.Errorf("counters = total %d processed %d failed %d, want 6/5/1",
				job.TotalRecords, job.ProcessedCount, job.FailedCount)
		}

		var count int64
		if err := db.Model(&models.Product{}).Where("sync_status = ?", models.EntitySyncStatusSynced).Count(&count).Error; err != nil {
			t.Fatal(err)
		}
		if count != 5 {
			t.Errorf("synced products = %d, want 5", count)
		}
	})

	t.Run("resync is idempotent", func(t *testing.T) {
		job := runJob(t, models.SyncJobTypeIncremental, moysklad.SyncOptions{Products: true})
		if job.Status != models.SyncJobStatusCompleted {
			t.Fatalf("status = %q, want completed", job.Status)
		}

		var count int64
		if err := db.Model(&models.Product{}).Count(&count).Error; err != nil {
			t.Fatal(err)
		}
		if count != 5 {
			t.Errorf("products after resync = %d, want 5 (no duplicates)", count)
		}
	})

	t.Run("contract creates counterparty placeholder, later sync enriches it", func(t *testing.T) {
		stub.set("/entity/contract", []map[string]interface{}{{
			"meta":   map[string]interface{}{"href": "https://stub/entity/contract/ct-1"},
			"id":     "ct-1",
			"name":   "Supply contract",
			"moment": "2024-03-15 10:30:00",
			"sum":    2500000,
			"agent": map[string]interface{}{
				"meta": map[string]interface{}{"href": "https://stub/entity/counterparty/cp-1"},
			},
		}})

		job := runJob(t, models.SyncJobTypeFull, moysklad.SyncOptions{Organization: true})
		if job.Status != models.SyncJobStatusCompleted {
			t.Fatalf("status = %q, want completed (error=%q)", job.Status, job.ErrorMessage)
		}

		var placeholder models.Counterparty
		if err := db.Where("external_id = ?", "cp-1").Take(&placeholder).Error; err != nil {
			t.Fatalf("placeholder lookup: %v", err)
		}
		if placeholder.SyncStatus != models.EntitySyncStatusPending {
			t.Errorf("placeholder sync_status = %q, want pending", placeholder.SyncStatus)
		}

		var contract models.Contract
		if err := db.Where("external_id = ?", "ct-1").Take(&contract).Error; err != nil {
			t.Fatalf("contract lookup: %v", err)
		}
		if contract.CounterpartyId == nil || *contract.CounterpartyId != placeholder.ID {
			t.Errorf("contract.counterparty_id = %v, want placeholder id %d", contract.CounterpartyId, placeholder.ID)
		}

		// Now the counterparty itself arrives.
		stub.set("/entity/counterparty", []map[string]interface{}{{
			"meta": map[string]interface{}{"href": "https://stub/entity/counterparty/cp-1"},
			"id":   "cp-1",
			"name": "OOO Vector",
			"inn":  "7707083893",
		}})
		job = runJob(t, models.SyncJobTypeFull, moysklad.SyncOptions{Counterparties: true})
		if job.Status != models.SyncJobStatusCompleted {
			t.Fatalf("status = %q, want completed (error=%q)", job.Status, job.ErrorMessage)
		}

		var enriched models.Counterparty
		if err := db.Where("external_id = ?", "cp-1").Take(&enriched).Error; err != nil {
			t.Fatalf("enriched lookup: %v", err)
		}
		if enriched.ID != placeholder.ID {
			t.Errorf("enriched id = %d, want same row as placeholder %d", enriched.ID, placeholder.ID)
		}
		if enriched.Name != "OOO Vector" || enriched.SyncStatus != models.EntitySyncStatusSynced {
			t.Errorf("enriched = %q/%q, want OOO Vector/synced", enriched.Name, enriched.SyncStatus)
		}
	})

	t.Run("auth rejection fails the job without partial writes", func(t *testing.T) {
		stub.setAuthFail(true)
		t.Cleanup(func() { stub.setAuthFail(false) })

		var before int64
		if err := db.Model(&models.Product{}).Count(&before).Error; err != nil {
			t.Fatal(err)
		}

		job := runJob(t, models.SyncJobTypeFull, moysklad.SyncOptions{Products: true})
		if job.Status != models.SyncJobStatusFailed {
			t.Fatalf("status = %q, want failed", job.Status)
		}
		if job.ProcessedCount != 0 {
			t.Errorf("processed = %d, want 0", job.ProcessedCount)
		}
		if !strings.Contains(job.ErrorMessage, "auth") {
			t.Errorf("error message %q should mention auth", job.ErrorMessage)
		}

		var after int64
		if err := db.Model(&models.Product{}).Count(&after).Error; err != nil {
			t.Fatal(err)
		}
		if after != before {
			t.Errorf("product count changed %d -> %d during failed run", before, after)
		}
	})

	t.Run("enhanced sync mirrors trade documents", func(t *testing.T) {
		stub.set("/entity/customerorder", []map[string]interface{}{{
			"meta":       map[string]interface{}{"href": "https://stub/entity/customerorder/co-1"},
			"id":         "co-1",
			"name":       "00042",
			"moment":     "2024-04-01 09:00:00",
			"sum":        500000,
			"applicable": true,
			"state":      map[string]interface{}{"name": "New"},
			"agent": map[string]interface{}{
				"meta": map[string]interface{}{"href": "https://stub/entity/counterparty/cp-1"},
			},
		}})
		stub.set("/entity/supply", []map[string]interface{}{{
			"meta":   map[string]interface{}{"href": "https://stub/entity/supply/sp-1"},
			"id":     "sp-1",
			"name":   "SUP-7",
			"moment": "2024-04-02 14:00:00",
			"sum":    120000,
		}})

		// A plain full run must leave documents alone.
		job := runJob(t, models.SyncJobTypeFull, moysklad.SyncOptions{})
		if job.Status != models.SyncJobStatusCompleted {
			t.Fatalf("full status = %q, want completed (error=%q)", job.Status, job.ErrorMessage)
		}
		var docCount int64
		if err := db.Model(&models.SalesDocument{}).Count(&docCount).Error; err != nil {
			t.Fatal(err)
		}
		if docCount != 0 {
			t.Fatalf("sales documents after full sync = %d, want 0", docCount)
		}

		job = runJob(t, models.SyncJobTypeEnhanced, moysklad.SyncOptions{})
		if job.Status != models.SyncJobStatusCompleted {
			t.Fatalf("enhanced status = %q, want completed (error=%q)", job.Status, job.ErrorMessage)
		}

		var order models.SalesDocument
		if err := db.Where("external_id = ?", "co-1").Take(&order).Error; err != nil {
			t.Fatalf("customer order lookup: %v", err)
		}
		if order.DocType != models.DocTypeCustomerOrder || order.State != "New" {
			t.Errorf("order = %q/%q, want customerorder/New", order.DocType, order.State)
		}
		if !order.SumTotal.Equal(decimal.NewFromInt(5000)) {
			t.Errorf("order sum = %s, want 5000", order.SumTotal)
		}
		var agent models.Counterparty
		if err := db.Where("external_id = ?", "cp-1").Take(&agent).Error; err != nil {
			t.Fatal(err)
		}
		if order.CounterpartyId == nil || *order.CounterpartyId != agent.ID {
			t.Errorf("order.counterparty_id = %v, want %d", order.CounterpartyId, agent.ID)
		}

		var supply models.PurchaseDocument
		if err := db.Where("external_id = ?", "sp-1").Take(&supply).Error; err != nil {
			t.Fatalf("supply lookup: %v", err)
		}
		if supply.DocType != models.DocTypeSupply {
			t.Errorf("supply doc_type = %q, want supply", supply.DocType)
		}
	})

	t.Run("source outage fails the job and keeps the watermark", func(t *testing.T) {
		before, err := models.GetIntegrationConfig(db, models.ServiceMoySklad)
		if err != nil {
			t.Fatal(err)
		}
		if before.LastSyncAt == nil {
			t.Fatal("last_sync_at should be set after the earlier completed runs")
		}

		stub.setServerFail(true)
		t.Cleanup(func() { stub.setServerFail(false) })

		job := runJob(t, models.SyncJobTypeFull, moysklad.SyncOptions{Products: true})
		if job.Status != models.SyncJobStatusFailed {
			t.Fatalf("status = %q, want failed (error=%q)", job.Status, job.ErrorMessage)
		}
		if !strings.Contains(job.ErrorMessage, "unavailable") {
			t.Errorf("error message %q should mention the outage", job.ErrorMessage)
		}

		after, err := models.GetIntegrationConfig(db, models.ServiceMoySklad)
		if err != nil {
			t.Fatal(err)
		}
		if after.SyncStatus != models.IntegrationSyncError {
			t.Errorf("sync_status = %q, want error", after.SyncStatus)
		}
		if after.LastSyncAt == nil || !after.LastSyncAt.Equal(*before.LastSyncAt) {
			t.Errorf("last_sync_at moved %v -> %v during a failed run", before.LastSyncAt, after.LastSyncAt)
		}
	})
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("crm-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("crm-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=crm_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
