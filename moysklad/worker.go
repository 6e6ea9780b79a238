package moysklad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/almasoft/crm_backend/config"
	"bitbucket.org/almasoft/crm_backend/models"
	"bitbucket.org/almasoft/crm_backend/utils"
)

const syncLockTTL = 30 * time.Minute

// pipelineError aborts the whole run, as opposed to per-record
// failures which only bump the failed counter.
type pipelineError struct {
	err error
}

func (e *pipelineError) Error() string { return e.err.Error() }
func (e *pipelineError) Unwrap() error { return e.err }

// isPipelineFault decides whether an entity step error kills the whole
// run. Rejected credentials and a source that stayed down through
// every retry mean the remaining steps would only fail the same way.
func isPipelineFault(err error) bool {
	var pe *pipelineError
	return errors.As(err, &pe) || IsAuthError(err) || IsSourceUnavailable(err)
}

func maxConsecutiveFailures() int {
	if v := strings.TrimSpace(os.Getenv("MOYSKLAD_MAX_CONSECUTIVE_FAILURES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 25
}

// syncRun carries shared state through one job execution.
type syncRun struct {
	db       *gorm.DB
	client   *msClient
	resolver *resolver
	results  map[string]*entityResult
	maxFails int
	// updatedSince narrows incremental runs to records changed after
	// the previous sync. Empty means a full walk.
	updatedSince string
}

// entityParams returns the shared query filter for entity collection
// endpoints. The stock report does not support it and fetches fresh.
func (s *syncRun) entityParams() url.Values {
	if s.updatedSince == "" {
		return nil
	}
	params := url.Values{}
	params.Set("filter", "updated>="+s.updatedSince)
	return params
}

func (s *syncRun) totals() (total, processed, failed int) {
	for _, r := range s.results {
		total += r.Total
		processed += r.Processed
		failed += r.Failed
	}
	return
}

// ProcessSyncJob executes one tracked sync run end to end: claim the
// job, take the per-service lock, walk the entity types in dependency
// order, then finalize the job and the integration config. Safe to
// call again for the same job id; terminal jobs are skipped.
func ProcessSyncJob(ctx context.Context, payload SyncPubSubPayload) error {
	logger := config.GetLogger()
	if strings.TrimSpace(payload.JobId) == "" {
		return errors.New("sync payload has no job id")
	}

	db := config.GetDB().WithContext(ctx)

	job, err := models.GetSyncJobByJobId(db, payload.JobId)
	if err != nil {
		return err
	}
	if models.IsTerminalJobStatus(job.Status) {
		return nil
	}

	cfg, err := models.GetIntegrationConfig(db, job.ServiceName)
	if err != nil {
		return finalizeFailed(db, job.JobId, "integration is not configured", nil)
	}
	if !cfg.IsEnabled {
		return finalizeFailed(db, job.JobId, "integration is disabled", nil)
	}
	creds, err := cfg.GetCredentials()
	if err != nil {
		return finalizeFailed(db, job.JobId, err.Error(), nil)
	}

	lockKey := fmt.Sprintf("sync:%s:%s", job.ServiceName, job.JobType)
	lock, err := utils.ObtainSyncLock(ctx, lockKey, syncLockTTL)
	if err != nil {
		if errors.Is(err, utils.ErrLockNotObtained) {
			return finalizeFailed(db, job.JobId, "another sync of this type is already running", nil)
		}
		return err
	}
	if lock != nil {
		defer lock.Release(context.WithoutCancel(ctx))
	}

	if _, err := models.ClaimSyncJob(db, job.JobId); err != nil {
		if errors.Is(err, models.ErrJobNotClaimable) {
			return nil
		}
		return err
	}

	client, err := newClient(creds)
	if err != nil {
		return finalizeFailed(db, job.JobId, err.Error(), nil)
	}

	options := payload.Options
	if options.isZero() {
		options = allSyncOptions()
	}
	// enhanced_sync is a full mirror plus trade documents, the
	// heaviest walk the source supports.
	if job.JobType == models.SyncJobTypeEnhanced {
		options.Documents = true
	}

	run := &syncRun{
		db:       db,
		client:   client,
		resolver: newResolver(db),
		results:  map[string]*entityResult{},
		maxFails: maxConsecutiveFailures(),
	}
	if job.JobType == models.SyncJobTypeIncremental && cfg.LastSyncAt != nil {
		run.updatedSince = cfg.LastSyncAt.UTC().Format(msMomentLayout)
	}

	runErr := run.execute(ctx, options, job.JobId)

	total, processed, failed := run.totals()
	now := time.Now().UTC()

	if runErr != nil {
		config.LogError(logger, "moysklad", "ProcessSyncJob", "sync run aborted", map[string]interface{}{
			"job_id": job.JobId, "job_type": job.JobType,
		}, runErr)
		if err := models.FinalizeSyncJob(db, job.JobId, models.SyncJobStatusFailed, runErr.Error(), total, processed, failed, run.results); err != nil {
			return err
		}
		updateIntegrationAfterRun(db, cfg, now, models.IntegrationSyncError, runErr.Error())
		models.InvalidateSyncStatistics()
		return nil
	}

	if err := models.FinalizeSyncJob(db, job.JobId, models.SyncJobStatusCompleted, "", total, processed, failed, run.results); err != nil {
		return err
	}
	updateIntegrationAfterRun(db, cfg, now, models.IntegrationSyncActive, "")
	models.InvalidateSyncStatistics()

	logger.WithField("job_id", job.JobId).
		WithField("total", total).
		WithField("processed", processed).
		WithField("failed", failed).
		Info("moysklad sync completed")
	return nil
}

func finalizeFailed(db *gorm.DB, jobId, message string, results interface{}) error {
	if _, err := models.ClaimSyncJob(db, jobId); err != nil && !errors.Is(err, models.ErrJobNotClaimable) {
		return err
	}
	return models.FinalizeSyncJob(db, jobId, models.SyncJobStatusFailed, message, 0, 0, 0, results)
}

func updateIntegrationAfterRun(db *gorm.DB, cfg *models.IntegrationConfig, now time.Time, status, errMsg string) {
	next := now.Add(time.Duration(cfg.SyncIntervalMinutes) * time.Minute)
	updates := map[string]interface{}{
		"next_sync_at":  next,
		"sync_status":   status,
		"error_message": errMsg,
	}
	// last_sync_at moves only on success; it is the incremental
	// watermark, and a failed run has not mirrored anything up to now.
	if status == models.IntegrationSyncActive {
		updates["last_sync_at"] = now
	}
	_ = db.Model(&models.IntegrationConfig{}).
		Where("id = ?", cfg.ID).
		Updates(updates).Error
}

// execute walks entity types in dependency order so references mostly
// resolve without placeholders. Entity-level failures are recorded and
// the run moves on; pipeline errors (auth, exhausted source retries,
// failure cap) abort it.
func (s *syncRun) execute(ctx context.Context, options SyncOptions, jobId string) error {
	type step struct {
		name    string
		enabled bool
		fn      func(context.Context) error
	}
	steps := []step{
		{"currencies", options.Reference, s.syncCurrencies},
		{"countries", options.Reference, s.syncCountries},
		{"units_of_measure", options.Reference, s.syncUoms},
		{"product_folders", options.Products, s.syncProductFolders},
		{"products", options.Products, s.syncProducts},
		{"product_variants", options.Products, s.syncVariants},
		{"services", options.Products, s.syncServices},
		{"counterparties", options.Counterparties, s.syncCounterparties},
		{"stores", options.Inventory, s.syncStores},
		{"stock", options.Inventory, s.syncStock},
		{"organizations", options.Organization, s.syncOrganizations},
		{"employees", options.Organization, s.syncEmployees},
		{"projects", options.Organization, s.syncProjects},
		{"contracts", options.Organization, s.syncContracts},
		{"sales_documents", options.Documents, s.syncSalesDocuments},
		{"purchase_documents", options.Documents, s.syncPurchaseDocuments},
	}

	for _, st := range steps {
		if !st.enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		err := st.fn(ctx)
		if err != nil {
			if isPipelineFault(err) {
				return err
			}
			// Entity-level failure: record and continue with the rest.
			res := s.result(st.name)
			res.Error = err.Error()
			config.LogError(config.GetLogger(), "moysklad", "execute", "entity sync failed", map[string]interface{}{
				"entity": st.name, "job_id": jobId,
			}, err)
		}
		total, processed, failed := s.totals()
		_ = models.UpdateSyncJobProgress(s.db, jobId, total, processed, failed)
	}
	return nil
}

func (s *syncRun) result(name string) *entityResult {
	r, ok := s.results[name]
	if !ok {
		r = &entityResult{}
		s.results[name] = r
	}
	return r
}

// processRows runs one mapped record at a time, counting failures and
// enforcing the consecutive-failure cap.
func (s *syncRun) processRows(res *entityResult, consecutive *int, rows []json.RawMessage, handle func(raw json.RawMessage) error) error {
	logger := config.GetLogger()
	for _, raw := range rows {
		err := handle(raw)
		if err == nil {
			res.Processed++
			*consecutive = 0
			continue
		}
		if IsAuthError(err) {
			return err
		}
		res.Failed++
		*consecutive++
		var me *MapError
		if errors.As(err, &me) {
			logger.WithField("entity", me.EntityType).
				WithField("external_id", me.ExternalId).
				Warn(me.Reason)
		} else {
			config.LogError(logger, "moysklad", "processRows", "record failed", nil, err)
		}
		if *consecutive >= s.maxFails {
			return &pipelineError{err: fmt.Errorf("aborting after %d consecutive record failures, last: %w", *consecutive, err)}
		}
	}
	return nil
}

func (s *syncRun) syncCurrencies(ctx context.Context) error {
	res := s.result("currencies")
	consecutive := 0
	total, err := s.client.fetchAll(ctx, "/entity/currency", s.entityParams(), func(rows []json.RawMessage) error {
		return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
			var rec rawCurrency
			if err := json.Unmarshal(raw, &rec); err != nil {
				return mapErr("currency", "", "invalid payload: "+err.Error())
			}
			row, me := mapCurrency(rec)
			if me != nil {
				return me
			}
			return upsertCurrency(s.db, row)
		})
	})
	res.Total = max(total, res.Processed+res.Failed)
	return err
}

func (s *syncRun) syncCountries(ctx context.Context) error {
	res := s.result("countries")
	consecutive := 0
	total, err := s.client.fetchAll(ctx, "/entity/country", s.entityParams(), func(rows []json.RawMessage) error {
		return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
			var rec rawCountry
			if err := json.Unmarshal(raw, &rec); err != nil {
				return mapErr("country", "", "invalid payload: "+err.Error())
			}
			row, me := mapCountry(rec)
			if me != nil {
				return me
			}
			return upsertCountry(s.db, row)
		})
	})
	res.Total = max(total, res.Processed+res.Failed)
	return err
}

func (s *syncRun) syncUoms(ctx context.Context) error {
	res := s.result("units_of_measure")
	consecutive := 0
	total, err := s.client.fetchAll(ctx, "/entity/uom", s.entityParams(), func(rows []json.RawMessage) error {
		return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
			var rec rawUom
			if err := json.Unmarshal(raw, &rec); err != nil {
				return mapErr("uom", "", "invalid payload: "+err.Error())
			}
			row, me := mapUom(rec)
			if me != nil {
				return me
			}
			return upsertUom(s.db, row)
		})
	})
	res.Total = max(total, res.Processed+res.Failed)
	return err
}

func (s *syncRun) syncProductFolders(ctx context.Context) error {
	res := s.result("product_folders")
	consecutive := 0
	total, err := s.client.fetchAll(ctx, "/entity/productfolder", s.entityParams(), func(rows []json.RawMessage) error {
		return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
			var rec rawProductFolder
			if err := json.Unmarshal(raw, &rec); err != nil {
				return mapErr("product_folder", "", "invalid payload: "+err.Error())
			}
			row, refs, me := mapProductFolder(rec)
			if me != nil {
				return me
			}
			parentId, err := s.resolver.productFolderId(refs.FolderExternalId)
			if err != nil {
				return err
			}
			row.ParentId = parentId
			return upsertProductFolder(s.db, row)
		})
	})
	res.Total = max(total, res.Processed+res.Failed)
	return err
}

func (s *syncRun) syncProducts(ctx context.Context) error {
	res := s.result("products")
	consecutive := 0
	total, err := s.client.fetchAll(ctx, "/entity/product", s.entityParams(), func(rows []json.RawMessage) error {
		return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
			var rec rawProduct
			if err := json.Unmarshal(raw, &rec); err != nil {
				return mapErr("product", "", "invalid payload: "+err.Error())
			}
			row, refs, me := mapProduct(rec)
			if me != nil {
				return me
			}
			folderId, err := s.resolver.productFolderId(refs.FolderExternalId)
			if err != nil {
				return err
			}
			uomId, err := s.resolver.uomId(refs.UomExternalId)
			if err != nil {
				return err
			}
			row.FolderId = folderId
			row.UomId = uomId
			return upsertProduct(s.db, row)
		})
	})
	res.Total = max(total, res.Processed+res.Failed)
	return err
}

func (s *syncRun) syncVariants(ctx context.Context) error {
	res := s.result("product_variants")
	consecutive := 0
	total, err := s.client.fetchAll(ctx, "/entity/variant", s.entityParams(), func(rows []json.RawMessage) error {
		return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
			var rec rawVariant
			if err := json.Unmarshal(raw, &rec); err != nil {
				return mapErr("product_variant", "", "invalid payload: "+err.Error())
			}
			row, refs, me := mapVariant(rec)
			if me != nil {
				return me
			}
			productId, err := s.resolver.productId(refs.ProductExternalId)
			if err != nil {
				return err
			}
			row.ProductId = productId
			return upsertVariant(s.db, row)
		})
	})
	res.Total = max(total, res.Processed+res.Failed)
	return err
}

func (s *syncRun) syncServices(ctx context.Context) error {
	res := s.result("services")
	consecutive := 0
	total, err := s.client.fetchAll(ctx, "/entity/service", s.entityParams(), func(rows []json.RawMessage) error {
		return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
			var rec rawService
			if err := json.Unmarshal(raw, &rec); err != nil {
				return mapErr("service", "", "invalid payload: "+err.Error())
			}
			row, refs, me := mapService(rec)
			if me != nil {
				return me
			}
			folderId, err := s.resolver.productFolderId(refs.FolderExternalId)
			if err != nil {
				return err
			}
			row.FolderId = folderId
			return upsertService(s.db, row)
		})
	})
	res.Total = max(total, res.Processed+res.Failed)
	return err
}

func (s *syncRun) syncCounterparties(ctx context.Context) error {
	res := s.result("counterparties")
	consecutive := 0
	total, err := s.client.fetchAll(ctx, "/entity/counterparty", s.entityParams(), func(rows []json.RawMessage) error {
		return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
			var rec rawCounterparty
			if err := json.Unmarshal(raw, &rec); err != nil {
				return mapErr("counterparty", "", "invalid payload: "+err.Error())
			}
			row, me := mapCounterparty(rec)
			if me != nil {
				return me
			}
			return upsertCounterparty(s.db, row)
		})
	})
	res.Total = max(total, res.Processed+res.Failed)
	return err
}

func (s *syncRun) syncStores(ctx context.Context) error {
	res := s.result("stores")
	consecutive := 0
	total, err := s.client.fetchAll(ctx, "/entity/store", s.entityParams(), func(rows []json.RawMessage) error {
		return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
			var rec rawStore
			if err := json.Unmarshal(raw, &rec); err != nil {
				return mapErr("store", "", "invalid payload: "+err.Error())
			}
			row, me := mapStore(rec)
			if me != nil {
				return me
			}
			return upsertStore(s.db, row)
		})
	})
	res.Total = max(total, res.Processed+res.Failed)
	return err
}

// syncStock flattens the by-store report into one row per
// (product, store) pair.
func (s *syncRun) syncStock(ctx context.Context) error {
	res := s.result("stock")
	consecutive := 0
	params := url.Values{}
	params.Set("groupBy", "product")
	_, err := s.client.fetchAll(ctx, "/report/stock/bystore", params, func(rows []json.RawMessage) error {
		return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
			var rec rawStockRow
			if err := json.Unmarshal(raw, &rec); err != nil {
				return mapErr("stock", "", "invalid payload: "+err.Error())
			}
			productExtId := externalIdFromHref(rec.Meta.Href)
			if productExtId == "" {
				return mapErr("stock", "", "missing assortment reference")
			}
			productId, err := s.resolver.productId(productExtId)
			if err != nil {
				return err
			}
			for _, byStore := range rec.StockByStore {
				storeExtId := externalIdFromHref(byStore.Meta.Href)
				if storeExtId == "" {
					continue
				}
				storeId, err := s.resolver.storeId(storeExtId)
				if err != nil {
					return err
				}
				quantity := numberToDecimal(byStore.Stock)
				inTransit := numberToDecimal(byStore.InTransit)
				reserve := numberToDecimal(byStore.Reserve)
				row := &models.Stock{
					ProductId: productId,
					StoreId:   storeId,
					Quantity:  quantity,
					InTransit: inTransit,
					Reserve:   reserve,
					Available: quantity.Sub(reserve),
				}
				extId := productExtId + ":" + storeExtId
				row.ExternalId = &extId
				if err := upsertStock(s.db, row); err != nil {
					return err
				}
			}
			return nil
		})
	})
	res.Total = res.Processed + res.Failed
	return err
}

func (s *syncRun) syncOrganizations(ctx context.Context) error {
	res := s.result("organizations")
	consecutive := 0
	total, err := s.client.fetchAll(ctx, "/entity/organization", s.entityParams(), func(rows []json.RawMessage) error {
		return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
			var rec rawOrganization
			if err := json.Unmarshal(raw, &rec); err != nil {
				return mapErr("organization", "", "invalid payload: "+err.Error())
			}
			row, me := mapOrganization(rec)
			if me != nil {
				return me
			}
			return upsertOrganization(s.db, row)
		})
	})
	res.Total = max(total, res.Processed+res.Failed)
	return err
}

func (s *syncRun) syncEmployees(ctx context.Context) error {
	res := s.result("employees")
	consecutive := 0
	total, err := s.client.fetchAll(ctx, "/entity/employee", s.entityParams(), func(rows []json.RawMessage) error {
		return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
			var rec rawEmployee
			if err := json.Unmarshal(raw, &rec); err != nil {
				return mapErr("employee", "", "invalid payload: "+err.Error())
			}
			row, refs, me := mapEmployee(rec)
			if me != nil {
				return me
			}
			organizationId, err := s.resolver.organizationId(refs.OrganizationExternalId)
			if err != nil {
				return err
			}
			row.OrganizationId = organizationId
			return upsertEmployee(s.db, row)
		})
	})
	res.Total = max(total, res.Processed+res.Failed)
	return err
}

func (s *syncRun) syncProjects(ctx context.Context) error {
	res := s.result("projects")
	consecutive := 0
	total, err := s.client.fetchAll(ctx, "/entity/project", s.entityParams(), func(rows []json.RawMessage) error {
		return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
			var rec rawProject
			if err := json.Unmarshal(raw, &rec); err != nil {
				return mapErr("project", "", "invalid payload: "+err.Error())
			}
			row, me := mapProject(rec)
			if me != nil {
				return me
			}
			return upsertProject(s.db, row)
		})
	})
	res.Total = max(total, res.Processed+res.Failed)
	return err
}

func (s *syncRun) syncContracts(ctx context.Context) error {
	res := s.result("contracts")
	consecutive := 0
	total, err := s.client.fetchAll(ctx, "/entity/contract", s.entityParams(), func(rows []json.RawMessage) error {
		return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
			var rec rawContract
			if err := json.Unmarshal(raw, &rec); err != nil {
				return mapErr("contract", "", "invalid payload: "+err.Error())
			}
			row, refs, me := mapContract(rec)
			if me != nil {
				return me
			}
			counterpartyId, err := s.resolver.counterpartyId(refs.CounterpartyExternalId)
			if err != nil {
				return err
			}
			organizationId, err := s.resolver.organizationId(refs.OrganizationExternalId)
			if err != nil {
				return err
			}
			projectId, err := s.resolver.projectId(refs.ProjectExternalId)
			if err != nil {
				return err
			}
			row.CounterpartyId = counterpartyId
			row.OrganizationId = organizationId
			row.ProjectId = projectId
			return upsertContract(s.db, row)
		})
	})
	res.Total = max(total, res.Processed+res.Failed)
	return err
}

// Document sync walks each endpoint of the group in turn, flattening
// the types into one result bucket. State comes expanded so the
// mapper sees its name.
var salesDocTypes = []string{models.DocTypeCustomerOrder, models.DocTypeDemand, models.DocTypeInvoiceOut}
var purchaseDocTypes = []string{models.DocTypePurchaseOrder, models.DocTypeSupply, models.DocTypeInvoiceIn}

func (s *syncRun) documentParams() url.Values {
	params := s.entityParams()
	if params == nil {
		params = url.Values{}
	}
	params.Set("expand", "state")
	return params
}

func (s *syncRun) syncSalesDocuments(ctx context.Context) error {
	res := s.result("sales_documents")
	consecutive := 0
	grand := 0
	for _, docType := range salesDocTypes {
		total, err := s.client.fetchAll(ctx, "/entity/"+docType, s.documentParams(), func(rows []json.RawMessage) error {
			return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
				var rec rawDocument
				if err := json.Unmarshal(raw, &rec); err != nil {
					return mapErr(docType, "", "invalid payload: "+err.Error())
				}
				row, refs, me := mapSalesDocument(docType, rec)
				if me != nil {
					return me
				}
				counterpartyId, err := s.resolver.counterpartyId(refs.CounterpartyExternalId)
				if err != nil {
					return err
				}
				storeId, err := s.resolver.storeId(refs.StoreExternalId)
				if err != nil {
					return err
				}
				row.CounterpartyId = counterpartyId
				row.StoreId = storeId
				return upsertSalesDocument(s.db, row)
			})
		})
		grand += total
		if err != nil {
			res.Total = max(grand, res.Processed+res.Failed)
			return err
		}
	}
	res.Total = max(grand, res.Processed+res.Failed)
	return nil
}

func (s *syncRun) syncPurchaseDocuments(ctx context.Context) error {
	res := s.result("purchase_documents")
	consecutive := 0
	grand := 0
	for _, docType := range purchaseDocTypes {
		total, err := s.client.fetchAll(ctx, "/entity/"+docType, s.documentParams(), func(rows []json.RawMessage) error {
			return s.processRows(res, &consecutive, rows, func(raw json.RawMessage) error {
				var rec rawDocument
				if err := json.Unmarshal(raw, &rec); err != nil {
					return mapErr(docType, "", "invalid payload: "+err.Error())
				}
				row, refs, me := mapPurchaseDocument(docType, rec)
				if me != nil {
					return me
				}
				counterpartyId, err := s.resolver.counterpartyId(refs.CounterpartyExternalId)
				if err != nil {
					return err
				}
				storeId, err := s.resolver.storeId(refs.StoreExternalId)
				if err != nil {
					return err
				}
				row.CounterpartyId = counterpartyId
				row.StoreId = storeId
				return upsertPurchaseDocument(s.db, row)
			})
		})
		grand += total
		if err != nil {
			res.Total = max(grand, res.Processed+res.Failed)
			return err
		}
	}
	res.Total = max(grand, res.Processed+res.Failed)
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
