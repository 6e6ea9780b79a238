package moysklad

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/almasoft/crm_backend/models"
)

// Upserts key on external_id. An existing row keeps its local id and
// created_at; everything else is overwritten by the incoming record.
// Soft-deleted and placeholder rows are revived the same way since
// MarkSynced clears is_deleted and flips sync_status to synced.

func upsertProduct(db *gorm.DB, incoming *models.Product) error {
	now := time.Now().UTC()
	var existing models.Product
	err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			if err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error; err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}

func upsertProductFolder(db *gorm.DB, incoming *models.ProductFolder) error {
	now := time.Now().UTC()
	var existing models.ProductFolder
	err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			if err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error; err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}

func upsertUom(db *gorm.DB, incoming *models.UnitOfMeasure) error {
	now := time.Now().UTC()
	var existing models.UnitOfMeasure
	err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			if err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error; err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}

func upsertVariant(db *gorm.DB, incoming *models.ProductVariant) error {
	now := time.Now().UTC()
	var existing models.ProductVariant
	err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			if err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error; err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}

func upsertService(db *gorm.DB, incoming *models.Service) error {
	now := time.Now().UTC()
	var existing models.Service
	err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			if err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error; err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}

func upsertCounterparty(db *gorm.DB, incoming *models.Counterparty) error {
	now := time.Now().UTC()
	var existing models.Counterparty
	err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			if err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error; err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}

func upsertStore(db *gorm.DB, incoming *models.Store) error {
	now := time.Now().UTC()
	var existing models.Store
	err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			if err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error; err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}

// upsertStock keys on the (product_id, store_id) pair since report
// rows carry no id of their own.
func upsertStock(db *gorm.DB, incoming *models.Stock) error {
	now := time.Now().UTC()
	var existing models.Stock
	err := db.Where("product_id = ? AND store_id = ?", *incoming.ProductId, *incoming.StoreId).
		Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			err = db.Where("product_id = ? AND store_id = ?", *incoming.ProductId, *incoming.StoreId).
				Take(&existing).Error
			if err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}

func upsertOrganization(db *gorm.DB, incoming *models.Organization) error {
	now := time.Now().UTC()
	var existing models.Organization
	err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			if err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error; err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}

func upsertEmployee(db *gorm.DB, incoming *models.Employee) error {
	now := time.Now().UTC()
	var existing models.Employee
	err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			if err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error; err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}

func upsertProject(db *gorm.DB, incoming *models.Project) error {
	now := time.Now().UTC()
	var existing models.Project
	err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			if err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error; err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}

func upsertContract(db *gorm.DB, incoming *models.Contract) error {
	now := time.Now().UTC()
	var existing models.Contract
	err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			if err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error; err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}

func upsertSalesDocument(db *gorm.DB, incoming *models.SalesDocument) error {
	now := time.Now().UTC()
	var existing models.SalesDocument
	err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			if err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error; err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}

func upsertPurchaseDocument(db *gorm.DB, incoming *models.PurchaseDocument) error {
	now := time.Now().UTC()
	var existing models.PurchaseDocument
	err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			if err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error; err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}

func upsertCurrency(db *gorm.DB, incoming *models.Currency) error {
	now := time.Now().UTC()
	var existing models.Currency
	err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			if err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error; err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}

func upsertCountry(db *gorm.DB, incoming *models.Country) error {
	now := time.Now().UTC()
	var existing models.Country
	err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		incoming.MarkSynced(now)
		createErr := db.Create(incoming).Error
		if createErr != nil && isDuplicateKeyErr(createErr) {
			if err := db.Where("external_id = ?", *incoming.ExternalId).Take(&existing).Error; err != nil {
				return err
			}
		} else {
			return createErr
		}
	} else if err != nil {
		return err
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.MarkSynced(now)
	return db.Save(incoming).Error
}
